package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/host"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running session host")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Session host stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	client, err := authapi.New(c.GetAPIBaseURL(), authapi.WithTimeout(c.GetRequestTimeout()))
	if err != nil {
		return fmt.Errorf("authapi.New: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := session.NewManager(client, storage.NewInMemoryRepo(), session.WithMetrics(metrics.NewCollector(reg)))
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}

	handler, err := host.New(c, manager, client, metrics.Handler(reg))
	if err != nil {
		return fmt.Errorf("host.New: %w", err)
	}
	defer handler.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go host.RunAutoRefresh(ctx, manager, max(c.GetRefreshSkew()/2, time.Second), c.GetRefreshSkew())

	server := &http.Server{Addr: c.GetPort(), Handler: handler}
	_, errs, err := listenAndServe(server)
	if err != nil {
		return err
	}

	// The listener is bound, so the auth service redirect has somewhere to land
	if c.GetOpenBrowser() {
		manager.BeginLogin(session.BrowserNavigator{}, client.AuthorizationURL(c.GetLoginProvider()))
	}

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// listenAndServe binds server.Addr before returning and serves in the background.
// Serve errors arrive on the returned channel.
func listenAndServe(server *http.Server) (net.Addr, <-chan error, error) {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, nil, fmt.Errorf("net.Listen %w", err)
	}
	log.Info().Msgf("Session host listening on %s", listener.Addr())

	errs := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("server.Serve %w", err)
		}
	}()
	return listener.Addr(), errs, nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
