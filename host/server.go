// Package host is the page the auth service redirects back to. It drives the session
// manager from HTTP requests and renders session state as JSON.
package host

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog/log"
)

// LoginURLs builds provider authorization URLs.
type LoginURLs interface {
	AuthorizationURL(provider string) string
}

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	manager *session.Manager
	login   LoginURLs
	metrics http.Handler
	unsub   func()
}

func New(cfg config.Config, manager *session.Manager, login LoginURLs, metricsHandler http.Handler) (*Server, error) {
	if manager == nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "[Server New] session manager is required")
	}
	if login == nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "[Server New] login URLs are required")
	}

	s := &Server{
		env:     cfg.GetEnv(),
		mux:     http.NewServeMux(),
		config:  cfg,
		manager: manager,
		login:   login,
		metrics: metricsHandler,
	}
	s.unsub = manager.Subscribe(s.onEvent)

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops listening to session events.
func (s *Server) Close() {
	s.unsub()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) onEvent(ev session.Event) {
	logEvent := log.Info().Str("state", ev.State.String()).Uint64("seq", ev.Seq)
	if ev.Message != "" {
		logEvent = logEvent.Str("message", ev.Message)
	}
	logEvent.Msg("Session state changed")
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
