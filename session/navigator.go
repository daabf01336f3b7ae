package session

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/rs/zerolog/log"
)

// Navigator sends the user agent somewhere else. Navigation ends the current flow,
// so there is nothing to return.
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) {
	f(url)
}

// BrowserNavigator opens the URL in the system browser.
type BrowserNavigator struct {
	// Start launches name with args. Defaults to exec.Command(...).Start.
	Start func(name string, args ...string) error
	// GOOS overrides runtime.GOOS (primarily for testing)
	GOOS string
}

func (b BrowserNavigator) Navigate(url string) {
	start := b.Start
	if start == nil {
		start = func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		}
	}
	goos := b.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	name, args, err := browserCommand(goos, url)
	if err == nil {
		err = start(name, args...)
	}
	if err != nil {
		log.Err(err).Str("url", url).Msg("Failed to open browser, open the URL manually")
	}
}

func browserCommand(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "linux":
		return "xdg-open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported OS: %s", goos)
	}
}
