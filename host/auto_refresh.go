package host

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog/log"
)

// RunAutoRefresh refreshes the session whenever its access token comes within skew of
// expiry. It checks every interval and returns when ctx is done.
func RunAutoRefresh(ctx context.Context, manager *session.Manager, interval, skew time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if manager.State() != session.StateActive || !manager.NeedsRefresh(skew) {
				continue
			}
			if _, err := manager.Refresh(ctx); err != nil {
				log.Err(err).Msg("Automatic refresh failed")
			}
		}
	}
}
