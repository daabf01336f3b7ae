package host

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// sessionView is the rendered page: state, the user card and the message banner.
type sessionView struct {
	State        string    `json:"state"`
	User         *userView `json:"user,omitempty"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	ExpiresAt    string    `json:"expiresAt,omitempty"`
	Message      string    `json:"message,omitempty"`
}

type userView struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Provider  string `json:"provider"`
	AvatarURL string `json:"avatarUrl"`
}

type errorView struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// IndexHandler consumes a redirect payload, or restores from storage on a fresh load,
// and renders the session.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if session.HasRedirectParams(query) {
			if s.manager.Start(r.Context(), query) {
				http.Redirect(w, r, session.StripRedirectParams(r.URL).RequestURI(), http.StatusSeeOther)
				return
			}
		} else if s.manager.State() == session.StateLoggedOut {
			s.manager.Start(r.Context(), nil)
		}
		s.renderSession(w, http.StatusOK)
	}
}

// LoginHandler sends the browser to the auth service. ?provider= overrides the default.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.URL.Query().Get("provider")
		if provider == "" {
			provider = s.config.GetLoginProvider()
		}
		s.manager.BeginLogin(redirectNavigator{w: w, r: r}, s.login.AuthorizationURL(provider))
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.manager.Refresh(r.Context())
		if err == nil {
			s.renderSession(w, http.StatusOK)
			return
		}

		var refreshErr *session.RefreshError
		switch {
		case errors.As(err, &refreshErr):
			writeJSON(w, http.StatusUnauthorized, errorView{Error: "refresh_failed", Message: session.MessageRefreshFailed})
		case errors.Is(err, errors.ErrNoSession), errors.Is(err, errors.ErrSessionNotActive):
			writeJSON(w, http.StatusConflict, errorView{Error: "no_active_session", Message: err.Error()})
		case errors.Is(err, errors.ErrSessionChanged):
			writeJSON(w, http.StatusConflict, errorView{Error: "session_changed"})
		default:
			log.Err(err).Msg("Refresh request ended early")
			writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "refresh_interrupted"})
		}
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Logout()
		s.renderSession(w, http.StatusOK)
	}
}

// SessionHandler renders the current state without driving the manager.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.renderSession(w, http.StatusOK)
	}
}

func (s *Server) renderSession(w http.ResponseWriter, status int) {
	writeJSON(w, status, s.view())
}

// view renders the latest event. State, session and banner message come from the
// same transition so they always agree.
func (s *Server) view() sessionView {
	ev := s.manager.LastEvent()
	v := sessionView{
		State:   ev.State.String(),
		Message: ev.Message,
	}
	sess := ev.Session
	if sess == nil {
		return v
	}

	v.AccessToken = sess.AccessToken
	v.RefreshToken = sess.RefreshToken
	v.TokenType = sess.TokenType
	if !sess.ExpiresAt.IsZero() {
		v.ExpiresAt = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if sess.User != nil {
		v.User = &userView{
			Name:      sess.User.Name,
			Email:     sess.User.Email,
			Provider:  sess.User.Provider,
			AvatarURL: sess.User.AvatarURL(s.config.GetPlaceholderAvatarURL()),
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to write response")
	}
}
