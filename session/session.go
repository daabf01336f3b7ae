package session

import (
	"time"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"golang.org/x/oauth2"
)

// State is a point in the session lifecycle.
type State string

const (
	StateLoggedOut  State = "logged_out"
	StateRestoring  State = "restoring"
	StateActive     State = "active"
	StateRefreshing State = "refreshing"
)

func (s State) String() string {
	return string(s)
}

// Session is the client-side record of the current authentication.
// AccessToken and RefreshToken are either both set or both empty.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string                 // "Bearer" unless the service says otherwise
	ExpiresAt    time.Time              // Access token expiry, zero when unknown
	User         *authmodel.UserProfile // nil until the profile has been fetched
}

// Clone returns a deep copy. Manager hands out clones only.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}

// Token converts the session to an oauth2.Token, e.g. for oauth2.StaticTokenSource.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.ExpiresAt,
	}
}
