package authmodel

import "time"

// AuthResponse is the payload returned by the auth service refresh endpoint.
type AuthResponse struct {
	// AccessToken is the new bearer credential.
	// Usage: Include in Authorization header: "Bearer <accessToken>"
	AccessToken string `json:"accessToken"`

	// RefreshToken replaces the previous refresh token. The service rotates it on each use.
	RefreshToken string `json:"refreshToken"`

	// TokenType indicates how to use the access token, "Bearer" when present.
	TokenType string `json:"tokenType,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token. Zero when not supplied.
	ExpiresIn int64 `json:"expiresIn,omitempty"`

	// User is the profile of the user the tokens were issued to.
	User *UserProfile `json:"user,omitempty"`
}

// HasTokenPair reports whether both tokens are present.
func (r *AuthResponse) HasTokenPair() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != ""
}

// ExpiresAt converts ExpiresIn to an absolute time relative to now. Zero when unknown.
func (r *AuthResponse) ExpiresAt(now time.Time) time.Time {
	if r == nil || r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}
