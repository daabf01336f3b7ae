package authmodel

import "github.com/jrsteele09/go-auth-session/internal/utils"

// UserProfile is the authenticated user as reported by GET /api/auth/me.
type UserProfile struct {
	ID                int64   `json:"id,omitempty"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	Provider          string  `json:"provider"` // OAuth provider used to sign in, e.g. "GOOGLE"
	ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
}

// AvatarURL returns the profile picture, or fallback when the user has none.
func (u *UserProfile) AvatarURL(fallback string) string {
	if u == nil {
		return fallback
	}
	if pic := utils.Value(u.ProfilePictureURL); pic != "" {
		return pic
	}
	return fallback
}

// Clone returns a deep copy so callers never share a profile with the session owner.
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.ProfilePictureURL = utils.CopyPtr(u.ProfilePictureURL)
	return &c
}
