package session

import "fmt"

// AuthRedirectError means the auth service redirected back with an explicit error.
type AuthRedirectError struct {
	Message string
}

func (e *AuthRedirectError) Error() string {
	return fmt.Sprintf("auth redirect error: %s", e.Message)
}

// FetchUserError means the current user could not be loaded, so the session is invalid.
type FetchUserError struct {
	Err error
}

func (e *FetchUserError) Error() string {
	return fmt.Sprintf("fetch user: %v", e.Err)
}

func (e *FetchUserError) Unwrap() error {
	return e.Err
}

// RefreshError means the token pair could not be refreshed, so the session is invalid.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh token: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// User visible messages attached to events.
const (
	MessageLoadUserFailed = "Failed to load user data. Please login again."
	MessageRefreshFailed  = "Failed to refresh token. Please login again."
	MessageStorageFailed  = "Failed to read stored session. Please login again."
	MessageRefreshed      = "Token refreshed"
)
