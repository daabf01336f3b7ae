package config

import (
	"strings"
	"time"
)

const (
	apiBaseURLEnvVar     = "API_BASE_URL"
	providerEnvVar       = "LOGIN_PROVIDER"
	requestTimeoutEnvVar = "REQUEST_TIMEOUT"
	refreshSkewEnvVar    = "REFRESH_SKEW"
)

// APIConfig describes how to reach the external auth service.
type APIConfig interface {
	GetAPIBaseURL() string
	GetLoginProvider() string
	GetRequestTimeout() time.Duration
	GetRefreshSkew() time.Duration
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the auth service base URL without a trailing slash
func (API) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLEnvVar, "http://localhost:8080"), "/")
}

func (API) GetLoginProvider() string {
	return GetEnv(providerEnvVar, "google")
}

func (API) GetRequestTimeout() time.Duration {
	return GetDurationEnv(requestTimeoutEnvVar, 10*time.Second)
}

// GetRefreshSkew is how long before access token expiry a session counts as due for refresh
func (API) GetRefreshSkew() time.Duration {
	return GetDurationEnv(refreshSkewEnvVar, 1*time.Minute)
}
