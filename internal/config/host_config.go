package config

const (
	landingPathEnvVar       = "LANDING_PATH"
	placeholderAvatarEnvVar = "PLACEHOLDER_AVATAR_URL"
	openBrowserEnvVar       = "OPEN_BROWSER"
)

// HostConfig configures the local page the auth service redirects back to.
type HostConfig interface {
	GetLandingPath() string
	GetPlaceholderAvatarURL() string
	GetOpenBrowser() bool
}

type Host struct{}

var _ HostConfig = Host{}

func (Host) GetLandingPath() string {
	return GetEnv(landingPathEnvVar, "/")
}

func (Host) GetPlaceholderAvatarURL() string {
	return GetEnv(placeholderAvatarEnvVar, "https://via.placeholder.com/64")
}

// GetOpenBrowser reports whether the host should open the login page in the system browser on start
func (Host) GetOpenBrowser() bool {
	return GetBoolEnv(openBrowserEnvVar, false)
}
