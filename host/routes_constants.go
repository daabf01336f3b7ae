package host

// Route path constants
const (
	RouteLogin   = "/login"
	RouteRefresh = "/refresh"
	RouteLogout  = "/logout"

	// API Routes
	RouteAPISession = "/api/session"
	RouteMetrics    = "/metrics"
)
