package host

import "net/http"

func (s *Server) initRoutes() {
	landing := s.config.GetLandingPath()
	if landing == "/" {
		landing = "/{$}"
	}
	s.RegisterRouteFunc("GET "+landing, ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("OPTIONS "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))

	if s.metrics != nil {
		s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics)
	}
}

// redirectNavigator navigates by answering the current request with a redirect.
type redirectNavigator struct {
	w http.ResponseWriter
	r *http.Request
}

func (n redirectNavigator) Navigate(url string) {
	http.Redirect(n.w, n.r, url, http.StatusFound)
}
