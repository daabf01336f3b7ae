package session

import "net/url"

// Query parameters the auth service appends when redirecting back to the page.
const (
	ParamToken        = "token"
	ParamRefreshToken = "refreshToken"
	ParamError        = "error"
)

var redirectParams = []string{ParamToken, ParamRefreshToken, ParamError}

// HasRedirectParams reports whether q carries anything RestoreFromRedirect consumes.
func HasRedirectParams(q url.Values) bool {
	for _, p := range redirectParams {
		if _, ok := q[p]; ok {
			return true
		}
	}
	return false
}

// StripRedirectParams returns a copy of u without the redirect parameters, so tokens do
// not linger in history or leak through the Referer header. Other parameters are kept.
func StripRedirectParams(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	q := c.Query()
	for _, p := range redirectParams {
		q.Del(p)
	}
	c.RawQuery = q.Encode()
	c.ForceQuery = false
	return &c
}
