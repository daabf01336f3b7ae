// Package authapi talks to the external auth service: current user, token refresh and
// the browser-navigated authorization entrypoint.
package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"golang.org/x/oauth2"
)

const (
	PathCurrentUser   = "/api/auth/me"
	PathRefresh       = "/api/auth/refresh"
	PathAuthorization = "/oauth2/authorization/"

	// RequestIDHeader correlates a client request with auth service logs
	RequestIDHeader = "X-Request-ID"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", errors.ErrUnexpectedStatus, e.StatusCode)
	}
	return fmt.Sprintf("%s: %d: %s", errors.ErrUnexpectedStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return errors.ErrUnexpectedStatus
}

// Client calls the auth service endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client (primarily for testing)
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the auth service at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.ErrEmptyBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("[authapi New] invalid base URL %q: %w", baseURL, err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the auth service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthorizationURL is where the browser goes to start login with provider.
func (c *Client) AuthorizationURL(provider string) string {
	return c.baseURL + PathAuthorization + url.PathEscape(provider)
}

// FetchCurrentUser returns the profile of the user that owns accessToken.
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (*authmodel.UserProfile, error) {
	if accessToken == "" {
		return nil, errors.ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathCurrentUser, nil)
	if err != nil {
		return nil, fmt.Errorf("[authapi FetchCurrentUser] build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	bearer := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
		CheckRedirect: c.httpClient.CheckRedirect,
		Jar:           c.httpClient.Jar,
	}

	var user authmodel.UserProfile
	if err := c.do(bearer, req, &user); err != nil {
		return nil, fmt.Errorf("[authapi FetchCurrentUser] %w", err)
	}
	return &user, nil
}

// Refresh exchanges refreshToken for a new token pair and user profile.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authmodel.AuthResponse, error) {
	if refreshToken == "" {
		return nil, errors.ErrNoSession
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("refreshToken", refreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathRefresh+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("[authapi Refresh] build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var resp authmodel.AuthResponse
	if err := c.do(c.httpClient, req, &resp); err != nil {
		return nil, fmt.Errorf("[authapi Refresh] %w", err)
	}
	if !resp.HasTokenPair() {
		return nil, fmt.Errorf("[authapi Refresh] %w", errors.ErrIncompleteTokens)
	}
	return &resp, nil
}

func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	req.Header.Set(RequestIDHeader, uuid.NewString())

	res, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
