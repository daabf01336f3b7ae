package session

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/token"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenType = "Bearer"
	refreshFlightKey = "refresh"
)

// AuthAPI is the subset of the auth service the manager needs.
type AuthAPI interface {
	FetchCurrentUser(ctx context.Context, accessToken string) (*authmodel.UserProfile, error)
	Refresh(ctx context.Context, refreshToken string) (*authmodel.AuthResponse, error)
}

// Manager owns the single session, keeps storage in sync with it and tells subscribers
// about every change. It is safe for concurrent use.
type Manager struct {
	api     AuthAPI
	store   storage.Repo
	metrics metrics.Recorder
	nowTime func() time.Time

	lock    sync.Mutex
	state   State
	session *Session
	epoch   uint64 // bumped whenever the session is replaced or cleared
	seq     uint64
	last    Event

	refreshGroup singleflight.Group
	subs         subscribers
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithMetrics reports transitions and request outcomes to r
func WithMetrics(r metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewManager creates a logged out manager.
func NewManager(api AuthAPI, store storage.Repo, options ...ManagerOption) (*Manager, error) {
	if api == nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "[NewManager] auth API is required")
	}
	if store == nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "[NewManager] storage repo is required")
	}

	m := &Manager{
		api:     api,
		store:   store,
		metrics: metrics.Nop{},
		nowTime: time.Now,
		state:   StateLoggedOut,
	}
	for _, opt := range options {
		opt(m)
	}
	m.last = Event{State: StateLoggedOut, At: m.nowTime()}
	return m, nil
}

// Subscribe registers fn for every future event. Events are delivered synchronously
// on the goroutine that caused them, outside any manager lock.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	return m.subs.add(fn)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// Session returns a snapshot of the current session, nil when logged out.
func (m *Manager) Session() *Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.session.Clone()
}

// LastEvent returns the most recent event, or the initial logged out state.
func (m *Manager) LastEvent() Event {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.last
}

// NeedsRefresh reports whether the access token expires within skew. Unknown expiry never does.
func (m *Manager) NeedsRefresh(skew time.Duration) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil || m.session.ExpiresAt.IsZero() {
		return false
	}
	return !m.nowTime().Add(skew).Before(m.session.ExpiresAt)
}

// Start runs the page load flow: consume a redirect payload, else fall back to storage,
// then load the user. Failures end logged out with a message event. The result reports
// whether the caller should strip the redirect parameters from its URL.
func (m *Manager) Start(ctx context.Context, params url.Values) (cleanURL bool) {
	sess, cleanURL, err := m.RestoreFromRedirect(params)
	if err != nil {
		return cleanURL
	}
	if sess == nil {
		if sess, err = m.RestoreFromStorage(); err != nil {
			return cleanURL
		}
	}
	if sess == nil {
		return cleanURL
	}
	_, _ = m.LoadUser(ctx)
	return cleanURL
}

// RestoreFromRedirect consumes the parameters the auth service redirects back with.
// An error parameter fails closed with *AuthRedirectError. A token pair starts a
// Restoring session without a user. cleanURL is true whenever something was consumed.
func (m *Manager) RestoreFromRedirect(params url.Values) (sess *Session, cleanURL bool, err error) {
	if msg := params.Get(ParamError); msg != "" {
		redirectErr := &AuthRedirectError{Message: msg}
		log.Warn().Str("error", msg).Msg("Auth redirect carried an error")
		m.clear(msg, redirectErr, true)
		return nil, true, redirectErr
	}

	access, refresh := params.Get(ParamToken), params.Get(ParamRefreshToken)
	if access == "" || refresh == "" {
		return nil, HasRedirectParams(params), nil
	}

	log.Info().Msg("Restoring session from redirect")
	return m.restore(access, refresh), true, nil
}

// RestoreFromStorage starts a Restoring session from the stored token pair, if complete.
func (m *Manager) RestoreFromStorage() (*Session, error) {
	rec, ok, err := storage.LoadRecord(m.store)
	if err != nil {
		log.Err(err).Msg("Failed to read stored session")
		m.clear(MessageStorageFailed, err, true)
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	log.Info().Msg("Restoring session from storage")
	return m.restore(rec.AccessToken, rec.RefreshToken), nil
}

func (m *Manager) restore(access, refresh string) *Session {
	m.lock.Lock()
	m.epoch++
	m.session = &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    defaultTokenType,
		ExpiresAt:    token.ExpiryOf(access),
	}
	snapshot := m.session.Clone()
	ev := m.transitionLocked(StateRestoring, "", nil)
	m.lock.Unlock()

	m.publish(ev)
	return snapshot
}

// LoadUser fetches the current user with the session's access token. Success stores
// the token pair and activates the session. Any failure logs out and returns
// *FetchUserError. If the session was cleared or replaced while the request was in
// flight the outcome is discarded and ErrSessionChanged returned.
func (m *Manager) LoadUser(ctx context.Context) (*authmodel.UserProfile, error) {
	m.lock.Lock()
	if m.session == nil {
		m.lock.Unlock()
		return nil, errors.ErrNoSession
	}
	access, epoch := m.session.AccessToken, m.epoch
	m.lock.Unlock()

	start := m.nowTime()
	user, err := m.api.FetchCurrentUser(ctx, access)
	if err == nil && user == nil {
		err = errors.ErrEmptyProfile
	}
	m.metrics.RecordRequest(metrics.OperationLoadUser, err == nil, m.nowTime().Sub(start))

	m.lock.Lock()
	if m.epoch != epoch || m.session == nil || m.session.AccessToken != access {
		m.lock.Unlock()
		log.Debug().Msg("Discarding user load for a replaced session")
		return nil, errors.ErrSessionChanged
	}

	if err != nil {
		m.lock.Unlock()
		fetchErr := &FetchUserError{Err: err}
		log.Err(err).Msg("Failed to load user")
		m.clear(MessageLoadUserFailed, fetchErr, true)
		return nil, fetchErr
	}

	m.session.User = user.Clone()
	m.persistLocked()
	if m.state == StateRefreshing {
		// The refresh in flight will activate the session with its own user.
		m.lock.Unlock()
		return user.Clone(), nil
	}
	ev := m.transitionLocked(StateActive, "", nil)
	m.lock.Unlock()

	log.Info().Str("provider", user.Provider).Msg("Session active")
	m.publish(ev)
	return user.Clone(), nil
}

// Refresh replaces the whole session using the refresh token. Concurrent calls share
// one request and its result. Failure logs out and returns *RefreshError.
// Only an Active (or already Refreshing) session can be refreshed.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	m.lock.Lock()
	if m.session == nil {
		m.lock.Unlock()
		return nil, errors.ErrNoSession
	}
	if m.state != StateActive && m.state != StateRefreshing {
		st := m.state
		m.lock.Unlock()
		return nil, errors.Wrapf(errors.ErrSessionNotActive, "[Refresh] state %s", st)
	}
	m.lock.Unlock()

	// The shared request must not die with whichever caller happened to start it.
	flightCtx := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		return m.doRefresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (*Session, error) {
	m.lock.Lock()
	if m.session == nil {
		m.lock.Unlock()
		return nil, errors.ErrNoSession
	}
	refresh, epoch := m.session.RefreshToken, m.epoch
	ev := m.transitionLocked(StateRefreshing, "", nil)
	m.lock.Unlock()
	m.publish(ev)

	start := m.nowTime()
	resp, err := m.api.Refresh(ctx, refresh)
	now := m.nowTime()
	m.metrics.RecordRequest(metrics.OperationRefresh, err == nil, now.Sub(start))

	m.lock.Lock()
	if m.epoch != epoch {
		m.lock.Unlock()
		log.Debug().Msg("Discarding refresh for a replaced session")
		return nil, errors.ErrSessionChanged
	}

	if err == nil && !resp.HasTokenPair() {
		err = errors.ErrIncompleteTokens
	}
	if err != nil {
		m.lock.Unlock()
		refreshErr := &RefreshError{Err: err}
		log.Err(err).Msg("Failed to refresh token")
		m.clear(MessageRefreshFailed, refreshErr, true)
		return nil, refreshErr
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = defaultTokenType
	}
	expiresAt := resp.ExpiresAt(now)
	if expiresAt.IsZero() {
		expiresAt = token.ExpiryOf(resp.AccessToken)
	}
	m.epoch++
	m.session = &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt,
		User:         resp.User.Clone(),
	}
	m.persistLocked()
	snapshot := m.session.Clone()
	ev = m.transitionLocked(StateActive, MessageRefreshed, nil)
	m.lock.Unlock()

	log.Info().Msg("Token refreshed")
	m.publish(ev)
	return snapshot, nil
}

// Logout clears the session and storage. It is idempotent and never fails.
func (m *Manager) Logout() {
	m.clear("", nil, false)
}

// BeginLogin sends the user agent to the auth service authorization entrypoint.
func (m *Manager) BeginLogin(nav Navigator, authorizationURL string) {
	log.Info().Str("url", authorizationURL).Msg("Beginning login")
	nav.Navigate(authorizationURL)
}

// clear resets to LoggedOut. Events are emitted when something changed, or always
// when the clear reports a failure.
func (m *Manager) clear(message string, cause error, always bool) {
	m.lock.Lock()
	changed := m.session != nil || m.state != StateLoggedOut
	m.session = nil
	m.epoch++
	if err := storage.ClearRecord(m.store); err != nil {
		log.Err(err).Msg("Failed to clear stored session")
	}
	if !changed && !always {
		m.lock.Unlock()
		return
	}
	ev := m.transitionLocked(StateLoggedOut, message, cause)
	m.lock.Unlock()

	if changed {
		log.Info().Msg("Logged out")
	}
	m.publish(ev)
}

// persistLocked mirrors the current token pair into storage. A storage failure does not
// invalidate otherwise good tokens, so it is only logged.
func (m *Manager) persistLocked() {
	err := storage.SaveRecord(m.store, storage.Record{
		AccessToken:  m.session.AccessToken,
		RefreshToken: m.session.RefreshToken,
	})
	if err != nil {
		log.Err(err).Msg("Failed to store session")
	}
}

func (m *Manager) transitionLocked(state State, message string, cause error) Event {
	m.state = state
	m.seq++
	m.last = Event{
		ID:      uuid.NewString(),
		Seq:     m.seq,
		State:   state,
		Session: m.session.Clone(),
		Message: message,
		Err:     cause,
		At:      m.nowTime(),
	}
	return m.last
}

func (m *Manager) publish(ev Event) {
	m.metrics.RecordTransition(ev.State.String())
	for _, sub := range m.subs.snapshot() {
		sub.fn(ev)
	}
}
