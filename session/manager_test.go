package session_test

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/authapi/fakeservice"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/stretchr/testify/require"
)

// testFixture holds all test dependencies
type testFixture struct {
	svc     *fakeservice.FakeService
	store   *storage.InMemoryRepo
	manager *session.Manager

	lock   sync.Mutex
	events []session.Event
}

func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()

	svc := fakeservice.New()
	t.Cleanup(svc.Close)

	client, err := authapi.New(svc.URL, authapi.WithTimeout(2*time.Second))
	require.NoError(t, err)

	f := &testFixture{svc: svc, store: storage.NewInMemoryRepo()}
	f.manager, err = session.NewManager(client, f.store, options...)
	require.NoError(t, err)
	f.manager.Subscribe(func(ev session.Event) {
		f.lock.Lock()
		defer f.lock.Unlock()
		f.events = append(f.events, ev)
	})
	return f
}

func (f *testFixture) recorded() []session.Event {
	f.lock.Lock()
	defer f.lock.Unlock()
	out := make([]session.Event, len(f.events))
	copy(out, f.events)
	return out
}

func (f *testFixture) states() []session.State {
	var out []session.State
	for _, ev := range f.recorded() {
		out = append(out, ev.State)
	}
	return out
}

func (f *testFixture) requireStored(t *testing.T, access, refresh string) {
	t.Helper()
	rec, ok, err := storage.LoadRecord(f.store)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, storage.Record{AccessToken: access, RefreshToken: refresh}, rec)
}

func (f *testFixture) requireStorageCleared(t *testing.T) {
	t.Helper()
	require.Equal(t, 0, f.store.Len())
}

func (f *testFixture) activate(t *testing.T, access, refresh string) {
	t.Helper()
	f.svc.AddUser(access, joProfile())
	f.manager.Start(context.Background(), url.Values{"token": {access}, "refreshToken": {refresh}})
	require.Equal(t, session.StateActive, f.manager.State())
}

func joProfile() *authmodel.UserProfile {
	return &authmodel.UserProfile{Name: "Jo", Email: "jo@x.com", Provider: "google"}
}

func TestNewManager(t *testing.T) {
	_, err := session.NewManager(nil, storage.NewInMemoryRepo())
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = session.NewManager(&stubAPI{}, nil)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	m, err := session.NewManager(&stubAPI{}, storage.NewInMemoryRepo())
	require.NoError(t, err)
	require.Equal(t, session.StateLoggedOut, m.State())
	require.Nil(t, m.Session())
	require.Equal(t, session.StateLoggedOut, m.LastEvent().State)
}

func TestRestoreFromRedirect_Error(t *testing.T) {
	cases := []url.Values{
		{"error": {"access_denied"}},
		{"error": {"access_denied"}, "token": {"AAA"}, "refreshToken": {"BBB"}},
		{"error": {"x"}, "token": {"AAA"}},
	}

	for _, params := range cases {
		t.Run(params.Encode(), func(t *testing.T) {
			f := setupTestFixture(t)
			require.NoError(t, storage.SaveRecord(f.store, storage.Record{AccessToken: "OLD", RefreshToken: "OLD"}))

			sess, cleanURL, err := f.manager.RestoreFromRedirect(params)
			require.Nil(t, sess)
			require.True(t, cleanURL)

			var redirectErr *session.AuthRedirectError
			require.ErrorAs(t, err, &redirectErr)
			require.Equal(t, params.Get("error"), redirectErr.Message)

			require.Nil(t, f.manager.Session())
			require.Equal(t, session.StateLoggedOut, f.manager.State())
			f.requireStorageCleared(t)

			events := f.recorded()
			require.Len(t, events, 1)
			require.Equal(t, params.Get("error"), events[0].Message)
			require.ErrorAs(t, events[0].Err, &redirectErr)
		})
	}
}

func TestRestoreFromRedirect_Tokens(t *testing.T) {
	f := setupTestFixture(t)

	sess, cleanURL, err := f.manager.RestoreFromRedirect(url.Values{
		"token":        {"AAA"},
		"refreshToken": {"BBB"},
		"page":         {"2"},
	})
	require.NoError(t, err)
	require.True(t, cleanURL)
	require.Equal(t, "AAA", sess.AccessToken)
	require.Equal(t, "BBB", sess.RefreshToken)
	require.Nil(t, sess.User)
	require.Equal(t, session.StateRestoring, f.manager.State())

	// Nothing is persisted until the profile fetch confirms the tokens.
	f.requireStorageCleared(t)
	require.Equal(t, 0, int(f.svc.MeCalls.Load()))
}

func TestRestoreFromRedirect_NoPayload(t *testing.T) {
	f := setupTestFixture(t)

	sess, cleanURL, err := f.manager.RestoreFromRedirect(url.Values{"page": {"2"}})
	require.NoError(t, err)
	require.Nil(t, sess)
	require.False(t, cleanURL)

	sess, cleanURL, err = f.manager.RestoreFromRedirect(url.Values{"token": {"AAA"}})
	require.NoError(t, err)
	require.Nil(t, sess)
	require.True(t, cleanURL)

	require.Empty(t, f.recorded())
	require.Equal(t, session.StateLoggedOut, f.manager.State())
}

func TestRestoreFromStorage(t *testing.T) {
	t.Run("complete record", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, storage.SaveRecord(f.store, storage.Record{AccessToken: "AAA", RefreshToken: "BBB"}))

		sess, err := f.manager.RestoreFromStorage()
		require.NoError(t, err)
		require.Equal(t, "AAA", sess.AccessToken)
		require.Equal(t, "BBB", sess.RefreshToken)
		require.Nil(t, sess.User)
		require.Equal(t, session.StateRestoring, f.manager.State())
	})

	t.Run("half record", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Set(storage.RefreshTokenKey, "BBB"))

		sess, err := f.manager.RestoreFromStorage()
		require.NoError(t, err)
		require.Nil(t, sess)
		require.Equal(t, session.StateLoggedOut, f.manager.State())
	})

	t.Run("read failure fails closed", func(t *testing.T) {
		m, err := session.NewManager(&stubAPI{}, brokenStore{})
		require.NoError(t, err)

		var got []session.Event
		m.Subscribe(func(ev session.Event) { got = append(got, ev) })

		sess, err := m.RestoreFromStorage()
		require.Error(t, err)
		require.Nil(t, sess)
		require.Len(t, got, 1)
		require.Equal(t, session.MessageStorageFailed, got[0].Message)
	})
}

func TestStart_RedirectScenario(t *testing.T) {
	f := setupTestFixture(t)
	f.svc.AddUser("AAA", joProfile())

	cleanURL := f.manager.Start(context.Background(), url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.True(t, cleanURL)

	require.Equal(t, session.StateActive, f.manager.State())
	sess := f.manager.Session()
	require.Equal(t, "AAA", sess.AccessToken)
	require.Equal(t, "BBB", sess.RefreshToken)
	require.Equal(t, "Jo", sess.User.Name)
	require.Equal(t, "jo@x.com", sess.User.Email)
	require.Equal(t, "google", sess.User.Provider)
	f.requireStored(t, "AAA", "BBB")

	require.Equal(t, []session.State{session.StateRestoring, session.StateActive}, f.states())
	require.Equal(t, "Bearer AAA", f.svc.LastAuthz.Load())
}

func TestStart_FromStorage(t *testing.T) {
	f := setupTestFixture(t)
	f.svc.AddUser("AAA", joProfile())
	require.NoError(t, storage.SaveRecord(f.store, storage.Record{AccessToken: "AAA", RefreshToken: "BBB"}))

	cleanURL := f.manager.Start(context.Background(), url.Values{})
	require.False(t, cleanURL)
	require.Equal(t, session.StateActive, f.manager.State())
	require.Equal(t, "Jo", f.manager.Session().User.Name)
}

func TestStart_NothingToRestore(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.manager.Start(context.Background(), nil))
	require.Equal(t, session.StateLoggedOut, f.manager.State())
	require.Empty(t, f.recorded())
	require.Equal(t, 0, int(f.svc.MeCalls.Load()))
}

func TestLoadUser_Unauthorized(t *testing.T) {
	f := setupTestFixture(t)
	f.svc.FailMe(http.StatusUnauthorized)
	require.NoError(t, storage.SaveRecord(f.store, storage.Record{AccessToken: "AAA", RefreshToken: "BBB"}))

	_, err := f.manager.RestoreFromStorage()
	require.NoError(t, err)

	user, err := f.manager.LoadUser(context.Background())
	require.Nil(t, user)

	var fetchErr *session.FetchUserError
	require.ErrorAs(t, err, &fetchErr)
	var statusErr *authapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	require.Equal(t, session.StateLoggedOut, f.manager.State())
	require.Nil(t, f.manager.Session())
	f.requireStorageCleared(t)

	events := f.recorded()
	last := events[len(events)-1]
	require.Equal(t, session.StateLoggedOut, last.State)
	require.Equal(t, session.MessageLoadUserFailed, last.Message)
}

func TestLoadUser_NoSession(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.manager.LoadUser(context.Background())
	require.ErrorIs(t, err, errors.ErrNoSession)
}

func TestLoadUser_EmptyProfile(t *testing.T) {
	api := &stubAPI{}
	store := storage.NewInMemoryRepo()
	m, err := session.NewManager(api, store)
	require.NoError(t, err)

	m.Start(context.Background(), url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.Equal(t, session.StateLoggedOut, m.State())
	require.Equal(t, 0, store.Len())
}

func TestLoadUser_LogoutWhileInFlight(t *testing.T) {
	api := &stubAPI{
		fetchStarted: make(chan struct{}),
		fetchRelease: make(chan struct{}),
		user:         joProfile(),
	}
	store := storage.NewInMemoryRepo()
	m, err := session.NewManager(api, store)
	require.NoError(t, err)

	_, _, err = m.RestoreFromRedirect(url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.LoadUser(context.Background())
		done <- err
	}()

	<-api.fetchStarted
	m.Logout()
	close(api.fetchRelease)

	require.ErrorIs(t, <-done, errors.ErrSessionChanged)
	require.Equal(t, session.StateLoggedOut, m.State())
	require.Nil(t, m.Session())
	require.Equal(t, 0, store.Len())
}

func TestLoadUser_RefreshWhileInFlight(t *testing.T) {
	cases := []struct {
		name     string
		fetchErr error
	}{
		{name: "stale failure", fetchErr: &authapi.StatusError{StatusCode: http.StatusUnauthorized}},
		{name: "stale success"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refreshed := &authmodel.UserProfile{ID: 7, Name: "Jo Refreshed", Email: "jo@example.com", Provider: "google"}
			api := &heldFetchAPI{
				started: make(chan struct{}),
				release: make(chan struct{}),
				user:    joProfile(),
				err:     tc.fetchErr,
				refresh: &authmodel.AuthResponse{AccessToken: "CCC", RefreshToken: "DDD", User: refreshed},
			}
			store := storage.NewInMemoryRepo()
			m, err := session.NewManager(api, store)
			require.NoError(t, err)

			m.Start(context.Background(), url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
			require.Equal(t, session.StateActive, m.State())

			done := make(chan error, 1)
			go func() {
				_, err := m.LoadUser(context.Background())
				done <- err
			}()
			<-api.started

			_, err = m.Refresh(context.Background())
			require.NoError(t, err)
			require.Equal(t, "CCC", m.Session().AccessToken)

			close(api.release)
			require.ErrorIs(t, <-done, errors.ErrSessionChanged)

			require.Equal(t, session.StateActive, m.State())
			sess := m.Session()
			require.Equal(t, "CCC", sess.AccessToken)
			require.Equal(t, "DDD", sess.RefreshToken)
			require.Equal(t, "Jo Refreshed", sess.User.Name)

			rec, ok, err := storage.LoadRecord(store)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, storage.Record{AccessToken: "CCC", RefreshToken: "DDD"}, rec)
		})
	}
}

func TestRefresh_Scenario(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, session.WithNowTime(func() time.Time { return now }))
	f.activate(t, "AAA", "BBB")

	newUser := &authmodel.UserProfile{Name: "Jo Updated", Email: "jo@x.com", Provider: "GOOGLE"}
	f.svc.AddRefresh("BBB", &authmodel.AuthResponse{
		AccessToken:  "CCC",
		RefreshToken: "DDD",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		User:         newUser,
	})

	sess, err := f.manager.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "CCC", sess.AccessToken)
	require.Equal(t, "DDD", sess.RefreshToken)
	require.Equal(t, newUser, sess.User)
	require.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	require.Equal(t, session.StateActive, f.manager.State())
	require.Equal(t, sess, f.manager.Session())
	f.requireStored(t, "CCC", "DDD")

	events := f.recorded()
	require.Equal(t, []session.State{
		session.StateRestoring,
		session.StateActive,
		session.StateRefreshing,
		session.StateActive,
	}, f.states())
	require.Equal(t, session.MessageRefreshed, events[len(events)-1].Message)

	require.True(t, f.manager.NeedsRefresh(2*time.Hour))
	require.False(t, f.manager.NeedsRefresh(time.Minute))
}

func TestRefresh_Rejected(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")
	f.svc.FailRefresh(http.StatusBadRequest)

	sess, err := f.manager.Refresh(context.Background())
	require.Nil(t, sess)

	var refreshErr *session.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.Equal(t, session.StateLoggedOut, f.manager.State())
	require.Nil(t, f.manager.Session())
	f.requireStorageCleared(t)

	events := f.recorded()
	require.Equal(t, session.MessageRefreshFailed, events[len(events)-1].Message)
}

func TestRefresh_IncompleteResponseFailsClosed(t *testing.T) {
	api := &stubAPI{user: joProfile(), refresh: &authmodel.AuthResponse{AccessToken: "CCC"}}
	store := storage.NewInMemoryRepo()
	m, err := session.NewManager(api, store)
	require.NoError(t, err)
	m.Start(context.Background(), url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.Equal(t, session.StateActive, m.State())

	_, err = m.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrIncompleteTokens)
	require.Equal(t, session.StateLoggedOut, m.State())
	require.Equal(t, 0, store.Len())
}

func TestRefresh_RequiresActiveSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrNoSession)

	_, _, err = f.manager.RestoreFromRedirect(url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.NoError(t, err)
	_, err = f.manager.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrSessionNotActive)
	require.Equal(t, session.StateRestoring, f.manager.State())
	require.Equal(t, 0, int(f.svc.RefreshCalls.Load()))
}

func TestRefresh_SingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")
	f.svc.AddRefresh("BBB", &authmodel.AuthResponse{AccessToken: "CCC", RefreshToken: "DDD", User: joProfile()})
	release := f.svc.HoldRefreshes()
	defer release()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*session.Session, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.manager.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.svc.RefreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.manager.State() == session.StateRefreshing }, 2*time.Second, 5*time.Millisecond)
	// Give late callers a chance to pile onto the shared flight.
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "CCC", results[i].AccessToken)
		require.Equal(t, "DDD", results[i].RefreshToken)
	}
	require.Equal(t, int32(1), f.svc.RefreshCalls.Load())
	f.requireStored(t, "CCC", "DDD")
}

func TestRefresh_CallerCancelDoesNotAbortFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")
	f.svc.AddRefresh("BBB", &authmodel.AuthResponse{AccessToken: "CCC", RefreshToken: "DDD", User: joProfile()})
	release := f.svc.HoldRefreshes()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.svc.RefreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	release()
	require.Eventually(t, func() bool {
		s := f.manager.Session()
		return s != nil && s.AccessToken == "CCC"
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, session.StateActive, f.manager.State())
}

func TestRefresh_LogoutWhileInFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")
	f.svc.AddRefresh("BBB", &authmodel.AuthResponse{AccessToken: "CCC", RefreshToken: "DDD", User: joProfile()})
	release := f.svc.HoldRefreshes()
	defer release()

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return f.svc.RefreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.manager.Logout()
	release()

	require.ErrorIs(t, <-done, errors.ErrSessionChanged)
	require.Equal(t, session.StateLoggedOut, f.manager.State())
	f.requireStorageCleared(t)
}

func TestLogout_Idempotent(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")
	before := len(f.recorded())

	f.manager.Logout()
	require.Equal(t, session.StateLoggedOut, f.manager.State())
	require.Nil(t, f.manager.Session())
	f.requireStorageCleared(t)
	require.Len(t, f.recorded(), before+1)

	f.manager.Logout()
	require.Equal(t, session.StateLoggedOut, f.manager.State())
	require.Nil(t, f.manager.Session())
	f.requireStorageCleared(t)
	require.Len(t, f.recorded(), before+1)
}

func TestSessionSnapshotsAreIsolated(t *testing.T) {
	f := setupTestFixture(t)
	f.activate(t, "AAA", "BBB")

	snap := f.manager.Session()
	snap.AccessToken = "tampered"
	snap.User.Name = "tampered"

	require.Equal(t, "AAA", f.manager.Session().AccessToken)
	require.Equal(t, "Jo", f.manager.Session().User.Name)
}

func TestSubscribe(t *testing.T) {
	f := setupTestFixture(t)

	var order []string
	unsubA := f.manager.Subscribe(func(session.Event) { order = append(order, "a") })
	f.manager.Subscribe(func(session.Event) { order = append(order, "b") })

	_, _, err := f.manager.RestoreFromRedirect(url.Values{"token": {"AAA"}, "refreshToken": {"BBB"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, order)

	unsubA()
	unsubA()
	f.manager.Logout()
	require.Equal(t, []string{"a", "b", "b"}, order)

	events := f.recorded()
	require.Len(t, events, 2)
	require.Less(t, events[0].Seq, events[1].Seq)
	require.NotEmpty(t, events[0].ID)
	require.Equal(t, "AAA", events[0].Session.AccessToken)
	require.Nil(t, events[1].Session)
}

func TestBeginLogin(t *testing.T) {
	f := setupTestFixture(t)

	var navigated string
	f.manager.BeginLogin(session.NavigatorFunc(func(u string) { navigated = u }), "http://localhost:8080/oauth2/authorization/google")
	require.Equal(t, "http://localhost:8080/oauth2/authorization/google", navigated)
	require.Equal(t, session.StateLoggedOut, f.manager.State())
}

// stubAPI returns canned answers; fetch can be blocked to observe in-flight behaviour.
type stubAPI struct {
	user    *authmodel.UserProfile
	refresh *authmodel.AuthResponse

	fetchStarted chan struct{}
	fetchRelease chan struct{}
}

func (s *stubAPI) FetchCurrentUser(ctx context.Context, accessToken string) (*authmodel.UserProfile, error) {
	if s.fetchStarted != nil {
		close(s.fetchStarted)
		<-s.fetchRelease
	}
	return s.user, nil
}

func (s *stubAPI) Refresh(ctx context.Context, refreshToken string) (*authmodel.AuthResponse, error) {
	return s.refresh, nil
}

// heldFetchAPI answers the first user fetch at once and holds the second until release
// is closed, then answers it with err (or user when err is nil).
type heldFetchAPI struct {
	user    *authmodel.UserProfile
	err     error
	refresh *authmodel.AuthResponse

	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (h *heldFetchAPI) FetchCurrentUser(ctx context.Context, accessToken string) (*authmodel.UserProfile, error) {
	if h.calls.Add(1) == 1 {
		return h.user, nil
	}
	close(h.started)
	<-h.release
	if h.err != nil {
		return nil, h.err
	}
	return h.user, nil
}

func (h *heldFetchAPI) Refresh(ctx context.Context, refreshToken string) (*authmodel.AuthResponse, error) {
	return h.refresh, nil
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.ErrInternal }
func (brokenStore) Set(string, string) error         { return errors.ErrInternal }
func (brokenStore) Remove(string) error              { return errors.ErrInternal }
