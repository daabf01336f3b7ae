// Package fakeservice is an in-process stand-in for the auth service, used by tests.
package fakeservice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/authmodel"
)

// FakeService serves /api/auth/me and /api/auth/refresh from in-memory tables.
type FakeService struct {
	*httptest.Server

	lock      sync.RWMutex
	users     map[string]*authmodel.UserProfile  // access token -> user
	refreshes map[string]*authmodel.AuthResponse // refresh token -> response
	meStatus  int
	refStatus int
	gate      chan struct{} // blocks refresh handling until closed

	MeCalls      atomic.Int32
	RefreshCalls atomic.Int32
	LastAuthz    atomic.Value // string
	LastReqID    atomic.Value // string
}

// New starts a fake service. Close it with Close.
func New() *FakeService {
	f := &FakeService{
		users:     make(map[string]*authmodel.UserProfile),
		refreshes: make(map[string]*authmodel.AuthResponse),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+authapi.PathCurrentUser, f.handleMe)
	mux.HandleFunc("POST "+authapi.PathRefresh, f.handleRefresh)
	f.Server = httptest.NewServer(mux)
	return f
}

// AddUser makes accessToken resolve to user.
func (f *FakeService) AddUser(accessToken string, user *authmodel.UserProfile) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.users[accessToken] = user
}

// AddRefresh makes refreshToken exchange for resp. The new access token also resolves to resp.User.
func (f *FakeService) AddRefresh(refreshToken string, resp *authmodel.AuthResponse) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshes[refreshToken] = resp
	if resp.User != nil && resp.AccessToken != "" {
		f.users[resp.AccessToken] = resp.User
	}
}

// HoldRefreshes blocks refresh requests until release is called.
func (f *FakeService) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	f.lock.Lock()
	f.gate = gate
	f.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// FailMe forces every /me response to status.
func (f *FakeService) FailMe(status int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.meStatus = status
}

// FailRefresh forces every refresh response to status.
func (f *FakeService) FailRefresh(status int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refStatus = status
}

func (f *FakeService) handleMe(w http.ResponseWriter, r *http.Request) {
	f.MeCalls.Add(1)
	f.LastAuthz.Store(r.Header.Get("Authorization"))
	f.LastReqID.Store(r.Header.Get(authapi.RequestIDHeader))

	f.lock.RLock()
	status := f.meStatus
	user := f.users[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	f.lock.RUnlock()

	if status != 0 {
		http.Error(w, `{"error":"forced"}`, status)
		return
	}
	if user == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, user)
}

func (f *FakeService) handleRefresh(w http.ResponseWriter, r *http.Request) {
	f.RefreshCalls.Add(1)
	f.LastReqID.Store(r.Header.Get(authapi.RequestIDHeader))

	f.lock.RLock()
	gate := f.gate
	f.lock.RUnlock()
	if gate != nil {
		<-gate
	}

	f.lock.RLock()
	status := f.refStatus
	resp := f.refreshes[r.URL.Query().Get("refreshToken")]
	f.lock.RUnlock()

	if status != 0 {
		http.Error(w, `{"error":"forced"}`, status)
		return
	}
	if resp == nil {
		http.Error(w, `{"error":"Invalid refresh token"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
