package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundmirror/soundmirror/internal/account"
	"github.com/soundmirror/soundmirror/internal/auth"
	"github.com/soundmirror/soundmirror/internal/db"
	"github.com/soundmirror/soundmirror/internal/spotify"
	"github.com/soundmirror/soundmirror/internal/stats"
	"github.com/soundmirror/soundmirror/internal/sync"
)

type fakeRegistrar struct {
	state       string
	user        *db.User
	completeErr error
}

func (f *fakeRegistrar) Begin(context.Context) (string, error) {
	return f.state, nil
}

func (f *fakeRegistrar) Complete(_ context.Context, state, code string) (*db.User, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.user, nil
}

type fakeAuthURL struct{}

func (fakeAuthURL) AuthCodeURL(state string) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

type fakeTokens struct {
	creds *db.Credentials
	err   error
}

func (f *fakeTokens) EnsureFresh(context.Context, uuid.UUID) (*db.Credentials, error) {
	return f.creds, f.err
}

type fakeWebFactory struct{}

func (fakeWebFactory) ForAccessToken(context.Context, string) spotify.Gateway { return nil }

type fakeSyncer struct {
	userErr     error
	playlistErr error
	userCalls   int
	plCalls     int
}

func (f *fakeSyncer) SyncUser(context.Context, spotify.Gateway, uuid.UUID) (*sync.UserSyncResult, error) {
	f.userCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &sync.UserSyncResult{Playlists: 2, Updated: 1, SyncedAt: time.Now()}, nil
}

func (f *fakeSyncer) SyncPlaylist(context.Context, spotify.Gateway, string) (bool, error) {
	f.plCalls++
	return false, f.playlistErr
}

type fakeReporter struct {
	fields []string
}

func (f *fakeReporter) PlaylistReport(_ context.Context, playlistID string, fields []string) (*stats.Report, error) {
	f.fields = fields
	return &stats.Report{Playlist: "Morning Run", Means: map[string]float64{"tempo": 165}}, nil
}

type fakePlaylists struct {
	playlists map[string]*db.Playlist
	members   map[string]bool
	list      []db.Playlist
}

func (f *fakePlaylists) Get(_ context.Context, id string) (*db.Playlist, error) {
	p, ok := f.playlists[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (f *fakePlaylists) ListForUser(context.Context, uuid.UUID) ([]db.Playlist, error) {
	return f.list, nil
}

func (f *fakePlaylists) IsMember(_ context.Context, userID uuid.UUID, playlistID string) (bool, error) {
	return f.members[userID.String()+"|"+playlistID], nil
}

type env struct {
	handlers  *Handlers
	sessions  *SessionStore
	registrar *fakeRegistrar
	tokens    *fakeTokens
	syncer    *fakeSyncer
	reporter  *fakeReporter
	playlists *fakePlaylists
	router    chi.Router
}

func newEnv() *env {
	e := &env{
		sessions:  NewSessionStore(),
		registrar: &fakeRegistrar{state: "state-1", user: &db.User{ID: uuid.New(), DisplayName: "Alice"}},
		tokens:    &fakeTokens{creds: &db.Credentials{AccessToken: "access"}},
		syncer:    &fakeSyncer{},
		reporter:  &fakeReporter{},
		playlists: &fakePlaylists{
			playlists: make(map[string]*db.Playlist),
			members:   make(map[string]bool),
		},
	}
	e.handlers = NewHandlers(
		e.sessions, e.registrar, fakeAuthURL{}, e.tokens, fakeWebFactory{},
		e.syncer, e.reporter, e.playlists, zerolog.Nop(),
	)
	e.router = chi.NewRouter()
	e.router.Get("/auth/login", e.handlers.Login)
	e.router.Get("/callback", e.handlers.Callback)
	e.router.Post("/auth/logout", e.handlers.Logout)
	e.router.Get("/api/playlists", e.handlers.ListPlaylists)
	e.router.Get("/api/playlists/{id}", e.handlers.PlaylistStats)
	return e
}

func (e *env) loggedIn(t *testing.T) (*Session, *http.Cookie) {
	t.Helper()
	session := e.sessions.Create(uuid.New(), "Alice")
	return session, &http.Cookie{Name: sessionCookieName, Value: session.ID}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRedirectsWithState(t *testing.T) {
	e := newEnv()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "state=state-1") {
		t.Errorf("Location = %q, want state parameter", location)
	}
}

func TestCallbackOpensSession(t *testing.T) {
	e := newEnv()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/callback?state=state-1&code=abc", nil))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("no session cookie set")
	}
	session := e.sessions.Get(sessionCookie.Value)
	if session == nil || session.DisplayName != "Alice" {
		t.Errorf("session = %+v, want Alice's session", session)
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	e := newEnv()
	e.registrar.completeErr = account.ErrUnknownState

	rec := e.do(httptest.NewRequest(http.MethodGet, "/callback?state=bogus&code=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCallbackRejectsProviderError(t *testing.T) {
	e := newEnv()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	e := newEnv()
	session, cookie := e.loggedIn(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if e.sessions.Get(session.ID) != nil {
		t.Error("session still valid after logout")
	}
}

func TestListPlaylistsRequiresLogin(t *testing.T) {
	e := newEnv()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/playlists", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestListPlaylistsSyncsAndLists(t *testing.T) {
	e := newEnv()
	_, cookie := e.loggedIn(t)
	e.playlists.list = []db.Playlist{
		{SpotifyID: "p1", Name: "First", Visibility: db.VisibilityPublic},
		{SpotifyID: "p2", Name: "Second", Visibility: db.VisibilityPrivate},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/playlists", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if e.syncer.userCalls != 1 {
		t.Errorf("SyncUser calls = %d, want 1", e.syncer.userCalls)
	}

	var body struct {
		Playlists []playlistView `json:"playlists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Playlists) != 2 || body.Playlists[0].ID != "p1" {
		t.Errorf("playlists = %+v, want p1 then p2", body.Playlists)
	}
}

func TestListPlaylistsSurfacesGatewayOutage(t *testing.T) {
	e := newEnv()
	_, cookie := e.loggedIn(t)
	e.syncer.userErr = spotify.ErrGatewayUnavailable

	req := httptest.NewRequest(http.MethodGet, "/api/playlists", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestListPlaylistsSurfacesRevokedCredentials(t *testing.T) {
	e := newEnv()
	_, cookie := e.loggedIn(t)
	e.tokens.err = auth.ErrCredentialsInvalid

	req := httptest.NewRequest(http.MethodGet, "/api/playlists", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPlaylistStatsPublicIsOpen(t *testing.T) {
	e := newEnv()
	e.playlists.playlists["p1"] = &db.Playlist{SpotifyID: "p1", Visibility: db.VisibilityPublic}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/playlists/p1?fields=tempo,energy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(e.reporter.fields) != 2 || e.reporter.fields[0] != "tempo" {
		t.Errorf("fields = %v, want [tempo energy]", e.reporter.fields)
	}
	// Anonymous viewers never trigger a sync.
	if e.syncer.plCalls != 0 {
		t.Errorf("SyncPlaylist calls = %d, want 0", e.syncer.plCalls)
	}
}

func TestPlaylistStatsPrivateRequiresMembership(t *testing.T) {
	e := newEnv()
	e.playlists.playlists["p1"] = &db.Playlist{SpotifyID: "p1", Visibility: db.VisibilityPrivate}

	// Anonymous: 401.
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/playlists/p1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	// Logged in but not a member: 403.
	_, cookie := e.loggedIn(t)
	req := httptest.NewRequest(http.MethodGet, "/api/playlists/p1", nil)
	req.AddCookie(cookie)
	rec = e.do(req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-member status = %d, want 403", rec.Code)
	}
}

func TestPlaylistStatsMemberGetsFreshReport(t *testing.T) {
	e := newEnv()
	e.playlists.playlists["p1"] = &db.Playlist{SpotifyID: "p1", Visibility: db.VisibilityCollaborative}
	session, cookie := e.loggedIn(t)
	e.playlists.members[session.UserID.String()+"|p1"] = true

	req := httptest.NewRequest(http.MethodGet, "/api/playlists/p1", nil)
	req.AddCookie(cookie)
	rec := e.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if e.syncer.plCalls != 1 {
		t.Errorf("SyncPlaylist calls = %d, want 1 (staleness check for members)", e.syncer.plCalls)
	}

	var report stats.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Playlist != "Morning Run" {
		t.Errorf("playlist = %q, want Morning Run", report.Playlist)
	}
}

func TestPlaylistStatsUnknownPlaylist(t *testing.T) {
	e := newEnv()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/playlists/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	store := NewSessionStore()
	session := store.Create(uuid.New(), "Alice")
	session.CreatedAt = time.Now().Add(-sessionTTL - time.Minute)

	if store.Get(session.ID) != nil {
		t.Error("expired session still readable")
	}

	store.mu.RLock()
	_, kept := store.sessions[session.ID]
	store.mu.RUnlock()
	if kept {
		t.Error("expired session still stored after read")
	}
}
