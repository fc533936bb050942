package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

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

// Registrar runs the OAuth registration flow.
type Registrar interface {
	Begin(ctx context.Context) (string, error)
	Complete(ctx context.Context, state, code string) (*db.User, error)
}

// AuthURLBuilder produces the consent page URL for a state token.
type AuthURLBuilder interface {
	AuthCodeURL(state string) string
}

// TokenSource yields fresh credentials for a user.
type TokenSource interface {
	EnsureFresh(ctx context.Context, userID uuid.UUID) (*db.Credentials, error)
}

// GatewayFactory builds an API client for an access token.
type GatewayFactory interface {
	ForAccessToken(ctx context.Context, accessToken string) spotify.Gateway
}

// Syncer reconciles local rows against the remote catalog.
type Syncer interface {
	SyncUser(ctx context.Context, gateway spotify.Gateway, userID uuid.UUID) (*sync.UserSyncResult, error)
	SyncPlaylist(ctx context.Context, gateway spotify.Gateway, playlistID string) (bool, error)
}

// Reporter aggregates feature stats for a playlist.
type Reporter interface {
	PlaylistReport(ctx context.Context, playlistID string, fields []string) (*stats.Report, error)
}

// PlaylistReader serves stored playlist rows.
type PlaylistReader interface {
	Get(ctx context.Context, spotifyID string) (*db.Playlist, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]db.Playlist, error)
	IsMember(ctx context.Context, userID uuid.UUID, playlistID string) (bool, error)
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	sessions  *SessionStore
	registrar Registrar
	authURL   AuthURLBuilder
	tokens    TokenSource
	factory   GatewayFactory
	syncer    Syncer
	reporter  Reporter
	playlists PlaylistReader
	log       zerolog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(
	sessions *SessionStore,
	registrar Registrar,
	authURL AuthURLBuilder,
	tokens TokenSource,
	factory GatewayFactory,
	syncer Syncer,
	reporter Reporter,
	playlists PlaylistReader,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		sessions:  sessions,
		registrar: registrar,
		authURL:   authURL,
		tokens:    tokens,
		factory:   factory,
		syncer:    syncer,
		reporter:  reporter,
		playlists: playlists,
		log:       logger.With().Str("component", "web").Logger(),
	}
}

// Login starts the OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.registrar.Begin(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("starting registration")
		respondError(w, http.StatusInternalServerError, "could not start login")
		return
	}
	http.Redirect(w, r, h.authURL.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback finishes the OAuth flow (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		respondError(w, http.StatusBadRequest, "authorization denied: "+errMsg)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		respondError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	user, err := h.registrar.Complete(r.Context(), state, code)
	if errors.Is(err, account.ErrUnknownState) {
		respondError(w, http.StatusBadRequest, "this login attempt is invalid or expired")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("completing registration")
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	session := h.sessions.Create(user.ID, user.DisplayName)
	h.sessions.SetCookie(w, session)
	http.Redirect(w, r, "/api/playlists", http.StatusSeeOther)
}

// Logout ends the session (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(session.ID)
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// ListPlaylists syncs the user's library and returns it in library order
// (GET /api/playlists).
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.GetFromRequest(r)
	if session == nil {
		respondError(w, http.StatusUnauthorized, "login required")
		return
	}

	gateway, ok := h.userGateway(r.Context(), w, session.UserID)
	if !ok {
		return
	}

	result, err := h.syncer.SyncUser(r.Context(), gateway, session.UserID)
	if err != nil {
		h.respondSyncError(w, err)
		return
	}

	playlists, err := h.playlists.ListForUser(r.Context(), session.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("listing playlists")
		respondError(w, http.StatusInternalServerError, "could not load playlists")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"playlists": playlistViews(playlists),
		"synced_at": result.SyncedAt,
		"updated":   result.Updated,
	})
}

// PlaylistStats serves the feature report for one playlist
// (GET /api/playlists/{id}). Public playlists are visible to anyone;
// private and collaborative ones only to members. A logged-in viewer
// triggers a staleness check before the report is built.
func (h *Handlers) PlaylistStats(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	session := h.sessions.GetFromRequest(r)

	playlist, err := h.playlists.Get(r.Context(), playlistID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("loading playlist")
		respondError(w, http.StatusInternalServerError, "could not load playlist")
		return
	}

	if playlist.Visibility != db.VisibilityPublic {
		if session == nil {
			respondError(w, http.StatusUnauthorized, "login required")
			return
		}
		member, err := h.playlists.IsMember(r.Context(), session.UserID, playlistID)
		if err != nil {
			h.log.Error().Err(err).Msg("checking membership")
			respondError(w, http.StatusInternalServerError, "could not load playlist")
			return
		}
		if !member {
			respondError(w, http.StatusForbidden, "not a member of this playlist")
			return
		}
	}

	if session != nil {
		gateway, ok := h.userGateway(r.Context(), w, session.UserID)
		if !ok {
			return
		}
		if _, err := h.syncer.SyncPlaylist(r.Context(), gateway, playlistID); err != nil {
			h.respondSyncError(w, err)
			return
		}
	}

	report, err := h.reporter.PlaylistReport(r.Context(), playlistID, fieldsParam(r))
	if err != nil {
		h.log.Error().Err(err).Msg("building report")
		respondError(w, http.StatusInternalServerError, "could not build report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// userGateway builds a gateway bound to the user's fresh access token.
// On failure it writes the response and returns ok=false.
func (h *Handlers) userGateway(ctx context.Context, w http.ResponseWriter, userID uuid.UUID) (spotify.Gateway, bool) {
	creds, err := h.tokens.EnsureFresh(ctx, userID)
	if errors.Is(err, auth.ErrCredentialsInvalid) {
		respondError(w, http.StatusUnauthorized, "spotify authorization revoked, please log in again")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("refreshing credentials")
		respondError(w, http.StatusInternalServerError, "could not refresh credentials")
		return nil, false
	}
	return h.factory.ForAccessToken(ctx, creds.AccessToken), true
}

func (h *Handlers) respondSyncError(w http.ResponseWriter, err error) {
	if errors.Is(err, spotify.ErrGatewayUnavailable) {
		respondError(w, http.StatusBadGateway, "spotify is unavailable, try again later")
		return
	}
	if errors.Is(err, auth.ErrCredentialsInvalid) {
		respondError(w, http.StatusUnauthorized, "spotify authorization revoked, please log in again")
		return
	}
	h.log.Error().Err(err).Msg("sync failed")
	respondError(w, http.StatusInternalServerError, "sync failed")
}

type playlistView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	Visibility string `json:"visibility"`
}

func playlistViews(playlists []db.Playlist) []playlistView {
	views := make([]playlistView, len(playlists))
	for i, p := range playlists {
		views[i] = playlistView{
			ID:         p.SpotifyID,
			Name:       p.Name,
			Owner:      p.Owner,
			Visibility: string(p.Visibility),
		}
	}
	return views
}

// fieldsParam parses the fields query parameter, e.g.
// ?fields=danceability,tempo. Empty means all fields.
func fieldsParam(r *http.Request) []string {
	raw := r.URL.Query().Get("fields")
	if raw == "" {
		return nil
	}
	var fields []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
