package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/pkg/httpx"
	"github.com/harborview/mediahub/pkg/slogx"
)

// SessionsHandler serves the session listing and the self-reporting
// endpoints: capabilities, playback state and now-viewing updates all apply
// to the session identified by the caller's own device identity.
type SessionsHandler struct {
	Registry *service.SessionRegistry
}

// selfSession resolves (creating if needed) the caller's own session from
// its request identity. Reporting anything requires a client identity.
func (h *SessionsHandler) selfSession(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
	ident := IdentityFrom(r.Context())
	session, err := h.Registry.LogActivity(
		r.Context(),
		ident.Client, ident.Version, ident.DeviceID, ident.Device,
		httpx.IPKeyExtractor(r),
		ident.User,
	)
	if errors.Is(err, service.ErrMissingDeviceInfo) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "client identity headers are required")
		return domain.Session{}, false
	}
	if err != nil {
		slogx.FromContext(r.Context()).Error("session resolution failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to resolve session")
		return domain.Session{}, false
	}
	return session, true
}

// HandleList serves GET /v1/sessions. Administrators see everything;
// everyone else sees the sessions they own or participate in.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ident := IdentityFrom(r.Context())

	var sessions []domain.Session
	if ident.IsAdministrator() {
		sessions = h.Registry.List()
	} else if ident.User != nil {
		sessions = h.Registry.ListForUser(ident.User.ID)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	httpx.WriteJSON(w, http.StatusOK, sessions)
}

// HandleCapabilities serves POST /v1/sessions/capabilities.
func (h *SessionsHandler) HandleCapabilities(w http.ResponseWriter, r *http.Request) {
	var caps domain.ClientCapabilities
	if err := json.NewDecoder(r.Body).Decode(&caps); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	session, ok := h.selfSession(w, r)
	if !ok {
		return
	}
	if err := h.Registry.UpdateCapabilities(r.Context(), session.ID, caps); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "session is gone")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type playbackStartRequest struct {
	Item      domain.NowPlayingItem
	PlayState domain.PlayState
}

// HandlePlaybackStart serves POST /v1/sessions/playing.
func (h *SessionsHandler) HandlePlaybackStart(w http.ResponseWriter, r *http.Request) {
	var req playbackStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Item.ID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "item id is required")
		return
	}

	session, ok := h.selfSession(w, r)
	if !ok {
		return
	}
	if err := h.Registry.ReportPlaybackStart(r.Context(), session.ID, req.Item, req.PlayState); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "session is gone")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePlaybackProgress serves POST /v1/sessions/playing/progress.
func (h *SessionsHandler) HandlePlaybackProgress(w http.ResponseWriter, r *http.Request) {
	var state domain.PlayState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	session, ok := h.selfSession(w, r)
	if !ok {
		return
	}
	if err := h.Registry.ReportPlaybackProgress(r.Context(), session.ID, state); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "session is gone")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePlaybackStopped serves POST /v1/sessions/playing/stopped.
func (h *SessionsHandler) HandlePlaybackStopped(w http.ResponseWriter, r *http.Request) {
	var state domain.PlayState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	session, ok := h.selfSession(w, r)
	if !ok {
		return
	}
	if err := h.Registry.ReportPlaybackStopped(r.Context(), session.ID, state); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "session is gone")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleNowViewing serves POST /v1/sessions/viewing.
func (h *SessionsHandler) HandleNowViewing(w http.ResponseWriter, r *http.Request) {
	var item domain.NowPlayingItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	session, ok := h.selfSession(w, r)
	if !ok {
		return
	}
	if err := h.Registry.ReportNowViewing(r.Context(), session.ID, item); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "session is gone")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddUser serves POST /v1/sessions/{id}/users/{userId}.
func (h *SessionsHandler) HandleAddUser(w http.ResponseWriter, r *http.Request) {
	h.modifyAdditionalUser(w, r, h.Registry.AddAdditionalUser)
}

// HandleRemoveUser serves DELETE /v1/sessions/{id}/users/{userId}.
func (h *SessionsHandler) HandleRemoveUser(w http.ResponseWriter, r *http.Request) {
	h.modifyAdditionalUser(w, r, h.Registry.RemoveAdditionalUser)
}

func (h *SessionsHandler) modifyAdditionalUser(w http.ResponseWriter, r *http.Request, apply func(string, uuid.UUID) error) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed user id")
		return
	}

	ident := IdentityFrom(r.Context())
	if !ident.IsAdministrator() && (ident.User == nil || ident.User.ID != userID) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "cannot modify other users")
		return
	}

	if err := apply(r.PathValue("id"), userID); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "no such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
