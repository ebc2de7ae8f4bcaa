package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/pkg/httpx"
	"github.com/harborview/mediahub/pkg/slogx"
)

// DispatchHandler serves the remote-control endpoints: sending commands and
// display messages to other sessions.
type DispatchHandler struct {
	Registry *service.SessionRegistry
	Dispatch *service.DispatchEngine
}

type commandRequest struct {
	Name      string
	Arguments map[string]string
}

type messageRequest struct {
	Header    string
	Text      string
	TimeoutMS int64
}

// HandleCommand serves POST /v1/sessions/{id}/command.
func (h *DispatchHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "command name is required")
		return
	}

	controlling, ok := h.controllingSession(w, r)
	if !ok {
		return
	}

	err := h.Dispatch.SendCommand(r.Context(), controlling.ID, r.PathValue("id"), domain.GeneralCommand{
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	h.writeDispatchOutcome(w, r, err)
}

// HandleMessage serves POST /v1/sessions/{id}/message.
func (h *DispatchHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Text == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "message text is required")
		return
	}

	controlling, ok := h.controllingSession(w, r)
	if !ok {
		return
	}

	err := h.Dispatch.SendMessage(r.Context(), controlling.ID, r.PathValue("id"), service.DisplayMessage{
		Header:    req.Header,
		Text:      req.Text,
		TimeoutMS: req.TimeoutMS,
	})
	h.writeDispatchOutcome(w, r, err)
}

func (h *DispatchHandler) controllingSession(w http.ResponseWriter, r *http.Request) (domain.Session, bool) {
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

func (h *DispatchHandler) writeDispatchOutcome(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrSessionNotFound):
		httpx.WriteError(w, http.StatusNotFound, "session_not_found", "no such session")
	case errors.Is(err, service.ErrUnauthorized):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "not allowed to control the target session")
	case errors.Is(err, service.ErrDispatchFailed):
		slogx.FromContext(r.Context()).Warn("dispatch failed", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "dispatch_failed", "could not deliver to the target session")
	default:
		slogx.FromContext(r.Context()).Error("dispatch error", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "dispatch error")
	}
}
