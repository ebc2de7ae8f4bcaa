package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/pkg/httpx"
	"github.com/harborview/mediahub/pkg/slogx"
)

// TokensHandler serves token lifecycle endpoints: logout, API key minting
// and revocation.
type TokensHandler struct {
	TokenService *service.TokenService
}

// HandleLogout serves POST /v1/sessions/logout. It revokes the token the
// request was made with and ends the device's sessions. Always 204: logout
// with an already dead token has nothing left to do.
func (h *TokensHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := IdentityFrom(ctx)

	if ident.Token != "" {
		if err := h.TokenService.Revoke(ctx, ident.Token); err != nil {
			slogx.FromContext(ctx).Warn("logout revoke failed", "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAPIKeyRequest struct {
	Name string
}

// HandleCreateAPIKey serves POST /v1/tokens (admin only).
func (h *TokensHandler) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "key name is required")
		return
	}

	rec, err := h.TokenService.CreateAPIKey(r.Context(), req.Name)
	if err != nil {
		slogx.FromContext(r.Context()).Error("api key creation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to create api key")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

type revokeTokenRequest struct {
	Token string
}

// HandleRevoke serves POST /v1/tokens/revoke (admin only). Revoking an
// unknown token returns 204 as well, so the endpoint cannot be used to
// probe for live tokens.
func (h *TokensHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	if err := h.TokenService.Revoke(r.Context(), req.Token); err != nil {
		slogx.FromContext(r.Context()).Error("token revocation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to revoke token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeUserTokens serves DELETE /v1/users/{id}/tokens. Users may
// revoke their own tokens; administrators anyone's. The token the request
// rode in on is spared when the target is the caller.
func (h *TokensHandler) HandleRevokeUserTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed user id")
		return
	}

	ident := IdentityFrom(r.Context())
	self := ident.User != nil && ident.User.ID == userID
	if !self && !ident.IsAdministrator() {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "cannot revoke other users' tokens")
		return
	}

	exceptToken := ""
	if self {
		exceptToken = ident.Token
	}
	if err := h.TokenService.RevokeUserTokens(r.Context(), userID, exceptToken); err != nil {
		slogx.FromContext(r.Context()).Error("user token revocation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to revoke tokens")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
