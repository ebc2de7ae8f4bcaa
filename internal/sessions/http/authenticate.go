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

// AuthenticateHandler serves POST /v1/users/authenticate. Device identity
// comes from the structured authorization header; credentials come from the
// JSON body.
type AuthenticateHandler struct {
	TokenService *service.TokenService
	AuthGuard    *service.AuthGuard
}

type authenticateRequest struct {
	Username string `json:"Username"`
	Password string `json:"Pw"`
}

type authenticateResponse struct {
	AccessToken string
	User        domain.User
	SessionInfo domain.Session
}

func (h *AuthenticateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	remote := httpx.IPKeyExtractor(r)
	if h.AuthGuard != nil && h.AuthGuard.Blocked(remote) {
		httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "too many failed login attempts, try again later")
		return
	}

	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ident := IdentityFrom(ctx)
	result, err := h.TokenService.AuthenticateUser(ctx, service.AuthenticateRequest{
		Username:       req.Username,
		Password:       req.Password,
		DeviceID:       ident.DeviceID,
		DeviceName:     ident.Device,
		AppName:        ident.Client,
		AppVersion:     ident.Version,
		RemoteEndPoint: remote,
	})
	if errors.Is(err, service.ErrInvalidCredentials) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}
	if err != nil {
		log.Error("authentication failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to authenticate")
		return
	}

	// Never leak the stored hash.
	result.User.PasswordHash = ""

	httpx.WriteJSON(w, http.StatusOK, authenticateResponse{
		AccessToken: result.AccessToken,
		User:        result.User,
		SessionInfo: result.Session,
	})
}
