package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	"github.com/harborview/mediahub/internal/sessions/store"
	"github.com/harborview/mediahub/pkg/cryptox"
)

// TokenService owns the token lifecycle: minting on login, revocation, and
// the session bookkeeping that follows both.
type TokenService struct {
	Store    store.Store
	Bus      *events.Bus
	Registry *SessionRegistry

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// AuthenticateRequest carries one login attempt.
type AuthenticateRequest struct {
	Username       string
	Password       string
	DeviceID       string
	DeviceName     string
	AppName        string
	AppVersion     string
	RemoteEndPoint string
}

// AuthenticationResult is returned on a successful login.
type AuthenticationResult struct {
	AccessToken string
	User        domain.User
	Session     domain.Session
}

// AuthenticateUser verifies credentials, mints an opaque access token and
// registers the device's session. Bad credentials return
// ErrInvalidCredentials; the failure is also published for auth guards.
func (s *TokenService) AuthenticateUser(ctx context.Context, req AuthenticateRequest) (AuthenticationResult, error) {
	fail := func() {
		s.Bus.Publish(ctx, events.AuthenticationEvent{
			Username:       req.Username,
			Client:         req.AppName,
			DeviceID:       req.DeviceID,
			RemoteEndPoint: req.RemoteEndPoint,
		})
	}

	user, err := s.Store.Users().GetByUsername(ctx, req.Username)
	if errors.Is(err, store.ErrNotFound) {
		fail()
		return AuthenticationResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("authenticate: user lookup: %w", err)
	}

	if err := cryptox.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			fail()
			return AuthenticationResult{}, ErrInvalidCredentials
		}
		return AuthenticationResult{}, fmt.Errorf("authenticate: verify password: %w", err)
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return AuthenticationResult{}, fmt.Errorf("authenticate: mint token: %w", err)
	}

	now := s.now()
	rec := domain.TokenRecord{
		AccessToken:      token,
		UserID:           user.ID,
		UserName:         user.Username,
		DeviceID:         req.DeviceID,
		DeviceName:       req.DeviceName,
		AppName:          req.AppName,
		AppVersion:       req.AppVersion,
		DateCreated:      now,
		DateLastActivity: now,
	}
	if err := s.Store.Tokens().Create(ctx, rec); err != nil {
		return AuthenticationResult{}, fmt.Errorf("authenticate: store token: %w", err)
	}
	if err := s.Store.Users().UpdateLastLogin(ctx, user.ID); err != nil {
		return AuthenticationResult{}, fmt.Errorf("authenticate: update last login: %w", err)
	}

	s.Bus.Publish(ctx, events.AuthenticationEvent{
		Success:        true,
		UserID:         user.ID,
		Username:       user.Username,
		Client:         req.AppName,
		DeviceID:       req.DeviceID,
		RemoteEndPoint: req.RemoteEndPoint,
	})

	session, err := s.Registry.LogActivity(ctx, req.AppName, req.AppVersion, req.DeviceID, req.DeviceName, req.RemoteEndPoint, &user)
	if err != nil && !errors.Is(err, ErrMissingDeviceInfo) {
		return AuthenticationResult{}, fmt.Errorf("authenticate: register session: %w", err)
	}

	return AuthenticationResult{AccessToken: token, User: user, Session: session}, nil
}

// CreateAPIKey mints a token bound to no user. The name identifies the
// consuming application.
func (s *TokenService) CreateAPIKey(ctx context.Context, name string) (domain.TokenRecord, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("create api key: %w", err)
	}
	now := s.now()
	rec := domain.TokenRecord{
		AccessToken:      token,
		AppName:          name,
		DateCreated:      now,
		DateLastActivity: now,
	}
	if err := s.Store.Tokens().Create(ctx, rec); err != nil {
		return domain.TokenRecord{}, fmt.Errorf("create api key: %w", err)
	}
	return rec, nil
}

// GetSessionByToken resolves the live session of the device a token was
// issued to. Unknown tokens, tokens without a device binding (API keys) and
// tokens whose device has no live session all return ErrSessionNotFound.
func (s *TokenService) GetSessionByToken(ctx context.Context, token string) (domain.Session, error) {
	rec, err := s.Store.Tokens().GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("session by token: token lookup: %w", err)
	}
	return s.Registry.Get(rec.DeviceID, rec.AppName, rec.AppVersion)
}

// Revoke deletes a token and ends the sessions of the device it was issued
// to. Revoking an unknown token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	rec, err := s.Store.Tokens().GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke: token lookup: %w", err)
	}
	if err := s.Store.Tokens().Delete(ctx, token); err != nil {
		return fmt.Errorf("revoke: delete token: %w", err)
	}
	if rec.DeviceID != "" {
		s.Registry.EndSessionsForDevice(ctx, rec.DeviceID)
	}
	return nil
}

// RevokeUserTokens revokes every token bound to a user, sparing exceptToken
// when non-empty, and ends the affected device sessions.
func (s *TokenService) RevokeUserTokens(ctx context.Context, userID uuid.UUID, exceptToken string) error {
	recs, err := s.Store.Tokens().ListForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke user tokens: list: %w", err)
	}
	if err := s.Store.Tokens().DeleteAllForUser(ctx, userID, exceptToken); err != nil {
		return fmt.Errorf("revoke user tokens: delete: %w", err)
	}
	for _, rec := range recs {
		if rec.AccessToken == exceptToken || rec.DeviceID == "" {
			continue
		}
		s.Registry.EndSessionsForDevice(ctx, rec.DeviceID)
	}
	return nil
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
