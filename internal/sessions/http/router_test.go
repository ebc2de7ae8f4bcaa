package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harborview/mediahub/internal/sessions/domain"
	"github.com/harborview/mediahub/internal/sessions/events"
	httpapi "github.com/harborview/mediahub/internal/sessions/http"
	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/internal/sessions/store"
	"github.com/harborview/mediahub/internal/sessions/store/drivers/sqlite"
	"github.com/harborview/mediahub/internal/sessions/transport"
	"github.com/harborview/mediahub/pkg/cryptox"
)

type fixture struct {
	store    store.Store
	bus      *events.Bus
	registry *service.SessionRegistry
	hub      *transport.Hub
	router   *httpapi.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlite.NewStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := events.NewBus()
	registry := service.NewSessionRegistry(bus)
	hub := transport.NewHub(bus)

	router := httpapi.NewRouter("test", st, logger)
	router.Resolver = &service.AuthorizationResolver{Store: st}
	router.Registry = registry
	router.Dispatch = service.NewDispatchEngine(registry, hub, bus)
	router.TokenService = &service.TokenService{Store: st, Bus: bus, Registry: registry}
	router.AuthGuard = service.NewAuthGuard(logger, bus)
	router.ApplyRoutes()

	return &fixture{store: st, bus: bus, registry: registry, hub: hub, router: router}
}

func (f *fixture) createUser(t *testing.T, username, password string, admin bool) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)
	u := domain.User{
		ID:              uuid.New(),
		Username:        username,
		PasswordHash:    hash,
		IsAdministrator: admin,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	// Always carry the client identity; the token kv only when present.
	auth := `MediaBrowser Client="TestClient", Device="Test Device", DeviceId="test-dev", Version="1.0"`
	if token != "" {
		auth += fmt.Sprintf(`, Token="%s"`, token)
	}
	req.Header.Set("Authorization", auth)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/users/authenticate", "", map[string]string{
		"Username": username,
		"Pw":       password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct{ AccessToken string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

// TestAuthenticateAndListSessions covers the primary flow: login with the
// structured header, then list sessions with the minted token.
func TestAuthenticateAndListSessions(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)

	// Device identity comes from the header even without a token.
	rec := httptest.NewRecorder()
	body, _ := json.Marshal(map[string]string{"Username": "alice", "Pw": "hunter2hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/users/authenticate", bytes.NewReader(body))
	req.Header.Set("Authorization", `MediaBrowser Client="TestClient", Device="Test Device", DeviceId="test-dev", Version="1.0"`)
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		AccessToken string
		User        struct{ Username string }
		SessionInfo struct{ ID string }
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "alice", resp.User.Username)
	require.NotEmpty(t, resp.SessionInfo.ID)

	list := f.do(t, http.MethodGet, "/v1/sessions", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, list.Code)

	var sessions []struct{ ID, Username string }
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	require.Equal(t, "alice", sessions[0].Username)
}

// TestAuthenticateBadCredentials verifies a wrong password yields 401.
func TestAuthenticateBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)

	rec := f.do(t, http.MethodPost, "/v1/users/authenticate", "", map[string]string{
		"Username": "alice",
		"Pw":       "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestSessionsRequireAuthentication verifies both anonymous and bad-token
// requests are rejected, with distinct error codes.
func TestSessionsRequireAuthentication(t *testing.T) {
	f := newFixture(t)

	anon := f.do(t, http.MethodGet, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, anon.Code)
	require.Contains(t, anon.Body.String(), "unauthorized")

	bad := f.do(t, http.MethodGet, "/v1/sessions", "garbage-token", nil)
	require.Equal(t, http.StatusUnauthorized, bad.Code)
	require.Contains(t, bad.Body.String(), "invalid_token")
}

// TestCapabilitiesAndPlaybackReporting verifies the self-reporting
// endpoints mutate the caller's session.
func TestCapabilitiesAndPlaybackReporting(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)
	token := f.login(t, "alice", "hunter2hunter2")

	rec := f.do(t, http.MethodPost, "/v1/sessions/capabilities", token, map[string]any{
		"SupportsMediaControl": true,
		"SupportedCommands":    []string{"Play", "Pause"},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/sessions/playing", token, map[string]any{
		"Item":      map[string]any{"ID": "item-1", "Name": "Some Movie"},
		"PlayState": map[string]any{"PositionTicks": 100},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	sessions := f.registry.List()
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].SupportsRemoteControl())
	require.NotNil(t, sessions[0].NowPlayingItem)
	require.Equal(t, "item-1", sessions[0].NowPlayingItem.ID)

	rec = f.do(t, http.MethodPost, "/v1/sessions/playing/stopped", token, map[string]any{
		"PositionTicks": 900,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, f.registry.List()[0].NowPlayingItem)
}

type recordingConn struct {
	messages []transport.Message
}

func (c *recordingConn) Send(_ context.Context, msg transport.Message) error {
	c.messages = append(c.messages, msg)
	return nil
}

// TestSendMessageToSession verifies dispatch through the transport hub,
// including the no-connection failure mode.
func TestSendMessageToSession(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)
	token := f.login(t, "alice", "hunter2hunter2")

	target := f.registry.List()[0]

	// No connection attached yet: delivery fails downstream.
	rec := f.do(t, http.MethodPost, "/v1/sessions/"+target.ID+"/message", token, map[string]any{
		"Text": "hello",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	conn := &recordingConn{}
	f.hub.Attach(target.ID, conn)

	rec = f.do(t, http.MethodPost, "/v1/sessions/"+target.ID+"/message", token, map[string]any{
		"Header": "Greeting",
		"Text":   "hello",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.Len(t, conn.messages, 1)
	require.Equal(t, service.MessageTypeDisplay, conn.messages[0].Type)

	// Unknown target is a 404.
	rec = f.do(t, http.MethodPost, "/v1/sessions/nope/message", token, map[string]any{"Text": "hello"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestAdminOnlyTokenEndpoints verifies API key management is closed to
// regular users.
func TestAdminOnlyTokenEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)
	f.createUser(t, "root", "correcthorsebattery", true)

	userToken := f.login(t, "alice", "hunter2hunter2")
	adminToken := f.login(t, "root", "correcthorsebattery")

	rec := f.do(t, http.MethodPost, "/v1/tokens", userToken, map[string]string{"Name": "backup-bot"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/tokens", adminToken, map[string]string{"Name": "backup-bot"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct{ AccessToken string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.AccessToken)

	// The minted key authenticates as an administrator.
	rec = f.do(t, http.MethodPost, "/v1/tokens/revoke", created.AccessToken, map[string]string{"Token": userToken})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/sessions", userToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "revoked token must stop working")
}

// TestLogout verifies logout revokes the calling token.
func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice", "hunter2hunter2", false)
	token := f.login(t, "alice", "hunter2hunter2")

	rec := f.do(t, http.MethodPost, "/v1/sessions/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/sessions", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestHealthEndpoints verifies the probes respond without credentials.
func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ready"`)
}
