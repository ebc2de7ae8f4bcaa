package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/internal/sessions/store"
	"github.com/harborview/mediahub/pkg/httpx"
	"github.com/harborview/mediahub/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store        store.Store
	Resolver     *service.AuthorizationResolver
	Registry     *service.SessionRegistry
	Dispatch     *service.DispatchEngine
	TokenService *service.TokenService
	AuthGuard    *service.AuthGuard
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	resolve := ResolveIdentity(r.Resolver)

	r.registerAuthentication(resolve)
	r.registerSessions(resolve)
	r.registerDispatch(resolve)
	r.registerTokens(resolve)
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuthentication(resolve httpx.Middleware) {
	h := &AuthenticateHandler{TokenService: r.TokenService, AuthGuard: r.AuthGuard}

	// Login attempts get the strict limit, keyed by IP and username.
	r.Mux.Handle("POST /v1/users/authenticate",
		httpx.Chain(h,
			resolve,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions(resolve httpx.Middleware) {
	h := &SessionsHandler{Registry: r.Registry}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			resolve,
			RequireAuthenticated,
			httpx.RateLimitByIP(httpx.LenientLimit),
		)
	}

	r.Mux.Handle("GET /v1/sessions", secured(h.HandleList))
	r.Mux.Handle("POST /v1/sessions/capabilities", secured(h.HandleCapabilities))
	r.Mux.Handle("POST /v1/sessions/playing", secured(h.HandlePlaybackStart))
	r.Mux.Handle("POST /v1/sessions/playing/progress", secured(h.HandlePlaybackProgress))
	r.Mux.Handle("POST /v1/sessions/playing/stopped", secured(h.HandlePlaybackStopped))
	r.Mux.Handle("POST /v1/sessions/viewing", secured(h.HandleNowViewing))
	r.Mux.Handle("POST /v1/sessions/{id}/users/{userId}", secured(h.HandleAddUser))
	r.Mux.Handle("DELETE /v1/sessions/{id}/users/{userId}", secured(h.HandleRemoveUser))
}

func (r *Router) registerDispatch(resolve httpx.Middleware) {
	h := &DispatchHandler{Registry: r.Registry, Dispatch: r.Dispatch}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			resolve,
			RequireAuthenticated,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/sessions/{id}/command", secured(h.HandleCommand))
	r.Mux.Handle("POST /v1/sessions/{id}/message", secured(h.HandleMessage))
}

func (r *Router) registerTokens(resolve httpx.Middleware) {
	h := &TokensHandler{TokenService: r.TokenService}

	r.Mux.Handle("POST /v1/sessions/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			resolve,
			RequireAuthenticated,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/tokens",
		httpx.Chain(http.HandlerFunc(h.HandleCreateAPIKey),
			resolve,
			RequireAdministrator,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/tokens/revoke",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			resolve,
			RequireAdministrator,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("DELETE /v1/users/{id}/tokens",
		httpx.Chain(http.HandlerFunc(h.HandleRevokeUserTokens),
			resolve,
			RequireAuthenticated,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll these frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
