package http

import (
	"errors"
	"net/http"

	"github.com/harborview/mediahub/internal/sessions/service"
	"github.com/harborview/mediahub/pkg/httpx"
	"github.com/harborview/mediahub/pkg/slogx"
)

// ResolveIdentity runs the authorization resolver once per request and
// caches the result on the context. Resolution failures are collaborator
// faults, not bad credentials, so they surface as 500s.
func ResolveIdentity(resolver *service.AuthorizationResolver) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				var authErr *service.AuthorizationError
				if errors.As(err, &authErr) {
					slogx.FromContext(r.Context()).Error("identity resolution failed", "err", err)
				}
				httpx.WriteError(w, http.StatusInternalServerError, "server_error", "unable to resolve request identity")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// RequireAuthenticated rejects requests whose identity did not resolve to a
// user or API key. A presented-but-unknown token reads differently from no
// token at all.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := IdentityFrom(r.Context())
		if !ident.IsAuthenticated {
			if ident.HasToken {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "the access token is not valid")
			} else {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdministrator allows only admin users and API keys through.
func RequireAdministrator(next http.Handler) http.Handler {
	return RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFrom(r.Context()).IsAdministrator() {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
