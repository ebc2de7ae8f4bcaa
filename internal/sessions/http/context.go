package http

import (
	"context"

	"github.com/harborview/mediahub/internal/sessions/domain"
)

type identityKey struct{}

// WithIdentity stores the resolved identity on the request context. The
// resolver middleware is the only writer.
func WithIdentity(ctx context.Context, ident domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// IdentityFrom returns the identity resolved for this request. Handlers
// behind the resolver middleware can rely on the value being present; the
// zero Identity is returned otherwise.
func IdentityFrom(ctx context.Context) domain.Identity {
	ident, _ := ctx.Value(identityKey{}).(domain.Identity)
	return ident
}
