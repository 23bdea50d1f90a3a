package middleware

import (
	"context"

	"github.com/gosuda/boardsync/internal/domain"
)

type contextKey string

const ContextKeyIdentity contextKey = "identity"

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	v, ok := ctx.Value(ContextKeyIdentity).(domain.Identity)
	return v, ok && v.UserID != ""
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, ok
}

func RoleFromContext(ctx context.Context) (domain.Role, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.Role, ok
}
