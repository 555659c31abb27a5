package auth

import (
	"context"

	"mdip/core/store"
)

type contextKey string

const UserContextKey contextKey = "auth.user"

func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext returns the account attached by the bearer middleware, or nil.
func UserFromContext(ctx context.Context) *store.User {
	if u, ok := ctx.Value(UserContextKey).(*store.User); ok {
		return u
	}
	return nil
}
