// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext contains authenticated caller information.
// OrganizationID scopes every ledger read and write of the request.
type UserContext struct {
	UserID         string
	OrganizationID string
	Permissions    []string
	IsAdmin        bool
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetOrganizationID returns organization ID from context or empty string.
func GetOrganizationID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.OrganizationID
	}
	return ""
}
