// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// Staff roles recognised by the ledger.
const (
	RolePharmacist = "pharmacist"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

// UserContext identifies the staff member acting on the ledger.
type UserContext struct {
	UserID   string
	Username string
	Roles    []string
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

// HasRole checks if user has any of the given roles. Admins pass every check.
func (u *UserContext) HasRole(roles ...string) bool {
	if u == nil {
		return false
	}
	if slices.Contains(u.Roles, RoleAdmin) {
		return true
	}
	for _, r := range roles {
		if slices.Contains(u.Roles, r) {
			return true
		}
	}
	return false
}
