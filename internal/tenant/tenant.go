// Package tenant resolves the calling tenant from API credentials and threads
// it through the request context. Every settlement read and write is scoped by
// the resolved tenant id, never by row id alone.
package tenant

import (
	"context"
	"errors"
	"time"
)

// Tenant is an operator organisation using the platform.
type Tenant struct {
	ID         int64
	Slug       string
	Name       string
	APIKeyHash []byte
	CreatedAt  time.Time
}

type contextKey struct{}

// ContextWithTenant stores the tenant in the context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext returns the tenant stored in the context, if any.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(contextKey{}).(Tenant)
	return t, ok
}

// ErrTenantNotFound indicates no tenant matches the supplied slug.
var ErrTenantNotFound = errors.New("tenant: not found")

// ErrInvalidCredentials indicates the API key does not match.
var ErrInvalidCredentials = errors.New("tenant: invalid credentials")
