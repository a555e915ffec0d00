package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/windward-ops/windward/internal/platform/httpx"
)

// Resolver loads tenants for authentication.
type Resolver interface {
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
}

// Middleware authenticates API requests via "Authorization: Bearer <slug>:<secret>"
// and places the resolved tenant into the request context. Failed lookups and
// failed key comparisons are indistinguishable to the caller.
type Middleware struct {
	Resolver Resolver
	Logger   *slog.Logger
}

// Require rejects requests without valid tenant credentials.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := m.authenticate(r)
		if err != nil {
			if !errors.Is(err, ErrTenantNotFound) && !errors.Is(err, ErrInvalidCredentials) && m.Logger != nil {
				m.Logger.Error("tenant auth", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "valid tenant credentials required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithTenant(r.Context(), t)))
	})
}

func (m Middleware) authenticate(r *http.Request) (Tenant, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Tenant{}, ErrInvalidCredentials
	}
	slug, secret, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || slug == "" || secret == "" {
		return Tenant{}, ErrInvalidCredentials
	}
	t, err := m.Resolver.FindBySlug(r.Context(), slug)
	if err != nil {
		return Tenant{}, err
	}
	if err := bcrypt.CompareHashAndPassword(t.APIKeyHash, []byte(secret)); err != nil {
		return Tenant{}, ErrInvalidCredentials
	}
	return t, nil
}
