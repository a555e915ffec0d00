package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeResolver struct {
	tenants map[string]Tenant
}

func (r *fakeResolver) FindBySlug(_ context.Context, slug string) (Tenant, error) {
	t, ok := r.tenants[slug]
	if !ok {
		return Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func do(mw Middleware, next http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	mw.Require(next).ServeHTTP(rec, req)
	return rec
}

func TestRequireAcceptsValidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("topsecret"), bcrypt.MinCost)
	require.NoError(t, err)
	mw := Middleware{Resolver: &fakeResolver{tenants: map[string]Tenant{
		"nordwind": {ID: 1, Slug: "nordwind", APIKeyHash: hash},
	}}}

	var seen Tenant
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := do(mw, next, "Bearer nordwind:topsecret")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, int64(1), seen.ID)
}

func TestRequireRejectsInvalidCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("topsecret"), bcrypt.MinCost)
	require.NoError(t, err)
	mw := Middleware{Resolver: &fakeResolver{tenants: map[string]Tenant{
		"nordwind": {ID: 1, Slug: "nordwind", APIKeyHash: hash},
	}}}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"missing secret", "Bearer nordwind"},
		{"wrong secret", "Bearer nordwind:wrong"},
		{"unknown tenant", "Bearer ostwind:topsecret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(mw, next, tc.header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			// Unknown tenant and wrong secret yield the identical response.
			require.Contains(t, rec.Body.String(), "valid tenant credentials required")
		})
	}
}
