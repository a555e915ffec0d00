package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed tenant lookup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindBySlug loads a tenant by its slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (Tenant, error) {
	const query = `
		SELECT id, slug, name, api_key_hash, created_at
		FROM tenants
		WHERE slug = $1`

	var t Tenant
	err := r.pool.QueryRow(ctx, query, slug).Scan(&t.ID, &t.Slug, &t.Name, &t.APIKeyHash, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, fmt.Errorf("tenant: find by slug: %w", err)
	}
	return t, nil
}
