package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Repository provides read-only PostgreSQL access to park master data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPark loads a park scoped to the tenant.
func (r *Repository) GetPark(ctx context.Context, tenantID, parkID int64) (Park, error) {
	const query = `
		SELECT id, tenant_id, name, ownership_model,
			pool_area_m2::text, taxable_cost_portion_pct::text,
			created_at, updated_at
		FROM parks
		WHERE id = $1 AND tenant_id = $2`

	var (
		p                 Park
		poolArea, taxable string
	)
	err := r.pool.QueryRow(ctx, query, parkID, tenantID).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.OwnershipModel,
		&poolArea, &taxable, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Park{}, ErrParkNotFound
		}
		return Park{}, fmt.Errorf("masterdata: get park: %w", err)
	}
	if p.PoolAreaM2, err = decimal.NewFromString(poolArea); err != nil {
		return Park{}, fmt.Errorf("masterdata: pool area: %w", err)
	}
	if p.TaxableCostPortionPct, err = decimal.NewFromString(taxable); err != nil {
		return Park{}, fmt.Errorf("masterdata: taxable portion: %w", err)
	}
	return p, nil
}

// ListTurbines returns all turbines of a park.
func (r *Repository) ListTurbines(ctx context.Context, parkID int64) ([]Turbine, error) {
	const query = `
		SELECT id, park_id, designation, revenue_share_pct::text,
			COALESCE(commissioned_at, DATE '0001-01-01')
		FROM turbines
		WHERE park_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, parkID)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list turbines: %w", err)
	}
	defer rows.Close()

	var out []Turbine
	for rows.Next() {
		var (
			t     Turbine
			share string
		)
		if err := rows.Scan(&t.ID, &t.ParkID, &t.Designation, &share, &t.CommissionedAt); err != nil {
			return nil, fmt.Errorf("masterdata: scan turbine: %w", err)
		}
		if t.RevenueSharePct, err = decimal.NewFromString(share); err != nil {
			return nil, fmt.Errorf("masterdata: turbine share: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListLeases returns all leases of a park with their assigned turbine ids.
func (r *Repository) ListLeases(ctx context.Context, parkID int64) ([]Lease, error) {
	const query = `
		SELECT l.id, l.park_id, l.lessor_id, l.lessor_name, l.lessor_address,
			COALESCE(array_agg(lt.turbine_id) FILTER (WHERE lt.turbine_id IS NOT NULL), '{}'),
			l.pool_area_m2::text, l.minimum_rent_per_turbine::text,
			l.wea_share_pct::text, l.pool_share_pct::text
		FROM leases l
		LEFT JOIN lease_turbines lt ON lt.lease_id = l.id
		WHERE l.park_id = $1
		GROUP BY l.id
		ORDER BY l.id`

	rows, err := r.pool.Query(ctx, query, parkID)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list leases: %w", err)
	}
	defer rows.Close()

	var out []Lease
	for rows.Next() {
		var (
			l                                       Lease
			poolArea, minRent, weaShare, poolShare string
		)
		if err := rows.Scan(
			&l.ID, &l.ParkID, &l.LessorID, &l.LessorName, &l.LessorAddress,
			&l.TurbineIDs, &poolArea, &minRent, &weaShare, &poolShare,
		); err != nil {
			return nil, fmt.Errorf("masterdata: scan lease: %w", err)
		}
		if l.PoolAreaM2, err = decimal.NewFromString(poolArea); err != nil {
			return nil, fmt.Errorf("masterdata: lease pool area: %w", err)
		}
		if l.MinimumRentPerTurbine, err = decimal.NewFromString(minRent); err != nil {
			return nil, fmt.Errorf("masterdata: minimum rent: %w", err)
		}
		if l.WEASharePct, err = decimal.NewFromString(weaShare); err != nil {
			return nil, fmt.Errorf("masterdata: wea share: %w", err)
		}
		if l.PoolSharePct, err = decimal.NewFromString(poolShare); err != nil {
			return nil, fmt.Errorf("masterdata: pool share: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListOperatorFunds returns the operator funds of a park scoped to the tenant.
func (r *Repository) ListOperatorFunds(ctx context.Context, tenantID, parkID int64) ([]OperatorFund, error) {
	const query = `
		SELECT f.id, f.park_id, f.name, f.ownership_pct::text
		FROM operator_funds f
		JOIN parks p ON p.id = f.park_id
		WHERE f.park_id = $1 AND p.tenant_id = $2
		ORDER BY f.id`

	rows, err := r.pool.Query(ctx, query, parkID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list operator funds: %w", err)
	}
	defer rows.Close()

	var out []OperatorFund
	for rows.Next() {
		var (
			f   OperatorFund
			pct string
		)
		if err := rows.Scan(&f.ID, &f.ParkID, &f.Name, &pct); err != nil {
			return nil, fmt.Errorf("masterdata: scan operator fund: %w", err)
		}
		if f.OwnershipPct, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("masterdata: ownership pct: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Snapshot assembles the park, its turbines, and its leases in one call.
// Turbines and leases are fetched concurrently once the park is resolved.
func (r *Repository) Snapshot(ctx context.Context, tenantID, parkID int64) (ParkSnapshot, error) {
	park, err := r.GetPark(ctx, tenantID, parkID)
	if err != nil {
		return ParkSnapshot{}, err
	}

	var snapshot ParkSnapshot
	snapshot.Park = park

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		turbines, err := r.ListTurbines(gctx, parkID)
		if err != nil {
			return err
		}
		snapshot.Turbines = turbines
		return nil
	})
	g.Go(func() error {
		leases, err := r.ListLeases(gctx, parkID)
		if err != nil {
			return err
		}
		snapshot.Leases = leases
		return nil
	})
	if err := g.Wait(); err != nil {
		return ParkSnapshot{}, err
	}
	return snapshot, nil
}
