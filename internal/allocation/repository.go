package allocation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for cost allocations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ReplaceForPeriod atomically replaces the allocation for a settlement period.
// Lines cascade with their allocation row.
func (r *Repository) ReplaceForPeriod(ctx context.Context, alloc CostAllocation) (CostAllocation, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CostAllocation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`DELETE FROM cost_allocations WHERE tenant_id = $1 AND settlement_period_id = $2`,
		alloc.TenantID, alloc.SettlementPeriodID)
	if err != nil {
		return CostAllocation{}, fmt.Errorf("allocation: delete prior allocation: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO cost_allocations (tenant_id, settlement_period_id, park_id, period_label, total_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`,
		alloc.TenantID, alloc.SettlementPeriodID, alloc.ParkID, alloc.PeriodLabel, alloc.TotalCost.String(),
	).Scan(&alloc.ID, &alloc.CreatedAt)
	if err != nil {
		return CostAllocation{}, fmt.Errorf("allocation: insert allocation: %w", err)
	}

	for i := range alloc.Lines {
		line := &alloc.Lines[i]
		line.CostAllocationID = alloc.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO cost_allocation_lines (
				cost_allocation_id, operator_fund_id, fund_name,
				ownership_pct, total_share, taxable_net, exempt_net
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			alloc.ID, line.OperatorFundID, line.FundName,
			line.OwnershipPct.String(), line.TotalShare.String(),
			line.TaxableNet.String(), line.ExemptNet.String(),
		).Scan(&line.ID)
		if err != nil {
			return CostAllocation{}, fmt.Errorf("allocation: insert line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return CostAllocation{}, err
	}
	return alloc, nil
}
