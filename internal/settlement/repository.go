package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RepositoryPort defines data access for settlement periods.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error)
	ListPeriods(ctx context.Context, tenantID, parkID int64, year int) ([]SettlementPeriod, error)
}

// TxRepository defines period operations within one transaction. The
// create-or-reuse-or-replace decision must run atomically so the natural key
// never briefly has zero matching rows for a concurrent creator to fill.
type TxRepository interface {
	// Tx exposes the underlying transaction so collaborating repositories
	// (invoice writes paired with a status change) join the same commit.
	Tx() pgx.Tx
	GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error)
	FindByNaturalKey(ctx context.Context, in CreatePeriodInput) (SettlementPeriod, error)
	Insert(ctx context.Context, in CreatePeriodInput) (SettlementPeriod, error)
	Delete(ctx context.Context, tenantID, periodID int64) error
	UpdateTotals(ctx context.Context, periodID int64, totalRevenue, totalMinimumRent, totalActualRent decimal.Decimal, status PeriodStatus) error
	UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus) error
}

const uniqueViolation = "23505"

const periodColumns = `
	id, tenant_id, park_id, year, month, period_type, advance_interval, status,
	total_revenue::text, total_minimum_rent::text, total_actual_rent::text,
	energy_settlement_id, notes, created_by, created_at, updated_at`

type pgRepository struct {
	pool *pgxpool.Pool
}

var _ RepositoryPort = (*pgRepository)(nil)

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &pgRepository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("settlement: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetPeriod loads a period scoped to the tenant.
func (r *pgRepository) GetPeriod(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error) {
	query := `SELECT` + periodColumns + `
		FROM settlement_periods
		WHERE id = $1 AND tenant_id = $2`
	return scanPeriod(r.pool.QueryRow(ctx, query, periodID, tenantID))
}

// ListPeriods returns a park's periods, optionally filtered by year (0 = all).
func (r *pgRepository) ListPeriods(ctx context.Context, tenantID, parkID int64, year int) ([]SettlementPeriod, error) {
	query := `SELECT` + periodColumns + `
		FROM settlement_periods
		WHERE tenant_id = $1 AND park_id = $2 AND ($3 = 0 OR year = $3)
		ORDER BY year DESC, month NULLS FIRST, period_type`

	rows, err := r.pool.Query(ctx, query, tenantID, parkID, year)
	if err != nil {
		return nil, fmt.Errorf("settlement: list periods: %w", err)
	}
	defer rows.Close()

	var out []SettlementPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type pgTxRepository struct {
	tx pgx.Tx
}

var _ TxRepository = (*pgTxRepository)(nil)

// Tx returns the wrapped transaction.
func (r *pgTxRepository) Tx() pgx.Tx {
	return r.tx
}

// GetPeriodForUpdate loads and row-locks a period.
func (r *pgTxRepository) GetPeriodForUpdate(ctx context.Context, tenantID, periodID int64) (SettlementPeriod, error) {
	query := `SELECT` + periodColumns + `
		FROM settlement_periods
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`
	return scanPeriod(r.tx.QueryRow(ctx, query, periodID, tenantID))
}

// FindByNaturalKey loads and row-locks the period matching the natural key.
func (r *pgTxRepository) FindByNaturalKey(ctx context.Context, in CreatePeriodInput) (SettlementPeriod, error) {
	query := `SELECT` + periodColumns + `
		FROM settlement_periods
		WHERE tenant_id = $1 AND park_id = $2 AND year = $3
			AND month IS NOT DISTINCT FROM $4 AND period_type = $5
		FOR UPDATE`
	return scanPeriod(r.tx.QueryRow(ctx, query, in.TenantID, in.ParkID, in.Year, in.Month, in.Type))
}

// Insert creates a fresh OPEN period.
func (r *pgTxRepository) Insert(ctx context.Context, in CreatePeriodInput) (SettlementPeriod, error) {
	const query = `
		INSERT INTO settlement_periods (
			tenant_id, park_id, year, month, period_type, advance_interval,
			status, notes, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	p := SettlementPeriod{
		TenantID:        in.TenantID,
		ParkID:          in.ParkID,
		Year:            in.Year,
		Month:           in.Month,
		Type:            in.Type,
		AdvanceInterval: in.AdvanceInterval,
		Status:          StatusOpen,
		Notes:           in.Notes,
		CreatedBy:       in.CreatedBy,
	}
	err := r.tx.QueryRow(ctx, query,
		in.TenantID, in.ParkID, in.Year, in.Month, in.Type, string(in.AdvanceInterval),
		StatusOpen, in.Notes, in.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return SettlementPeriod{}, &PeriodExistsError{Status: StatusOpen}
		}
		return SettlementPeriod{}, fmt.Errorf("settlement: insert period: %w", err)
	}
	return p, nil
}

// Delete removes a period row. Only used to replace a CANCELLED period.
func (r *pgTxRepository) Delete(ctx context.Context, tenantID, periodID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM settlement_periods WHERE id = $1 AND tenant_id = $2`, periodID, tenantID)
	if err != nil {
		return fmt.Errorf("settlement: delete period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// UpdateTotals persists the calculated aggregates and the new status.
func (r *pgTxRepository) UpdateTotals(ctx context.Context, periodID int64, totalRevenue, totalMinimumRent, totalActualRent decimal.Decimal, status PeriodStatus) error {
	const query = `
		UPDATE settlement_periods
		SET total_revenue = $2, total_minimum_rent = $3, total_actual_rent = $4,
			status = $5, updated_at = NOW()
		WHERE id = $1`
	_, err := r.tx.Exec(ctx, query, periodID,
		totalRevenue.String(), totalMinimumRent.String(), totalActualRent.String(), status)
	if err != nil {
		return fmt.Errorf("settlement: update totals: %w", err)
	}
	return nil
}

// UpdateStatus advances the period lifecycle.
func (r *pgTxRepository) UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE settlement_periods SET status = $2, updated_at = NOW() WHERE id = $1`,
		periodID, status)
	if err != nil {
		return fmt.Errorf("settlement: update status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (SettlementPeriod, error) {
	var (
		p                        SettlementPeriod
		interval                 *string
		revenue, minimum, actual *string
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.ParkID, &p.Year, &p.Month, &p.Type, &interval, &p.Status,
		&revenue, &minimum, &actual,
		&p.LinkedEnergySettlementID, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SettlementPeriod{}, ErrPeriodNotFound
		}
		return SettlementPeriod{}, fmt.Errorf("settlement: scan period: %w", err)
	}
	if interval != nil {
		p.AdvanceInterval = AdvanceInterval(*interval)
	}
	if p.TotalRevenue, err = parseNullDecimal(revenue); err != nil {
		return SettlementPeriod{}, fmt.Errorf("settlement: total revenue: %w", err)
	}
	if p.TotalMinimumRent, err = parseNullDecimal(minimum); err != nil {
		return SettlementPeriod{}, fmt.Errorf("settlement: total minimum rent: %w", err)
	}
	if p.TotalActualRent, err = parseNullDecimal(actual); err != nil {
		return SettlementPeriod{}, fmt.Errorf("settlement: total actual rent: %w", err)
	}
	return p, nil
}

func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
