package invoicing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository methods run pooled or inside a caller-owned transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	db querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// WithTx returns a repository bound to tx. Invoice inserts and sequence
// bumps made through it commit or roll back with the transaction.
func (r *Repository) WithTx(tx pgx.Tx) RepositoryPort {
	return &Repository{db: tx}
}

// CreateInvoice persists a new invoice.
func (r *Repository) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	const query = `
		INSERT INTO invoices (
			tenant_id, number, invoice_type, status, settlement_period_id,
			lease_id, operator_fund_id, description,
			net_amount, vat_amount, gross_amount, issued_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var inv Invoice
	err := r.db.QueryRow(ctx, query,
		input.TenantID,
		input.Number,
		input.Type,
		input.Status,
		input.SettlementPeriodID,
		input.LeaseID,
		input.OperatorFundID,
		input.Description,
		input.NetAmount.String(),
		input.VATAmount.String(),
		input.GrossAmount.String(),
		input.IssuedAt,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: create invoice: %w", err)
	}

	inv.TenantID = input.TenantID
	inv.Number = input.Number
	inv.Type = input.Type
	inv.Status = input.Status
	inv.SettlementPeriodID = input.SettlementPeriodID
	inv.LeaseID = input.LeaseID
	inv.OperatorFundID = input.OperatorFundID
	inv.Description = input.Description
	inv.NetAmount = input.NetAmount
	inv.VATAmount = input.VATAmount
	inv.GrossAmount = input.GrossAmount
	inv.IssuedAt = input.IssuedAt
	return inv, nil
}

// NextInvoiceNumber reserves the next credit-note number for a tenant and year.
func (r *Repository) NextInvoiceNumber(ctx context.Context, tenantID int64, year int) (string, error) {
	const query = `
		INSERT INTO invoice_sequences (tenant_id, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value`

	var seq int64
	if err := r.db.QueryRow(ctx, query, tenantID, year).Scan(&seq); err != nil {
		return "", fmt.Errorf("invoicing: next invoice number: %w", err)
	}
	return fmt.Sprintf("GS-%d-%06d", year, seq), nil
}

// SumAdvanceGrossByLease sums the gross amounts of accepted advance credit
// notes per lease for one park and year. Only invoices in SENT or PAID count
// as paid advances; drafts and cancellations do not. Advance periods still in
// OPEN (never generated) or CANCELLED are excluded.
func (r *Repository) SumAdvanceGrossByLease(ctx context.Context, tenantID, parkID int64, year int) (map[int64]decimal.Decimal, error) {
	const query = `
		SELECT i.lease_id, SUM(i.gross_amount)::text
		FROM invoices i
		JOIN settlement_periods sp ON sp.id = i.settlement_period_id
		WHERE i.tenant_id = $1
			AND sp.tenant_id = $1
			AND sp.park_id = $2
			AND sp.year = $3
			AND sp.period_type = 'ADVANCE'
			AND sp.status NOT IN ('OPEN', 'CANCELLED')
			AND i.invoice_type = 'CREDIT_NOTE'
			AND i.status IN ('SENT', 'PAID')
			AND i.lease_id IS NOT NULL
		GROUP BY i.lease_id`

	rows, err := r.db.Query(ctx, query, tenantID, parkID, year)
	if err != nil {
		return nil, fmt.Errorf("invoicing: sum advances: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var (
			leaseID int64
			sum     string
		)
		if err := rows.Scan(&leaseID, &sum); err != nil {
			return nil, fmt.Errorf("invoicing: scan advance sum: %w", err)
		}
		amount, err := decimal.NewFromString(sum)
		if err != nil {
			return nil, fmt.Errorf("invoicing: advance sum: %w", err)
		}
		out[leaseID] = amount
	}
	return out, rows.Err()
}

// ListByPeriod returns all invoices referencing a settlement period.
func (r *Repository) ListByPeriod(ctx context.Context, tenantID, periodID int64) ([]Invoice, error) {
	const query = `
		SELECT id, tenant_id, number, invoice_type, status, settlement_period_id,
			lease_id, operator_fund_id, description,
			net_amount::text, vat_amount::text, gross_amount::text,
			issued_at, created_at, updated_at
		FROM invoices
		WHERE tenant_id = $1 AND settlement_period_id = $2
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, tenantID, periodID)
	if err != nil {
		return nil, fmt.Errorf("invoicing: list by period: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var (
			inv             Invoice
			net, vat, gross string
		)
		if err := rows.Scan(
			&inv.ID, &inv.TenantID, &inv.Number, &inv.Type, &inv.Status, &inv.SettlementPeriodID,
			&inv.LeaseID, &inv.OperatorFundID, &inv.Description,
			&net, &vat, &gross, &inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("invoicing: scan invoice: %w", err)
		}
		if inv.NetAmount, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("invoicing: net amount: %w", err)
		}
		if inv.VATAmount, err = decimal.NewFromString(vat); err != nil {
			return nil, fmt.Errorf("invoicing: vat amount: %w", err)
		}
		if inv.GrossAmount, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("invoicing: gross amount: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
