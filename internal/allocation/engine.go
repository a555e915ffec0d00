package allocation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/windward-ops/windward/internal/invoicing"
	"github.com/windward-ops/windward/internal/masterdata"
	"github.com/windward-ops/windward/internal/settlement"
)

// FundSource lists the operator funds holding interests in a park.
type FundSource interface {
	ListOperatorFunds(ctx context.Context, tenantID, parkID int64) ([]masterdata.OperatorFund, error)
}

// InvoicePort creates the allocation invoice pair per fund.
type InvoicePort interface {
	CreateAllocationInvoices(ctx context.Context, batch invoicing.AllocationBatch) ([]invoicing.InvoiceSummary, error)
}

// RepositoryPort persists allocations.
type RepositoryPort interface {
	ReplaceForPeriod(ctx context.Context, alloc CostAllocation) (CostAllocation, error)
}

// Engine executes the cost-allocation pass. It implements
// settlement.AllocationPort and is invoked best-effort after credit-note
// generation; a repeated invocation for the same period replaces the prior
// allocation.
type Engine struct {
	funds    FundSource
	repo     RepositoryPort
	invoices InvoicePort
	logger   *slog.Logger
}

// NewEngine constructs the engine.
func NewEngine(funds FundSource, repo RepositoryPort, invoices InvoicePort, logger *slog.Logger) *Engine {
	return &Engine{funds: funds, repo: repo, invoices: invoices, logger: logger}
}

var hundred = decimal.NewFromInt(100)

// Allocate distributes the settlement total cost across the park's operator
// funds and generates their allocation invoices. Parks without the
// network-company ownership model are a no-op.
func (e *Engine) Allocate(ctx context.Context, req settlement.AllocationRequest) ([]invoicing.InvoiceSummary, error) {
	if req.Park.OwnershipModel != masterdata.OwnershipNetworkCompany {
		return nil, nil
	}
	if !req.TotalCost.IsPositive() {
		return nil, nil
	}

	funds, err := e.funds.ListOperatorFunds(ctx, req.TenantID, req.Park.ID)
	if err != nil {
		return nil, fmt.Errorf("allocation: list funds: %w", err)
	}
	if len(funds) == 0 {
		return nil, ErrNoOperatorFunds
	}
	var pctSum decimal.Decimal
	for _, fund := range funds {
		pctSum = pctSum.Add(fund.OwnershipPct)
	}
	if !pctSum.IsPositive() {
		return nil, ErrZeroOwnership
	}

	if req.Park.TaxableCostPortionPct.IsNegative() || req.Park.TaxableCostPortionPct.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: park %d has %s", ErrInvalidTaxablePortion,
			req.Park.ID, req.Park.TaxableCostPortionPct.String())
	}
	taxablePortion := req.Park.TaxableCostPortionPct.Div(hundred)
	alloc := CostAllocation{
		TenantID:           req.TenantID,
		SettlementPeriodID: req.Period.ID,
		ParkID:             req.Park.ID,
		PeriodLabel:        req.PeriodLabel,
		TotalCost:          req.TotalCost.Round(2),
	}
	specs := make([]invoicing.AllocationSpec, 0, len(funds))
	for _, fund := range funds {
		share := req.TotalCost.Mul(fund.OwnershipPct).Div(pctSum)
		taxable := share.Mul(taxablePortion).Round(2)
		exempt := share.Round(2).Sub(taxable)
		alloc.Lines = append(alloc.Lines, Line{
			OperatorFundID: fund.ID,
			FundName:       fund.Name,
			OwnershipPct:   fund.OwnershipPct,
			TotalShare:     share.Round(2),
			TaxableNet:     taxable,
			ExemptNet:      exempt,
		})
		specs = append(specs, invoicing.AllocationSpec{
			OperatorFundID: fund.ID,
			FundName:       fund.Name,
			TaxableNet:     taxable,
			ExemptNet:      exempt,
		})
	}

	if _, err := e.repo.ReplaceForPeriod(ctx, alloc); err != nil {
		return nil, err
	}

	summaries, err := e.invoices.CreateAllocationInvoices(ctx, invoicing.AllocationBatch{
		TenantID:           req.TenantID,
		SettlementPeriodID: req.Period.ID,
		Year:               req.Period.Year,
		PeriodLabel:        req.PeriodLabel,
		InitialStatus:      req.InitialStatus,
		Lines:              specs,
	})
	if err != nil {
		return nil, fmt.Errorf("allocation: generate invoices: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("cost allocation completed",
			slog.Int64("period_id", req.Period.ID),
			slog.Int("funds", len(funds)),
			slog.Int("invoices", len(summaries)))
	}
	return summaries, nil
}
