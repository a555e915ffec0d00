// Package allocation implements the secondary cost-allocation pass for parks
// operated through an intermediary network company: the settlement's total
// cost is distributed across operator funds proportional to ownership, with a
// VAT/exempt split per fund.
package allocation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CostAllocation is one allocation run scoped to a settlement period.
type CostAllocation struct {
	ID                 int64
	TenantID           int64
	SettlementPeriodID int64
	ParkID             int64
	// PeriodLabel is persisted for audit display only, e.g. "Vorschuss Q2 2025".
	PeriodLabel string
	TotalCost   decimal.Decimal
	CreatedAt   time.Time
	Lines       []Line
}

// Line is one operator fund's share of the allocated cost.
type Line struct {
	ID               int64
	CostAllocationID int64
	OperatorFundID   int64
	FundName         string
	OwnershipPct     decimal.Decimal
	TotalShare       decimal.Decimal
	TaxableNet       decimal.Decimal
	ExemptNet        decimal.Decimal
}

// ErrNoOperatorFunds indicates a network-company park without any fund rows.
var ErrNoOperatorFunds = errors.New("allocation: park has no operator funds")

// ErrZeroOwnership indicates fund ownership percentages summing to zero.
var ErrZeroOwnership = errors.New("allocation: ownership percentages sum to zero")

// ErrInvalidTaxablePortion indicates a park whose taxable cost portion lies
// outside 0..100 percent.
var ErrInvalidTaxablePortion = errors.New("allocation: taxable cost portion must be between 0 and 100 percent")
