// Package settlement implements the lease revenue settlement core: period
// lifecycle, the advance/final calculators, advance reconciliation, and the
// orchestration of credit-note and cost-allocation invoice generation.
package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodType distinguishes advance periods from the year-end settlement.
type PeriodType string

const (
	PeriodAdvance PeriodType = "ADVANCE"
	PeriodFinal   PeriodType = "FINAL"
)

// AdvanceInterval is the billing cadence of an advance period.
type AdvanceInterval string

const (
	IntervalYearly    AdvanceInterval = "YEARLY"
	IntervalQuarterly AdvanceInterval = "QUARTERLY"
	IntervalMonthly   AdvanceInterval = "MONTHLY"
)

// ScaleFactor returns the multiple of the monthly minimum-rent baseline
// covered by one advance of this interval.
func (i AdvanceInterval) ScaleFactor() (decimal.Decimal, error) {
	switch i {
	case IntervalMonthly:
		return decimal.NewFromInt(1), nil
	case IntervalQuarterly:
		return decimal.NewFromInt(3), nil
	case IntervalYearly:
		return decimal.NewFromInt(12), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("settlement: unknown advance interval %q", string(i))
	}
}

// PeriodStatus enumerates the settlement period lifecycle.
type PeriodStatus string

const (
	StatusOpen          PeriodStatus = "OPEN"
	StatusInProgress    PeriodStatus = "IN_PROGRESS"
	StatusPendingReview PeriodStatus = "PENDING_REVIEW"
	StatusApproved      PeriodStatus = "APPROVED"
	StatusClosed        PeriodStatus = "CLOSED"
	StatusCancelled     PeriodStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s PeriodStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// Recalculable reports whether the period still accepts calculation runs.
func (s PeriodStatus) Recalculable() bool {
	return s == StatusOpen || s == StatusInProgress
}

// SettlementPeriod is one row per (tenant, park, year, month, periodType).
type SettlementPeriod struct {
	ID       int64
	TenantID int64
	ParkID   int64
	Year     int
	// Month is set for sub-yearly advance periods, nil otherwise.
	Month *int
	Type  PeriodType
	// AdvanceInterval is empty for FINAL periods.
	AdvanceInterval AdvanceInterval
	Status          PeriodStatus
	// Aggregate totals, nil until the first calculation is persisted.
	TotalRevenue    *decimal.Decimal
	TotalMinimumRent *decimal.Decimal
	TotalActualRent  *decimal.Decimal
	// LinkedEnergySettlementID references an external energy-metering settlement.
	LinkedEnergySettlementID *int64
	Notes                    string
	CreatedBy                int64
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Calculated reports whether a calculation has ever been persisted.
func (p SettlementPeriod) Calculated() bool {
	return p.TotalMinimumRent != nil
}

// CreatePeriodInput captures the create-or-reuse contract parameters.
type CreatePeriodInput struct {
	TenantID        int64
	ParkID          int64
	Year            int
	Month           *int
	Type            PeriodType
	AdvanceInterval AdvanceInterval
	Notes           string
	CreatedBy       int64
}

// Validate ensures the month/interval combination is coherent.
func (in CreatePeriodInput) Validate() error {
	if in.TenantID == 0 || in.ParkID == 0 {
		return errors.New("settlement: tenant and park are required")
	}
	if in.Year < 2000 || in.Year > 2100 {
		return fmt.Errorf("settlement: year %d out of range", in.Year)
	}
	if in.Month != nil && (*in.Month < 1 || *in.Month > 12) {
		return fmt.Errorf("settlement: month %d out of range", *in.Month)
	}
	switch in.Type {
	case PeriodFinal:
		if in.AdvanceInterval != "" {
			return errors.New("settlement: final period cannot carry an advance interval")
		}
		if in.Month != nil {
			return errors.New("settlement: final period cannot carry a month")
		}
	case PeriodAdvance:
		switch in.AdvanceInterval {
		case IntervalYearly:
			if in.Month != nil {
				return errors.New("settlement: yearly advance cannot carry a month")
			}
		case IntervalQuarterly, IntervalMonthly:
			if in.Month == nil {
				return errors.New("settlement: sub-yearly advance requires a month")
			}
		default:
			return errors.New("settlement: advance period requires a valid interval")
		}
	default:
		return fmt.Errorf("settlement: unknown period type %q", string(in.Type))
	}
	return nil
}

// Totals aggregates a calculation across all leases. Amounts are rounded to
// two decimal places at the point of reporting.
type Totals struct {
	LeaseCount   int             `json:"leaseCount"`
	MinimumRent  decimal.Decimal `json:"minimumRent"`
	RevenueShare decimal.Decimal `json:"revenueShare"`
	PaidAdvances decimal.Decimal `json:"paidAdvances"`
	FinalPayment decimal.Decimal `json:"finalPayment"`
}

// AdvanceLine is the calculated advance for one lease.
type AdvanceLine struct {
	LeaseID      int64           `json:"leaseId"`
	LessorName   string          `json:"lessorName"`
	TurbineCount int             `json:"turbineCount"`
	PoolWeight   decimal.Decimal `json:"poolWeight"`
	MonthlyBase  decimal.Decimal `json:"monthlyBase"`
	Amount       decimal.Decimal `json:"amount"`
}

// AdvanceResult is the calculation outcome for an ADVANCE period.
type AdvanceResult struct {
	Interval AdvanceInterval `json:"interval"`
	Lines    []AdvanceLine   `json:"lines"`
	Totals   Totals          `json:"totals"`
}

// FinalLine is the year-end settlement for one lease. FinalPayment is
// TotalPayment minus PaidAdvances and may be negative when the lessor was
// overpaid via advances. IsCredit is true exactly when FinalPayment > 0.
type FinalLine struct {
	LeaseID      int64           `json:"leaseId"`
	LessorName   string          `json:"lessorName"`
	MinimumRent  decimal.Decimal `json:"totalMinimumRent"`
	RevenueShare decimal.Decimal `json:"totalRevenueShare"`
	PaidAdvances decimal.Decimal `json:"alreadyPaidAdvances"`
	TotalPayment decimal.Decimal `json:"totalPayment"`
	FinalPayment decimal.Decimal `json:"finalPayment"`
	IsCredit     bool            `json:"isCredit"`
}

// FinalResult is the calculation outcome for a FINAL period.
type FinalResult struct {
	Lines  []FinalLine `json:"lines"`
	Totals Totals      `json:"totals"`
}

// Calculation is the tagged per-period-type result, one variant set.
type Calculation struct {
	PeriodType PeriodType     `json:"periodType"`
	Advance    *AdvanceResult `json:"advance,omitempty"`
	Final      *FinalResult   `json:"final,omitempty"`
}

// ErrPeriodNotFound indicates the period does not exist for the tenant.
// Wrong-tenant reads surface as not found, never as a different error, so
// existence does not leak across tenants.
var ErrPeriodNotFound = errors.New("settlement: period not found")

// ErrNotCalculated indicates invoice generation before any calculation run.
var ErrNotCalculated = errors.New("settlement: period has no calculated items, run calculation first")

// ErrRevenueRequired indicates a final calculation without a revenue figure.
var ErrRevenueRequired = errors.New("settlement: total revenue required for final calculation")

// ErrNotAdvancePeriod indicates advance invoice generation on a final period.
var ErrNotAdvancePeriod = errors.New("settlement: not an advance period")

// ErrNotFinalPeriod indicates settlement invoice generation on an advance period.
var ErrNotFinalPeriod = errors.New("settlement: not a final period")

// PeriodExistsError reports a create conflict naming the blocking status.
type PeriodExistsError struct {
	PeriodID int64
	Status   PeriodStatus
}

func (e *PeriodExistsError) Error() string {
	return fmt.Sprintf("settlement: period already exists with status %s", e.Status)
}

// StateError reports an operation invalid for the period's current status.
type StateError struct {
	Current  PeriodStatus
	Required []PeriodStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("settlement: period status is %s, requires one of %v", e.Current, e.Required)
}
