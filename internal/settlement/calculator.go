package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/windward-ops/windward/internal/masterdata"
)

// Calculator turns lease, turbine, and revenue inputs into per-lessor amounts.
// It is pure: safe to call repeatedly, persists nothing.
type Calculator struct {
	phasing PhasingStrategy
}

// NewCalculator builds a calculator. A nil strategy defaults to monthly
// proration of partial service years.
func NewCalculator(phasing PhasingStrategy) *Calculator {
	if phasing == nil {
		phasing = MonthlyProration{}
	}
	return &Calculator{phasing: phasing}
}

// CalculationInput bundles everything one calculation run needs.
type CalculationInput struct {
	Period   SettlementPeriod
	Snapshot masterdata.ParkSnapshot
	// TotalRevenue is the park's energy revenue for the year. Required for
	// FINAL periods; ignored for ADVANCE periods, which pay the guarantee
	// floor regardless of production.
	TotalRevenue decimal.Decimal
	// PaidAdvances maps lease id to the gross sum of accepted advance
	// invoices for the same park and year.
	PaidAdvances map[int64]decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Calculate dispatches on the period type and returns the tagged result.
func (c *Calculator) Calculate(in CalculationInput) (Calculation, error) {
	switch in.Period.Type {
	case PeriodAdvance:
		result, err := c.calculateAdvance(in)
		if err != nil {
			return Calculation{}, err
		}
		return Calculation{PeriodType: PeriodAdvance, Advance: result}, nil
	case PeriodFinal:
		result, err := c.calculateFinal(in)
		if err != nil {
			return Calculation{}, err
		}
		return Calculation{PeriodType: PeriodFinal, Final: result}, nil
	default:
		return Calculation{}, fmt.Errorf("settlement: unknown period type %q", string(in.Period.Type))
	}
}

// calculateAdvance derives the minimum-rent advance per lease. The monthly
// baseline is the lease's annual minimum rent divided by twelve, scaled by
// the interval factor.
func (c *Calculator) calculateAdvance(in CalculationInput) (*AdvanceResult, error) {
	factor, err := in.Period.AdvanceInterval.ScaleFactor()
	if err != nil {
		return nil, err
	}

	result := &AdvanceResult{Interval: in.Period.AdvanceInterval}
	var sumAnnualMinimum, sumAmount decimal.Decimal
	for _, lease := range in.Snapshot.Leases {
		poolWeight := poolWeight(in.Snapshot.Park, lease)
		turbineCount := decimal.NewFromInt(int64(len(lease.TurbineIDs)))
		annualMinimum := lease.MinimumRentPerTurbine.Mul(turbineCount.Add(poolWeight))
		monthlyBase := annualMinimum.Div(twelve)
		amount := monthlyBase.Mul(factor)

		sumAnnualMinimum = sumAnnualMinimum.Add(annualMinimum)
		sumAmount = sumAmount.Add(amount)
		result.Lines = append(result.Lines, AdvanceLine{
			LeaseID:      lease.ID,
			LessorName:   lease.LessorName,
			TurbineCount: len(lease.TurbineIDs),
			PoolWeight:   poolWeight.Round(4),
			MonthlyBase:  monthlyBase.Round(2),
			Amount:       amount.Round(2),
		})
	}
	result.Totals = Totals{
		LeaseCount:   len(in.Snapshot.Leases),
		MinimumRent:  sumAnnualMinimum.Round(2),
		FinalPayment: sumAmount.Round(2),
	}
	return result, nil
}

// calculateFinal reconciles minimum rent against revenue share for the year.
// The minimum-rent guarantee applies per turbine before summation: a lease
// can have turbines below and above their individual floor at the same time,
// so comparing lease-level aggregates would understate the payment.
func (c *Calculator) calculateFinal(in CalculationInput) (*FinalResult, error) {
	revenue := in.TotalRevenue

	result := &FinalResult{}
	var sumMinimum, sumShare, sumPaid, sumFinal decimal.Decimal
	for _, lease := range in.Snapshot.Leases {
		var leaseMinimum, leaseShare, leasePayment decimal.Decimal
		weaScale := lease.WEASharePct.Div(hundred)
		for _, turbineID := range lease.TurbineIDs {
			turbine, ok := in.Snapshot.TurbineByID(turbineID)
			if !ok {
				return nil, fmt.Errorf("settlement: turbine %d not assigned to park %d", turbineID, in.Snapshot.Park.ID)
			}
			phase := c.phasing.Factor(turbine.CommissionedAt, in.Period.Year)
			share := revenue.
				Mul(turbine.RevenueSharePct).Div(hundred).
				Mul(weaScale).
				Mul(phase)
			leaseMinimum = leaseMinimum.Add(lease.MinimumRentPerTurbine)
			leaseShare = leaseShare.Add(share)
			leasePayment = leasePayment.Add(decimal.Max(lease.MinimumRentPerTurbine, share))
		}

		// Pooled area behaves as a fractional turbine with the same floor.
		if weight := poolWeight(in.Snapshot.Park, lease); weight.IsPositive() {
			poolMinimum := lease.MinimumRentPerTurbine.Mul(weight)
			poolShare := revenue.Mul(lease.PoolSharePct).Div(hundred).Mul(weight)
			leaseMinimum = leaseMinimum.Add(poolMinimum)
			leaseShare = leaseShare.Add(poolShare)
			leasePayment = leasePayment.Add(decimal.Max(poolMinimum, poolShare))
		}

		paid := decimal.Zero
		if in.PaidAdvances != nil {
			if amount, ok := in.PaidAdvances[lease.ID]; ok {
				paid = amount
			}
		}
		finalPayment := leasePayment.Sub(paid).Round(2)

		sumMinimum = sumMinimum.Add(leaseMinimum)
		sumShare = sumShare.Add(leaseShare)
		sumPaid = sumPaid.Add(paid)
		sumFinal = sumFinal.Add(leasePayment.Sub(paid))
		result.Lines = append(result.Lines, FinalLine{
			LeaseID:      lease.ID,
			LessorName:   lease.LessorName,
			MinimumRent:  leaseMinimum.Round(2),
			RevenueShare: leaseShare.Round(2),
			PaidAdvances: paid.Round(2),
			TotalPayment: leasePayment.Round(2),
			FinalPayment: finalPayment,
			IsCredit:     finalPayment.IsPositive(),
		})
	}
	result.Totals = Totals{
		LeaseCount:   len(in.Snapshot.Leases),
		MinimumRent:  sumMinimum.Round(2),
		RevenueShare: sumShare.Round(2),
		PaidAdvances: sumPaid.Round(2),
		FinalPayment: sumFinal.Round(2),
	}
	return result, nil
}

// poolWeight is the lease's fraction of the park's pooled area.
func poolWeight(park masterdata.Park, lease masterdata.Lease) decimal.Decimal {
	if !lease.PoolAreaM2.IsPositive() || !park.PoolAreaM2.IsPositive() {
		return decimal.Zero
	}
	return lease.PoolAreaM2.Div(park.PoolAreaM2)
}
