package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// PhasingStrategy scales a turbine's revenue share for settlement years in
// which the turbine was not in service for all twelve months. The exact
// business formula is contract-specific, so it is pluggable.
type PhasingStrategy interface {
	Factor(commissionedAt time.Time, year int) decimal.Decimal
}

// MonthlyProration prorates by full calendar months in service. The
// commissioning month counts as a full service month.
type MonthlyProration struct{}

var twelve = decimal.NewFromInt(12)

// Factor returns serviceMonths/12 for the given settlement year.
func (MonthlyProration) Factor(commissionedAt time.Time, year int) decimal.Decimal {
	if commissionedAt.IsZero() {
		return decimal.NewFromInt(1)
	}
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if commissionedAt.Before(yearStart) {
		return decimal.NewFromInt(1)
	}
	if commissionedAt.Year() > year {
		return decimal.Zero
	}
	months := 13 - int(commissionedAt.Month())
	return decimal.NewFromInt(int64(months)).Div(twelve)
}
