package settlement

import "fmt"

// PeriodLabel builds the human-readable label persisted on cost allocations
// and invoice descriptions, e.g. "Vorschuss Q2 2025" or "Nutzungsentgelt 2025".
// Audit display only, never used in calculation.
func PeriodLabel(p SettlementPeriod) string {
	if p.Type == PeriodFinal {
		return fmt.Sprintf("Nutzungsentgelt %d", p.Year)
	}
	switch p.AdvanceInterval {
	case IntervalQuarterly:
		quarter := 1
		if p.Month != nil {
			quarter = (*p.Month-1)/3 + 1
		}
		return fmt.Sprintf("Vorschuss Q%d %d", quarter, p.Year)
	case IntervalMonthly:
		month := 1
		if p.Month != nil {
			month = *p.Month
		}
		return fmt.Sprintf("Vorschuss %02d/%d", month, p.Year)
	default:
		return fmt.Sprintf("Vorschuss %d", p.Year)
	}
}
