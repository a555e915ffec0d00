package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeriodLabel(t *testing.T) {
	cases := []struct {
		name   string
		period SettlementPeriod
		want   string
	}{
		{
			name:   "final",
			period: SettlementPeriod{Type: PeriodFinal, Year: 2025},
			want:   "Nutzungsentgelt 2025",
		},
		{
			name:   "quarterly second quarter",
			period: SettlementPeriod{Type: PeriodAdvance, Year: 2025, AdvanceInterval: IntervalQuarterly, Month: intPtr(4)},
			want:   "Vorschuss Q2 2025",
		},
		{
			name:   "quarterly last month of quarter",
			period: SettlementPeriod{Type: PeriodAdvance, Year: 2025, AdvanceInterval: IntervalQuarterly, Month: intPtr(12)},
			want:   "Vorschuss Q4 2025",
		},
		{
			name:   "monthly zero padded",
			period: SettlementPeriod{Type: PeriodAdvance, Year: 2025, AdvanceInterval: IntervalMonthly, Month: intPtr(3)},
			want:   "Vorschuss 03/2025",
		},
		{
			name:   "yearly",
			period: SettlementPeriod{Type: PeriodAdvance, Year: 2025, AdvanceInterval: IntervalYearly},
			want:   "Vorschuss 2025",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PeriodLabel(tc.period))
		})
	}
}
