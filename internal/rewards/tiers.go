package rewards

import (
	"github.com/SOLdier200/xessex-sub002/internal/models"
)

// Tier maps a minimum on-chain token balance (atomic units, 9 decimals) to
// a monthly Special Credit allowance. Tier 0 is "below minimum" and earns
// nothing. The table is ordered by ascending MinBalanceAtomic and is passed
// explicitly into the accrual engine so a run is reproducible from its
// inputs.
type Tier struct {
	MinBalanceAtomic int64
	MonthlyCredits   int64
}

const tokenAtomic = 1_000_000_000 // SPL token, 9 decimals

// DefaultTierTable is the production ladder.
func DefaultTierTable() []Tier {
	return []Tier{
		{MinBalanceAtomic: 0, MonthlyCredits: 0},
		{MinBalanceAtomic: 10_000 * tokenAtomic, MonthlyCredits: 40},
		{MinBalanceAtomic: 25_000 * tokenAtomic, MonthlyCredits: 120},
		{MinBalanceAtomic: 50_000 * tokenAtomic, MonthlyCredits: 240},
		{MinBalanceAtomic: 100_000 * tokenAtomic, MonthlyCredits: 800},
		{MinBalanceAtomic: 250_000 * tokenAtomic, MonthlyCredits: 2_000},
		{MinBalanceAtomic: 500_000 * tokenAtomic, MonthlyCredits: 4_000},
		{MinBalanceAtomic: 1_000_000 * tokenAtomic, MonthlyCredits: 8_000},
		{MinBalanceAtomic: 2_500_000 * tokenAtomic, MonthlyCredits: 12_000},
		{MinBalanceAtomic: 5_000_000 * tokenAtomic, MonthlyCredits: 16_000},
	}
}

// TierForBalance returns the highest tier index the balance qualifies for.
func TierForBalance(table []Tier, balanceAtomic int64) int {
	for i := len(table) - 1; i >= 0; i-- {
		if balanceAtomic >= table[i].MinBalanceAtomic {
			return i
		}
	}
	return 0
}

// MonthlyCreditsForTier returns the tier's monthly allowance in whole
// credits, zero for out-of-range tiers.
func MonthlyCreditsForTier(table []Tier, tier int) int64 {
	if tier < 0 || tier >= len(table) {
		return 0
	}
	return table[tier].MonthlyCredits
}

// Accrue computes one half-day accrual in micro-credits with fractional
// carry. runs = daysInMonth*2; the remainder of the integer division is
// retained so that accrual*runs + carry reconstructs the monthly allowance
// exactly: no micro-credit is ever lost to rounding.
func Accrue(monthlyCredits, carryInMicro int64, daysInMonth int) (accrualMicro, carryOutMicro int64) {
	if monthlyCredits <= 0 || daysInMonth <= 0 {
		return 0, 0
	}
	runs := int64(daysInMonth) * 2
	total := monthlyCredits*models.CreditMicro + carryInMicro*runs
	return total / runs, total % runs
}
