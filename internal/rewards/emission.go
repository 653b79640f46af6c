package rewards

import (
	"math/big"
	"sort"

	"github.com/SOLdier200/xessex-sub002/internal/models"
)

// Basis-point weights splitting the weekly emission into the three
// top-level pools. Fixed by the reward design, not configurable.
const (
	BpsBase         int64 = 10_000
	LikesPoolBps    int64 = 7_500
	MVMPoolBps      int64 = 2_000
	CommentsPoolBps int64 = 500
)

// LadderThousandths are the rank-dependent ladder percentages for a top-50
// pool, expressed in thousandths of a percent so rank 11..50 (0.625%) stays
// integral. 20 + 12 + 8 + 5x7 + 0.625x40 = 100.
var LadderThousandths = buildLadder()

func buildLadder() []int64 {
	l := make([]int64, 0, 50)
	l = append(l, 20_000, 12_000, 8_000)
	for i := 0; i < 7; i++ {
		l = append(l, 5_000)
	}
	for i := 0; i < 40; i++ {
		l = append(l, 625)
	}
	return l
}

const ladderBase int64 = 100_000

// WeeklyEmissionMicro is the total token emission for a week index, in
// token micro-units. A step function with four decreasing tiers.
func WeeklyEmissionMicro(weekIndex int) int64 {
	switch {
	case weekIndex < 12:
		return 666_667 * models.TokenMicro
	case weekIndex < 39:
		return 500_000 * models.TokenMicro
	case weekIndex < 78:
		return 333_333 * models.TokenMicro
	default:
		return 166_667 * models.TokenMicro
	}
}

// RankedEntry is one eligible entity with its ordering metric.
type RankedEntry struct {
	UserID string
	Metric int64
}

// mulDiv computes a*b/c without intermediate overflow.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

// BpsShare returns amount*bps/10000.
func BpsShare(amount, bps int64) int64 {
	return mulDiv(amount, bps, BpsBase)
}

// SplitRankedPool distributes a sub-pool across at most the top 50 entries:
// 80% proportional to each entry's share of the summed metric, 20% by the
// fixed rank ladder. Entries must already be filtered for eligibility and
// minimum metric; they are ordered here by descending metric (user id as
// tiebreak) before rank assignment.
func SplitRankedPool(poolMicro int64, entries []RankedEntry) map[string]int64 {
	out := make(map[string]int64)
	if poolMicro <= 0 || len(entries) == 0 {
		return out
	}

	ranked := make([]RankedEntry, len(entries))
	copy(ranked, entries)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Metric != ranked[j].Metric {
			return ranked[i].Metric > ranked[j].Metric
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	if len(ranked) > len(LadderThousandths) {
		ranked = ranked[:len(LadderThousandths)]
	}

	var sumMetric int64
	for _, e := range ranked {
		sumMetric += e.Metric
	}

	basePool := mulDiv(poolMicro, 80, 100)
	ladderPool := mulDiv(poolMicro, 20, 100)

	for i, e := range ranked {
		var base int64
		if sumMetric > 0 {
			base = mulDiv(basePool, e.Metric, sumMetric)
		}
		ladder := mulDiv(ladderPool, LadderThousandths[i], ladderBase)
		if total := base + ladder; total > 0 {
			out[e.UserID] += total
		}
	}
	return out
}

// SplitProportional distributes a pool strictly proportional to each
// entry's metric, with no ladder and no rank cutoff. Used for the voter and
// comments pools.
func SplitProportional(poolMicro int64, entries []RankedEntry) map[string]int64 {
	out := make(map[string]int64)
	if poolMicro <= 0 || len(entries) == 0 {
		return out
	}
	var sum int64
	for _, e := range entries {
		sum += e.Metric
	}
	if sum <= 0 {
		return out
	}
	for _, e := range entries {
		if v := mulDiv(poolMicro, e.Metric, sum); v > 0 {
			out[e.UserID] += v
		}
	}
	return out
}
