package retina

import (
	"math"
	"math/rand"
	"slices"

	"github.com/samber/lo"
)

// Rebalance returns the sample indices to visit in one epoch. Classes are
// oversampled according to strategy and the result is shuffled. Every
// original sample appears at least once.
func Rebalance(labels []int, strategy RebalanceStrategy, rng *rand.Rand) ([]int, error) {
	all := lo.Range(len(labels))

	var out []int
	switch strategy {
	case RebalanceNone:
		out = all

	case RebalanceEven, RebalanceAlmostEven:
		groups := lo.GroupBy(all, func(i int) int { return labels[i] })
		largest := lo.Max(lo.Map(lo.Values(groups), func(g []int, _ int) int { return len(g) }))
		classes := lo.Keys(groups)
		slices.Sort(classes)
		for _, c := range classes {
			target := largest
			if strategy == RebalanceAlmostEven {
				target = int(math.Ceil(math.Sqrt(float64(len(groups[c]) * largest))))
			}
			out = append(out, oversample(groups[c], target, rng)...)
		}

	case RebalancePosNeg:
		neg, pos := lo.FilterReject(all, func(i int, _ int) bool { return labels[i] == 0 })
		if len(neg) == 0 || len(pos) == 0 {
			out = all
			break
		}
		target := max(len(neg), len(pos))
		out = append(oversample(neg, target, rng), oversample(pos, target, rng)...)

	default:
		return nil, configErrorf("data_params", "rebalance_strategy", strategy,
			"must be one of even, posneg, almost_even, none")
	}

	out = slices.Clone(out)
	shuffleInts(out, rng)
	return out, nil
}

// oversample cycles through a shuffled copy of idx until target entries are
// drawn, so repeats are spread evenly
func oversample(idx []int, target int, rng *rand.Rand) []int {
	if target <= len(idx) {
		return idx
	}
	pool := slices.Clone(idx)
	shuffleInts(pool, rng)
	out := make([]int, target)
	for k := range out {
		out[k] = pool[k%len(pool)]
	}
	return out
}

// ClassCounts returns the number of samples per class label
func ClassCounts(labels []int, indices []int) map[int]int {
	return lo.CountValues(lo.Map(indices, func(i int, _ int) int { return labels[i] }))
}
