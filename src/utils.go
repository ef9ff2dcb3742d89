package retina

import (
	"math/rand"

	"github.com/pkg/errors"
)

// shuffleInts shuffles indices in-place
func shuffleInts(idx []int, rng *rand.Rand) {
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

// sampleSeed derives a per-sample seed so augmentation does not depend on
// worker scheduling
func sampleSeed(seed int64, epoch, index int) int64 {
	h := uint64(seed)*0x9E3779B97F4A7C15 ^ uint64(epoch)*0xBF58476D1CE4E5B9 ^ uint64(index)*0x94D049BB133111EB
	h ^= h >> 31
	return int64(h)
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}

// errorf creates a formatted error
func errorf(format string, args ...any) error {
	return errors.Errorf("retina: "+format, args...)
}
