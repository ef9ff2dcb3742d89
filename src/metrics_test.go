package retina

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.75, Score(Accuracy(), []int{0, 1, 2, 2}, []int{0, 1, 2, 3}))
	assert.Equal(t, 0.0, Score(Accuracy(), nil, nil))

	m := Accuracy()
	m.update([]int{1}, []int{1})
	m.update([]int{1}, []int{0})
	assert.Equal(t, 0.5, m.result())
	m.reset()
	assert.Equal(t, 0.0, m.result())
}

func TestQuadraticKappa(t *testing.T) {
	target := []int{0, 1, 2, 3, 4}
	tests := []struct {
		name string
		pred []int
		want float64
	}{
		{"perfect", []int{0, 1, 2, 3, 4}, 1},
		{"constant_guess", []int{2, 2, 2, 2, 2}, 0},
		{"reversed", []int{4, 3, 2, 1, 0}, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Score(QuadraticKappa(5), tc.pred, target), 1e-12)
		})
	}
}

func TestMetricsIgnoreUnpairedPredictions(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, 1.0, Score(Accuracy(), []int{0, 1, 2}, []int{0, 1}))
		assert.Equal(t, 1.0, Score(QuadraticKappa(3), []int{0, 1, 2}, []int{0, 1}))
	})
}

func TestQuadraticKappaEdgeCases(t *testing.T) {
	k := QuadraticKappa(5)
	assert.Equal(t, 0.0, Score(k, nil, nil))

	// every sample in one cell
	assert.Equal(t, 1.0, Score(k, []int{3, 3}, []int{3, 3}))

	// out of range grades are ignored
	assert.Equal(t, 1.0, Score(k, []int{1, 9, 2}, []int{1, 1, 2}))
}
