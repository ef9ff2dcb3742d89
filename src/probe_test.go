package retina

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBatch(n int, labels []int, seed int64) *Batch {
	rng := rand.New(rand.NewSource(seed))
	images := NewTensor(n, 3, 4, 4)
	for i := range images.Data {
		images.Data[i] = rng.Float32()
	}
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	return &Batch{Images: images, Labels: labels, Names: names}
}

func TestNewLinearProbe(t *testing.T) {
	p, err := NewLinearProbe(LinearProbeConfig{Hidden: 4, NumClasses: 5, Seed: 1})
	require.NoError(t, err)

	params := p.Params()
	require.Len(t, params, 4)
	assert.Equal(t, "hidden.weight", params[0].Name)
	assert.Equal(t, 0, params[1].Layer)
	assert.Equal(t, 1, params[2].Layer)
	assert.Len(t, params[2].Value, 20)
	assert.Equal(t, 2, NewParamSet(params).NumLayers())

	for _, v := range params[0].Value {
		assert.LessOrEqual(t, v, 0.8)
		assert.GreaterOrEqual(t, v, -0.8)
	}

	_, err = NewLinearProbe(LinearProbeConfig{Hidden: 0, NumClasses: 5})
	assert.Error(t, err)
	_, err = NewLinearProbe(LinearProbeConfig{Hidden: 4, NumClasses: 1})
	assert.Error(t, err)
}

func TestImageStats(t *testing.T) {
	images := NewTensor(1, 3, 1, 2)
	copy(images.Data, []float32{1, 3, 2, 2, 0, 4})
	stats, err := imageStats(images)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.InDeltaSlice(t, []float64{2, 2, 2, 1, 0, 2}, stats[0], 1e-9)

	stats, err = imageStats(NewTensor(0, 3, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestLinearProbeRejectsBadShape(t *testing.T) {
	ctx := context.Background()
	p, err := NewLinearProbe(LinearProbeConfig{Hidden: 2, NumClasses: 3, Seed: 1})
	require.NoError(t, err)

	for _, images := range []*Tensor{nil, NewTensor(3, 4, 4), NewTensor(1, 1, 4, 4)} {
		b := &Batch{Images: images, Labels: []int{0}, Names: []string{"a"}}
		_, err := p.TrainStep(ctx, b)
		assert.ErrorContains(t, err, "[B 3 H W]")
		_, _, err = p.Evaluate(ctx, b)
		assert.Error(t, err)
		_, err = p.Predict(ctx, b)
		assert.Error(t, err)
	}
	for _, prm := range p.Params() {
		assert.Equal(t, make([]float64, len(prm.Grad)), prm.Grad, prm.Name)
	}
}

func TestLinearProbeGradients(t *testing.T) {
	ctx := context.Background()
	p, err := NewLinearProbe(LinearProbeConfig{Hidden: 5, NumClasses: 3, Seed: 7})
	require.NoError(t, err)
	b := randomBatch(4, []int{0, 2, 1, 2}, 3)

	for _, prm := range p.Params() {
		prm.ZeroGrad()
	}
	_, err = p.TrainStep(ctx, b)
	require.NoError(t, err)

	const eps = 1e-6
	for _, prm := range p.Params() {
		for j := range prm.Value {
			orig := prm.Value[j]
			prm.Value[j] = orig + eps
			up, _, err := p.Evaluate(ctx, b)
			require.NoError(t, err)
			prm.Value[j] = orig - eps
			down, _, err := p.Evaluate(ctx, b)
			require.NoError(t, err)
			prm.Value[j] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, prm.Grad[j], 1e-5, "%s[%d]", prm.Name, j)
		}
	}
}

func TestLinearProbeLearns(t *testing.T) {
	ctx := context.Background()
	p, err := NewLinearProbe(LinearProbeConfig{Hidden: 8, NumClasses: 3, Seed: 1})
	require.NoError(t, err)
	b := randomBatch(6, []int{0, 1, 2, 0, 1, 2}, 5)
	opt := Adam(AdamConfig{LR: 0.05, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})

	first, _, err := p.Evaluate(ctx, b)
	require.NoError(t, err)
	for range 200 {
		for _, prm := range p.Params() {
			prm.ZeroGrad()
		}
		_, err := p.TrainStep(ctx, b)
		require.NoError(t, err)
		opt.Step(p.Params())
	}
	last, pred, err := p.Evaluate(ctx, b)
	require.NoError(t, err)
	assert.Less(t, last, first)
	assert.Len(t, pred, 6)

	got, err := p.Predict(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, pred, got)
}

func TestLinearProbeRejectsBadLabels(t *testing.T) {
	p, err := NewLinearProbe(LinearProbeConfig{Hidden: 2, NumClasses: 3, Seed: 1})
	require.NoError(t, err)

	_, err = p.TrainStep(context.Background(), randomBatch(2, []int{0, 3}, 1))
	assert.ErrorContains(t, err, `label 3 of "b"`)
	_, _, err = p.Evaluate(context.Background(), randomBatch(1, []int{-1}, 1))
	assert.Error(t, err)
}

func TestLinearProbeSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.json")

	a, err := NewLinearProbe(LinearProbeConfig{Hidden: 3, NumClasses: 5, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, a.Save(path))

	b, err := NewLinearProbe(LinearProbeConfig{Hidden: 3, NumClasses: 5, Seed: 2})
	require.NoError(t, err)
	require.NotEqual(t, a.w0.Value, b.w0.Value)
	require.NoError(t, b.Load(path))
	for i, prm := range a.Params() {
		assert.Equal(t, prm.Value, b.Params()[i].Value, prm.Name)
	}

	other, err := NewLinearProbe(LinearProbeConfig{Hidden: 4, NumClasses: 5, Seed: 1})
	require.NoError(t, err)
	assert.ErrorContains(t, other.Load(path), "want hidden=4")

	assert.ErrorContains(t, b.Load(filepath.Join(dir, "missing.json")), "failed to open")
}
