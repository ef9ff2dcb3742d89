package retina

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramWith(value, grad float64) *Param {
	p := NewParam("w", 0, 1)
	p.Value[0] = value
	p.Grad[0] = grad
	return p
}

func TestSGD(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		p := paramWith(1, 0.5)
		SGD(SGDConfig{LR: 0.1}).Step([]*Param{p})
		assert.InDelta(t, 0.95, p.Value[0], 1e-12)
	})

	t.Run("lr_scale", func(t *testing.T) {
		p := paramWith(1, 0.5)
		p.LRScale = 2
		SGD(SGDConfig{LR: 0.1}).Step([]*Param{p})
		assert.InDelta(t, 0.9, p.Value[0], 1e-12)
	})

	t.Run("momentum", func(t *testing.T) {
		p := paramWith(1, 0.5)
		opt := SGD(SGDConfig{LR: 0.1, Momentum: 0.9})
		opt.Step([]*Param{p})
		opt.Step([]*Param{p})
		assert.InDelta(t, 0.855, p.Value[0], 1e-12)
	})

	t.Run("set_lr", func(t *testing.T) {
		opt := SGD(SGDConfig{LR: 0.1})
		opt.SetLR(0.01)
		assert.Equal(t, 0.01, opt.LR())
	})
}

func TestAdam(t *testing.T) {
	opt := Adam(AdamConfig{LR: 0.01, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8})

	// the first bias-corrected step moves by lr in the gradient's direction
	a := paramWith(1, 0.5)
	b := paramWith(1, -2)
	opt.Step([]*Param{a, b})
	assert.InDelta(t, 0.99, a.Value[0], 1e-6)
	assert.InDelta(t, 1.01, b.Value[0], 1e-6)

	// a parameter first seen later gets its own bias correction
	opt.Step([]*Param{a})
	late := paramWith(1, 0.5)
	opt.Step([]*Param{late})
	assert.InDelta(t, 0.99, late.Value[0], 1e-6)
	assert.InDelta(t, 0.98, a.Value[0], 1e-6)
}

func TestNewOptimizer(t *testing.T) {
	opt, err := NewOptimizer(OptimizerAdam, OptimizerParams{LR: 0.001})
	require.NoError(t, err)
	adam, ok := opt.(*AdamOptimizer)
	require.True(t, ok)
	assert.Equal(t, 0.9, adam.Beta1)
	assert.Equal(t, 0.001, adam.LR())

	opt, err = NewOptimizer(OptimizerSGD, OptimizerParams{LR: 0.1})
	require.NoError(t, err)
	assert.Equal(t, "sgd", opt.name())

	_, err = NewOptimizer("rmsprop", OptimizerParams{LR: 0.1})
	assert.Error(t, err)

	_, err = NewOptimizer(OptimizerSGD, OptimizerParams{LR: 0})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "lr", ce.Field)
}

func TestZeroGrad(t *testing.T) {
	p := paramWith(1, 3)
	p.ZeroGrad()
	assert.Equal(t, []float64{0}, p.Grad)
	assert.Equal(t, []float64{1}, p.Value)
}
