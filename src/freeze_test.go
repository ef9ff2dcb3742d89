package retina

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// three layers with 4, 2 and 1 values
func layeredParams() []*Param {
	return []*Param{
		NewParam("conv.weight", 0, 3),
		NewParam("conv.bias", 0, 1),
		NewParam("block.weight", 1, 2),
		NewParam("fc.weight", 2, 1),
	}
}

func TestParamSetFreeze(t *testing.T) {
	s := NewParamSet(layeredParams())
	require.Equal(t, 3, s.NumLayers())
	assert.Equal(t, 7, s.TotalParameters())

	require.NoError(t, s.FreezeTo(2))
	assert.Equal(t, []int{0, 1}, s.FrozenLayers())
	assert.True(t, s.IsFrozen(1))
	assert.False(t, s.IsFrozen(2))
	assert.Equal(t, 1, s.TrainableParameters())
	require.Len(t, s.Trainable(), 1)
	assert.Equal(t, "fc.weight", s.Trainable()[0].Name)

	require.NoError(t, s.Unfreeze(0))
	assert.Equal(t, []int{1}, s.FrozenLayers())

	s.UnfreezeAll()
	assert.Empty(t, s.FrozenLayers())

	assert.Error(t, s.Freeze(3))
	assert.Error(t, s.Unfreeze(-1))
	assert.Error(t, s.FreezeTo(4))
}

func TestParamSetConfigure(t *testing.T) {
	cfg := DefaultConfig().Model

	t.Run("freeze_until_layer", func(t *testing.T) {
		s := NewParamSet(layeredParams())
		cfg := cfg
		cfg.Kwargs.FreezeFeatures = true
		cfg.Kwargs.FreezeUntilLayer = 2
		cfg.PerLayerRates = false
		require.NoError(t, s.Configure(cfg))
		assert.Equal(t, []int{0, 1}, s.FrozenLayers())
	})

	t.Run("freeze_clamped_to_layers", func(t *testing.T) {
		s := NewParamSet(layeredParams())
		cfg := cfg
		cfg.Kwargs.FreezeFeatures = true
		cfg.Kwargs.FreezeUntilLayer = 40
		require.NoError(t, s.Configure(cfg))
		assert.Equal(t, []int{0, 1, 2}, s.FrozenLayers())
		assert.Zero(t, s.TrainableParameters())
	})

	t.Run("no_freeze", func(t *testing.T) {
		s := NewParamSet(layeredParams())
		cfg := cfg
		cfg.Kwargs.FreezeFeatures = false
		require.NoError(t, s.Configure(cfg))
		assert.Empty(t, s.FrozenLayers())
	})

	t.Run("per_layer_rates", func(t *testing.T) {
		params := layeredParams()
		s := NewParamSet(params)
		cfg := cfg
		cfg.PerLayerRates = true
		cfg.Kwargs.Rates = []float64{0.1, 0.5}
		require.NoError(t, s.Configure(cfg))
		assert.Equal(t, 0.1, params[0].LRScale)
		assert.Equal(t, 0.5, params[2].LRScale)
		assert.Equal(t, 0.5, params[3].LRScale, "last rate repeats")

		cfg.PerLayerRates = false
		require.NoError(t, s.Configure(cfg))
		assert.Equal(t, 1.0, params[3].LRScale)
	})
}

func TestFreezeSummary(t *testing.T) {
	s := NewParamSet(layeredParams())
	require.NoError(t, s.Freeze(0))
	info := s.LayerInfo()
	require.Len(t, info, 3)
	assert.Equal(t, LayerFreezeInfo{Index: 0, Frozen: true, LRScale: 1, Parameters: 4}, info[0])
	assert.Contains(t, s.FreezeSummary(), "Layer 0: 4 params lr x1 [FROZEN]")
	assert.Contains(t, s.FreezeSummary(), "Trainable params: 3")
}
