package retina

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// =============================================================================
// LAYER FREEZING & PER-LAYER RATES
// Frozen layers keep their pretrained weights; the optimizer never sees them
// =============================================================================

// ParamSet groups a model's parameters by layer and tracks which layers are
// frozen
type ParamSet struct {
	params    []*Param
	numLayers int
	frozen    map[int]bool
}

// LayerFreezeInfo contains information about a layer's freeze status
type LayerFreezeInfo struct {
	Index      int
	Frozen     bool
	LRScale    float64
	Parameters int
}

// NewParamSet wraps params. The layer count is one past the highest Layer.
func NewParamSet(params []*Param) *ParamSet {
	numLayers := 0
	for _, p := range params {
		numLayers = max(numLayers, p.Layer+1)
	}
	return &ParamSet{
		params:    params,
		numLayers: numLayers,
		frozen:    make(map[int]bool),
	}
}

func (s *ParamSet) NumLayers() int { return s.numLayers }

// Freeze freezes the specified layer indices
func (s *ParamSet) Freeze(indices ...int) error {
	for _, idx := range indices {
		if idx < 0 || idx >= s.numLayers {
			return errorf("layer index %d out of range [0, %d)", idx, s.numLayers)
		}
		s.frozen[idx] = true
	}
	return nil
}

// Unfreeze unfreezes the specified layer indices
func (s *ParamSet) Unfreeze(indices ...int) error {
	for _, idx := range indices {
		if idx < 0 || idx >= s.numLayers {
			return errorf("layer index %d out of range [0, %d)", idx, s.numLayers)
		}
		delete(s.frozen, idx)
	}
	return nil
}

// FreezeTo freezes all layers from index 0 to endIndex (exclusive)
func (s *ParamSet) FreezeTo(endIndex int) error {
	if endIndex < 0 || endIndex > s.numLayers {
		return errorf("end index %d out of range [0, %d]", endIndex, s.numLayers)
	}
	return s.Freeze(lo.Range(endIndex)...)
}

// UnfreezeAll unfreezes every layer
func (s *ParamSet) UnfreezeAll() {
	s.frozen = make(map[int]bool)
}

// IsFrozen returns whether a specific layer is frozen
func (s *ParamSet) IsFrozen(index int) bool {
	return s.frozen[index]
}

// FrozenLayers returns the sorted indices of all frozen layers
func (s *ParamSet) FrozenLayers() []int {
	result := lo.Keys(s.frozen)
	slices.Sort(result)
	return result
}

// Trainable returns the parameters of non-frozen layers
func (s *ParamSet) Trainable() []*Param {
	return lo.Filter(s.params, func(p *Param, _ int) bool {
		return !s.frozen[p.Layer]
	})
}

// TrainableParameters returns the count of trainable values
func (s *ParamSet) TrainableParameters() int {
	return lo.SumBy(s.Trainable(), func(p *Param) int { return len(p.Value) })
}

// TotalParameters returns the count of all values
func (s *ParamSet) TotalParameters() int {
	return lo.SumBy(s.params, func(p *Param) int { return len(p.Value) })
}

// ApplyLayerRates scales the learning rate of layer i by
// rates[min(i, len(rates)-1)]
func (s *ParamSet) ApplyLayerRates(rates []float64) error {
	if len(rates) == 0 {
		return errorf("per-layer rates need at least one rate")
	}
	for _, p := range s.params {
		p.LRScale = rates[min(p.Layer, len(rates)-1)]
	}
	return nil
}

// Configure applies freeze_features/freeze_until_layer and per-layer rates
func (s *ParamSet) Configure(cfg ModelConfig) error {
	s.UnfreezeAll()
	if cfg.Kwargs.FreezeFeatures {
		if err := s.FreezeTo(min(cfg.Kwargs.FreezeUntilLayer, s.numLayers)); err != nil {
			return err
		}
	}
	if cfg.PerLayerRates {
		return s.ApplyLayerRates(cfg.Kwargs.Rates)
	}
	for _, p := range s.params {
		p.LRScale = 1
	}
	return nil
}

// LayerInfo returns information about all layers
func (s *ParamSet) LayerInfo() []LayerFreezeInfo {
	result := make([]LayerFreezeInfo, s.numLayers)
	for i := range result {
		result[i] = LayerFreezeInfo{Index: i, Frozen: s.frozen[i], LRScale: 1}
	}
	for _, p := range s.params {
		result[p.Layer].Parameters += len(p.Value)
		result[p.Layer].LRScale = p.LRScale
	}
	return result
}

// FreezeSummary returns a human-readable summary of frozen/unfrozen layers
func (s *ParamSet) FreezeSummary() string {
	result := "Layer Freeze Status\n"
	result += "===================\n"
	for _, info := range s.LayerInfo() {
		status := "trainable"
		if info.Frozen {
			status = "FROZEN"
		}
		result += fmt.Sprintf("Layer %d: %d params lr x%g [%s]\n", info.Index, info.Parameters, info.LRScale, status)
	}
	result += "===================\n"
	result += fmt.Sprintf("Trainable params: %d\n", s.TrainableParameters())
	result += fmt.Sprintf("Total params:     %d\n", s.TotalParameters())
	return result
}
