package retina

import "math"

// Param is one trainable parameter tensor of the external model
type Param struct {
	Name    string
	Layer   int // index of the owning layer, used for freezing and per-layer rates
	Value   []float64
	Grad    []float64
	LRScale float64 // multiplier on the optimizer LR
}

// NewParam allocates a zeroed parameter with unit learning rate scale
func NewParam(name string, layer, size int) *Param {
	return &Param{
		Name:    name,
		Layer:   layer,
		Value:   make([]float64, size),
		Grad:    make([]float64, size),
		LRScale: 1,
	}
}

// ZeroGrad clears accumulated gradients
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// Optimizer updates model parameters from their gradients
type Optimizer interface {
	Step(params []*Param)
	LR() float64
	SetLR(lr float64)
	name() string
}

// SGDOptimizer - Stochastic Gradient Descent
type SGDOptimizer struct {
	lr          float64
	Momentum    float64
	Dampening   float64
	WeightDecay float64
	Nesterov    bool
	velocities  map[*Param][]float64
}

type SGDConfig struct {
	LR          float64
	Momentum    float64
	Dampening   float64
	WeightDecay float64
	Nesterov    bool
}

func SGD(config SGDConfig) *SGDOptimizer {
	return &SGDOptimizer{
		lr:          config.LR,
		Momentum:    config.Momentum,
		Dampening:   config.Dampening,
		WeightDecay: config.WeightDecay,
		Nesterov:    config.Nesterov,
		velocities:  make(map[*Param][]float64),
	}
}

func (s *SGDOptimizer) Step(params []*Param) {
	for _, p := range params {
		v, ok := s.velocities[p]
		if !ok && s.Momentum != 0 {
			v = make([]float64, len(p.Value))
			s.velocities[p] = v
		}
		lr := s.lr * p.LRScale

		for j := range p.Value {
			grad := p.Grad[j]
			if s.WeightDecay != 0 {
				grad += s.WeightDecay * p.Value[j]
			}
			if s.Momentum != 0 {
				v[j] = s.Momentum*v[j] + (1-s.Dampening)*grad
				if s.Nesterov {
					grad = grad + s.Momentum*v[j]
				} else {
					grad = v[j]
				}
			}
			p.Value[j] -= lr * grad
		}
	}
}

func (s *SGDOptimizer) LR() float64      { return s.lr }
func (s *SGDOptimizer) SetLR(lr float64) { s.lr = lr }
func (s *SGDOptimizer) name() string     { return "sgd" }

// AdamOptimizer - Adaptive Moment Estimation
type AdamOptimizer struct {
	lr          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
	state       map[*Param]*adamState
}

type adamState struct {
	m, v, vMax []float64
	t          int
}

type AdamConfig struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Epsilon     float64
	WeightDecay float64
	AMSGrad     bool
}

func Adam(config AdamConfig) *AdamOptimizer {
	return &AdamOptimizer{
		lr:          config.LR,
		Beta1:       config.Beta1,
		Beta2:       config.Beta2,
		Epsilon:     config.Epsilon,
		WeightDecay: config.WeightDecay,
		AMSGrad:     config.AMSGrad,
		state:       make(map[*Param]*adamState),
	}
}

func (a *AdamOptimizer) Step(params []*Param) {
	for _, p := range params {
		st, ok := a.state[p]
		if !ok {
			st = &adamState{
				m: make([]float64, len(p.Value)),
				v: make([]float64, len(p.Value)),
			}
			if a.AMSGrad {
				st.vMax = make([]float64, len(p.Value))
			}
			a.state[p] = st
		}
		// Frozen params skip steps, so bias correction is tracked per param
		st.t++
		bc1 := 1 - math.Pow(a.Beta1, float64(st.t))
		bc2 := 1 - math.Pow(a.Beta2, float64(st.t))
		lr := a.lr * p.LRScale

		for j := range p.Value {
			grad := p.Grad[j]
			if a.WeightDecay != 0 {
				grad += a.WeightDecay * p.Value[j]
			}
			st.m[j] = a.Beta1*st.m[j] + (1-a.Beta1)*grad
			st.v[j] = a.Beta2*st.v[j] + (1-a.Beta2)*grad*grad

			mHat := st.m[j] / bc1
			vHat := st.v[j] / bc2

			if a.AMSGrad {
				if vHat > st.vMax[j] {
					st.vMax[j] = vHat
				}
				vHat = st.vMax[j]
			}

			p.Value[j] -= lr * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *AdamOptimizer) LR() float64      { return a.lr }
func (a *AdamOptimizer) SetLR(lr float64) { a.lr = lr }
func (a *AdamOptimizer) name() string     { return "adam" }

// NewOptimizer builds the configured optimizer with the usual defaults for
// everything but the learning rate
func NewOptimizer(kind OptimizerKind, params OptimizerParams) (Optimizer, error) {
	if err := ValidateOptimizerParams(params); err != nil {
		return nil, err
	}
	switch kind {
	case OptimizerAdam:
		return Adam(AdamConfig{
			LR:          params.LR,
			Beta1:       0.9,
			Beta2:       0.999,
			Epsilon:     1e-8,
			WeightDecay: 0,
			AMSGrad:     false,
		}), nil
	case OptimizerSGD:
		return SGD(SGDConfig{
			LR:          params.LR,
			Momentum:    0,
			Dampening:   0,
			WeightDecay: 0,
			Nesterov:    false,
		}), nil
	}
	return nil, configErrorf("train_control", "optimizer", kind, "must be one of adam, sgd")
}
