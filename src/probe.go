package retina

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"

	"github.com/pkg/errors"
)

// =============================================================================
// LINEAR PROBE
// A small baseline Classifier on per-channel image statistics. Layer 0 maps
// the statistics to a hidden ReLU layer, layer 1 is the softmax classifier.
// =============================================================================

// probeFeatures is the mean and standard deviation of each RGB channel
const probeFeatures = 6

// LinearProbe implements Classifier without any deep learning backend
type LinearProbe struct {
	Hidden     int
	NumClasses int
	w0, b0     *Param
	w1, b1     *Param
}

type LinearProbeConfig struct {
	Hidden     int
	NumClasses int
	Seed       int64
}

// NewLinearProbe builds a probe with Xavier-uniform weights and zero biases
func NewLinearProbe(config LinearProbeConfig) (*LinearProbe, error) {
	if config.Hidden <= 0 {
		return nil, errorf("probe hidden size must be > 0, got %d", config.Hidden)
	}
	if config.NumClasses < 2 {
		return nil, errorf("probe needs at least 2 classes, got %d", config.NumClasses)
	}
	rng := rand.New(rand.NewSource(config.Seed))
	p := &LinearProbe{
		Hidden:     config.Hidden,
		NumClasses: config.NumClasses,
		w0:         NewParam("hidden.weight", 0, config.Hidden*probeFeatures),
		b0:         NewParam("hidden.bias", 0, config.Hidden),
		w1:         NewParam("classifier.weight", 1, config.NumClasses*config.Hidden),
		b1:         NewParam("classifier.bias", 1, config.NumClasses),
	}
	xavierUniform(p.w0.Value, probeFeatures, config.Hidden, rng)
	xavierUniform(p.w1.Value, config.Hidden, config.NumClasses, rng)
	return p, nil
}

func xavierUniform(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = uniform(rng, -limit, limit)
	}
}

func (p *LinearProbe) Params() []*Param {
	return []*Param{p.w0, p.b0, p.w1, p.b1}
}

// imageStats returns per-channel mean and std of each image of a
// [B, 3, H, W] batch
func imageStats(images *Tensor) ([][]float64, error) {
	if images == nil || len(images.Shape) != 4 || images.Shape[1] != 3 {
		var shape []int
		if images != nil {
			shape = images.Shape
		}
		return nil, errorf("probe needs a [B 3 H W] batch, got shape %v", shape)
	}
	out := make([][]float64, images.Shape[0])
	for i := range out {
		img := images.Slice(i)
		plane := img.Shape[1] * img.Shape[2]
		x := make([]float64, probeFeatures)
		for c := range 3 {
			data := img.Data[c*plane : (c+1)*plane]
			mean := 0.0
			for _, v := range data {
				mean += float64(v)
			}
			mean /= float64(plane)
			variance := 0.0
			for _, v := range data {
				d := float64(v) - mean
				variance += d * d
			}
			x[c] = mean
			x[3+c] = math.Sqrt(variance / float64(plane))
		}
		out[i] = x
	}
	return out, nil
}

// forward returns the hidden pre-activations, hidden outputs and class
// probabilities of one feature vector
func (p *LinearProbe) forward(x []float64) (pre, h, prob []float64) {
	pre = make([]float64, p.Hidden)
	h = make([]float64, p.Hidden)
	for j := range p.Hidden {
		s := p.b0.Value[j]
		for k := range probeFeatures {
			s += p.w0.Value[j*probeFeatures+k] * x[k]
		}
		pre[j] = s
		h[j] = math.Max(s, 0)
	}

	z := make([]float64, p.NumClasses)
	maxZ := math.Inf(-1)
	for c := range p.NumClasses {
		s := p.b1.Value[c]
		for j := range p.Hidden {
			s += p.w1.Value[c*p.Hidden+j] * h[j]
		}
		z[c] = s
		maxZ = math.Max(maxZ, s)
	}
	sum := 0.0
	for c := range z {
		z[c] = math.Exp(z[c] - maxZ)
		sum += z[c]
	}
	for c := range z {
		z[c] /= sum
	}
	return pre, h, z
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func (p *LinearProbe) checkLabels(b *Batch) error {
	for i, y := range b.Labels {
		if y < 0 || y >= p.NumClasses {
			return errorf("label %d of %q out of range [0, %d)", y, b.Names[i], p.NumClasses)
		}
	}
	return nil
}

// TrainStep accumulates cross-entropy gradients of the batch mean loss
func (p *LinearProbe) TrainStep(ctx context.Context, b *Batch) (float64, error) {
	if err := p.checkLabels(b); err != nil {
		return 0, err
	}
	feats, err := imageStats(b.Images)
	if err != nil {
		return 0, err
	}
	n := float64(len(feats))
	loss := 0.0
	dh := make([]float64, p.Hidden)

	for i, x := range feats {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		pre, h, prob := p.forward(x)
		y := b.Labels[i]
		loss -= math.Log(math.Max(prob[y], 1e-15))

		for j := range dh {
			dh[j] = 0
		}
		for c := range p.NumClasses {
			dz := prob[c] / n
			if c == y {
				dz -= 1 / n
			}
			p.b1.Grad[c] += dz
			for j := range p.Hidden {
				p.w1.Grad[c*p.Hidden+j] += dz * h[j]
				dh[j] += p.w1.Value[c*p.Hidden+j] * dz
			}
		}
		for j := range p.Hidden {
			if pre[j] <= 0 {
				continue
			}
			p.b0.Grad[j] += dh[j]
			for k := range probeFeatures {
				p.w0.Grad[j*probeFeatures+k] += dh[j] * x[k]
			}
		}
	}
	return loss / math.Max(n, 1), nil
}

// Evaluate returns the mean cross-entropy and predicted classes
func (p *LinearProbe) Evaluate(ctx context.Context, b *Batch) (float64, []int, error) {
	if err := p.checkLabels(b); err != nil {
		return 0, nil, err
	}
	feats, err := imageStats(b.Images)
	if err != nil {
		return 0, nil, err
	}
	pred := make([]int, len(feats))
	loss := 0.0
	for i, x := range feats {
		_, _, prob := p.forward(x)
		loss -= math.Log(math.Max(prob[b.Labels[i]], 1e-15))
		pred[i] = argmax(prob)
	}
	return loss / math.Max(float64(len(feats)), 1), pred, nil
}

func (p *LinearProbe) Predict(ctx context.Context, b *Batch) ([]int, error) {
	feats, err := imageStats(b.Images)
	if err != nil {
		return nil, err
	}
	pred := make([]int, len(feats))
	for i, x := range feats {
		_, _, prob := p.forward(x)
		pred[i] = argmax(prob)
	}
	return pred, nil
}

// ProbeState is the on-disk form of a LinearProbe
type ProbeState struct {
	Hidden     int         `json:"hidden"`
	NumClasses int         `json:"num_classes"`
	Weights    [][]float64 `json:"weights"`
}

// Save saves the probe weights as JSON
func (p *LinearProbe) Save(path string) error {
	state := ProbeState{Hidden: p.Hidden, NumClasses: p.NumClasses}
	for _, prm := range p.Params() {
		state.Weights = append(state.Weights, append([]float64(nil), prm.Value...))
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "retina: failed to create %q", path)
	}
	defer file.Close()
	if err := json.NewEncoder(file).Encode(state); err != nil {
		return errors.Wrapf(err, "retina: failed to encode probe to %q", path)
	}
	return file.Close()
}

// Load loads probe weights saved with the same sizes
func (p *LinearProbe) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "retina: failed to open %q", path)
	}
	defer file.Close()

	var state ProbeState
	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return errors.Wrapf(err, "retina: failed to decode probe %q", path)
	}
	if state.Hidden != p.Hidden || state.NumClasses != p.NumClasses {
		return errorf("probe %q has hidden=%d classes=%d, want hidden=%d classes=%d",
			path, state.Hidden, state.NumClasses, p.Hidden, p.NumClasses)
	}
	params := p.Params()
	if len(state.Weights) != len(params) {
		return errorf("probe %q has %d tensors, want %d", path, len(state.Weights), len(params))
	}
	for i, prm := range params {
		if len(state.Weights[i]) != len(prm.Value) {
			return errorf("probe %q tensor %s has %d values, want %d", path, prm.Name, len(state.Weights[i]), len(prm.Value))
		}
		copy(prm.Value, state.Weights[i])
	}
	return nil
}
