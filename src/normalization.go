package retina

// ImageNet channel statistics, recommended for pretrained backbones
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Normalize applies per-channel z-score normalization to [3, H, W] tensors
type Normalize struct {
	Mean [3]float32
	Std  [3]float32
}

// TransferNormalize uses ImageNet statistics for pretrained models and the
// identity otherwise
func TransferNormalize(pretrained bool) Normalize {
	if pretrained {
		return Normalize{Mean: ImageNetMean, Std: ImageNetStd}
	}
	return Normalize{Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}
}

func (n Normalize) apply(t *Tensor) error {
	if len(t.Shape) != 3 || t.Shape[0] != 3 {
		return &PipelineError{
			Stage:        n.name(),
			OutputInfo:   ScanTensor(t),
			ExpectedInfo: "shape=[3 H W]",
			Cause:        "normalize needs a 3-channel CHW tensor",
		}
	}
	for c, std := range n.Std {
		if std == 0 {
			return errorf("normalize: std of channel %d is zero", c)
		}
	}
	plane := t.Shape[1] * t.Shape[2]
	for c := range 3 {
		mean, inv := n.Mean[c], 1/n.Std[c]
		data := t.Data[c*plane : (c+1)*plane]
		for i := range data {
			data[i] = (data[i] - mean) * inv
		}
	}
	return nil
}

func (n Normalize) name() string { return "normalize" }
