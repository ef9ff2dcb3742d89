package retina

import (
	"fmt"
	"image"
	"math"
	"math/rand"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ImageTransform is one augmentation step applied before tensor conversion
type ImageTransform interface {
	Apply(img image.Image, rng *rand.Rand) image.Image
	name() string
}

// =============================================================================
// ROTATION
// =============================================================================

// RandomRotation rotates by a uniform angle in [MinDegrees, MaxDegrees)
type RandomRotation struct {
	MinDegrees float64
	MaxDegrees float64
}

func (r RandomRotation) Apply(img image.Image, rng *rand.Rand) image.Image {
	return Rotate(img, uniform(rng, r.MinDegrees, r.MaxDegrees))
}

func (r RandomRotation) name() string { return "random_rotation" }

// Rotate turns img counter-clockwise by degrees about its centre, keeping
// the canvas size. Uncovered corners are black.
func Rotate(img image.Image, degrees float64) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rad := degrees * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2
	return affine(img, w, h, f64.Aff3{
		c, s, cx - c*cx - s*cy,
		-s, c, cy + s*cx - c*cy,
	}, draw.CatmullRom)
}

// =============================================================================
// SKEW
// =============================================================================

// RandomSkew shears by a uniform angle in [MinAngle, MaxAngle) radians
type RandomSkew struct {
	MinAngle float64
	MaxAngle float64
	IncWidth bool
}

func (s RandomSkew) Apply(img image.Image, rng *rand.Rand) image.Image {
	return SkewImage(img, uniform(rng, s.MinAngle, s.MaxAngle), s.IncWidth)
}

func (s RandomSkew) name() string { return "random_skew" }

// =============================================================================
// CROPPING
// =============================================================================

// RandomResizedCrop takes a random crop covering a Scale fraction of the
// area with an aspect ratio in [MinRatio, MaxRatio] and resizes it to
// Size x Size
type RandomResizedCrop struct {
	Size     int
	MinScale float64
	MaxScale float64
	MinRatio float64
	MaxRatio float64
}

func (c RandomResizedCrop) Apply(img image.Image, rng *rand.Rand) image.Image {
	b := img.Bounds()
	crop := c.cropRect(b.Dx(), b.Dy(), rng).Add(b.Min)
	dst := image.NewRGBA(image.Rect(0, 0, c.Size, c.Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst
}

// cropRect picks the crop window relative to the image origin
func (c RandomResizedCrop) cropRect(width, height int, rng *rand.Rand) image.Rectangle {
	area := float64(width * height)
	logMin, logMax := math.Log(c.MinRatio), math.Log(c.MaxRatio)

	for range 10 {
		target := area * uniform(rng, c.MinScale, c.MaxScale)
		aspect := math.Exp(uniform(rng, logMin, logMax))

		w := int(math.RoundToEven(math.Sqrt(target * aspect)))
		h := int(math.RoundToEven(math.Sqrt(target / aspect)))
		if w > 0 && w <= width && h > 0 && h <= height {
			top := rng.Intn(height - h + 1)
			left := rng.Intn(width - w + 1)
			return image.Rect(left, top, left+w, top+h)
		}
	}

	// Fallback to central crop
	inRatio := float64(width) / float64(height)
	w, h := width, height
	switch {
	case inRatio < c.MinRatio:
		h = int(math.RoundToEven(float64(w) / c.MinRatio))
	case inRatio > c.MaxRatio:
		w = int(math.RoundToEven(float64(h) * c.MaxRatio))
	}
	top := (height - h) / 2
	left := (width - w) / 2
	return image.Rect(left, top, left+w, top+h)
}

func (c RandomResizedCrop) name() string { return "random_resized_crop" }

// CenterCrop cuts a Size x Size square from the centre, padding with black
// when the image is smaller
type CenterCrop struct {
	Size int
}

func (c CenterCrop) Apply(img image.Image, _ *rand.Rand) image.Image {
	b := img.Bounds()
	left := centerOffset(b.Dx(), c.Size)
	top := centerOffset(b.Dy(), c.Size)
	return cropTo(img, image.Rect(left, top, left+c.Size, top+c.Size))
}

func centerOffset(have, want int) int {
	if have < want {
		return -((want - have) / 2)
	}
	return int(math.RoundToEven(float64(have-want) / 2))
}

func (c CenterCrop) name() string { return "center_crop" }

// =============================================================================
// TENSOR CONVERSION
// =============================================================================

// ToTensor converts img to a [3, H, W] tensor with values in [0, 1]
func ToTensor(img image.Image) *Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := NewTensor(3, h, w)
	plane := w * h

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride+(b.Min.X-rgba.Rect.Min.X)*4:]
			for x := 0; x < w; x++ {
				i := y*w + x
				t.Data[i] = float32(row[x*4]) / 255
				t.Data[plane+i] = float32(row[x*4+1]) / 255
				t.Data[2*plane+i] = float32(row[x*4+2]) / 255
			}
		}
		return t
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			t.Data[i] = float32(r>>8) / 255
			t.Data[plane+i] = float32(g>>8) / 255
			t.Data[2*plane+i] = float32(bl>>8) / 255
		}
	}
	return t
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs image transforms, converts to a tensor and normalizes
type Pipeline struct {
	Ops       []ImageTransform
	Normalize Normalize
	OutSize   int // expected square output side, 0 to skip the check
}

// Augment applies only the image stage
func (p *Pipeline) Augment(img image.Image, rng *rand.Rand) image.Image {
	for _, op := range p.Ops {
		img = op.Apply(img, rng)
	}
	return img
}

// Run applies the full pipeline to one image
func (p *Pipeline) Run(img image.Image, rng *rand.Rand) (*Tensor, error) {
	t := ToTensor(p.Augment(img, rng))
	if err := p.Normalize.apply(t); err != nil {
		return nil, err
	}
	var expected []int
	if p.OutSize > 0 {
		expected = []int{3, p.OutSize, p.OutSize}
	}
	if err := validateTensorOutput(t, expected, p.Normalize.name(), ""); err != nil {
		return nil, err
	}
	return t, nil
}

// String lists the stages
func (p *Pipeline) String() string {
	s := ""
	for _, op := range p.Ops {
		s += op.name() + " -> "
	}
	return s + fmt.Sprintf("to_tensor -> normalize(mean=%v std=%v)", p.Normalize.Mean, p.Normalize.Std)
}

const (
	resizedCropSize = 300
	centerCropSize  = 224
)

// TrainTransforms: random rotation, random skew, scale and crop 224
func TrainTransforms(cfg Config) *Pipeline {
	return &Pipeline{
		Ops: []ImageTransform{
			RandomRotation{MinDegrees: 0, MaxDegrees: 360},
			RandomSkew{MinAngle: -0.2, MaxAngle: 0.2, IncWidth: true},
			RandomResizedCrop{Size: resizedCropSize, MinScale: 0.9, MaxScale: 1.1, MinRatio: 1, MaxRatio: 1},
			CenterCrop{Size: centerCropSize},
		},
		Normalize: TransferNormalize(cfg.Model.Kwargs.Pretrained),
		OutSize:   centerCropSize,
	}
}

// ValTransforms uses the same augmentation as training
func ValTransforms(cfg Config) *Pipeline {
	return TrainTransforms(cfg)
}

// TestTransforms: random rotation, resize to 300 and crop 224
func TestTransforms(cfg Config) *Pipeline {
	return &Pipeline{
		Ops: []ImageTransform{
			RandomRotation{MinDegrees: 0, MaxDegrees: 360},
			RandomResizedCrop{Size: resizedCropSize, MinScale: 1, MaxScale: 1, MinRatio: 1, MaxRatio: 1},
			CenterCrop{Size: centerCropSize},
		},
		Normalize: TransferNormalize(cfg.Model.Kwargs.Pretrained),
		OutSize:   centerCropSize,
	}
}

// PipelineFor returns the pipeline of a split: "train", "val" or "test"
func PipelineFor(cfg Config, split string) (*Pipeline, error) {
	switch split {
	case "train":
		return TrainTransforms(cfg), nil
	case "val":
		return ValTransforms(cfg), nil
	case "test":
		return TestTransforms(cfg), nil
	}
	return nil, errorf("unknown split %q, want train, val or test", split)
}
