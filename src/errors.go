package retina

import (
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// RETINA ERROR TYPES
// Concise, informative error messages with location and context
// =============================================================================

// ConfigError reports a configuration field that failed validation
type ConfigError struct {
	Section string // "data_params", "train_control", ...
	Field   string // json key of the offending field
	Value   any
	Cause   string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("retina: %s.%s = %v: %s", e.Section, e.Field, e.Value, e.Cause)
}

func configErrorf(section, field string, value any, format string, args ...any) error {
	return &ConfigError{
		Section: section,
		Field:   field,
		Value:   value,
		Cause:   fmt.Sprintf(format, args...),
	}
}

// TensorInfo captures tensor state for error reporting
type TensorInfo struct {
	Shape      []int
	Size       int
	NaNCount   int
	InfCount   int
	MinValue   float64
	MaxValue   float64
	BadIndices []int // First 10 corrupted indices
}

// Format returns a compact string representation
func (t *TensorInfo) Format() string {
	s := fmt.Sprintf("%v size=%d", t.Shape, t.Size)
	if t.NaNCount > 0 || t.InfCount > 0 {
		s += fmt.Sprintf(" (corrupt: %d NaN, %d Inf)", t.NaNCount, t.InfCount)
	} else {
		s += fmt.Sprintf(" range=[%.4f, %.4f]", t.MinValue, t.MaxValue)
	}
	return s
}

// PipelineError is returned when an augmentation pipeline produces an
// unusable tensor
type PipelineError struct {
	Stage        string // transform name
	Image        string // sample name or ""
	OutputInfo   *TensorInfo
	ExpectedInfo string
	Cause        string
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "retina: pipeline stage %s failed", e.Stage)
	if e.Image != "" {
		fmt.Fprintf(&b, " for %q", e.Image)
	}
	b.WriteString("\n")

	if e.OutputInfo != nil {
		fmt.Fprintf(&b, "  output:   %s\n", e.OutputInfo.Format())
	}
	if e.ExpectedInfo != "" {
		fmt.Fprintf(&b, "  expected: %s\n", e.ExpectedInfo)
	}
	fmt.Fprintf(&b, "  cause:    %s", e.Cause)

	return b.String()
}

// ScanTensor checks for NaN/Inf and collects stats
func ScanTensor(t *Tensor) *TensorInfo {
	if t == nil {
		return nil
	}

	info := &TensorInfo{
		Shape:      t.Shape,
		Size:       len(t.Data),
		MinValue:   math.Inf(1),
		MaxValue:   math.Inf(-1),
		BadIndices: make([]int, 0, 10),
	}

	for i, f := range t.Data {
		v := float64(f)
		switch {
		case math.IsNaN(v):
			info.NaNCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		case math.IsInf(v, 0):
			info.InfCount++
			if len(info.BadIndices) < 10 {
				info.BadIndices = append(info.BadIndices, i)
			}
		default:
			info.MinValue = math.Min(info.MinValue, v)
			info.MaxValue = math.Max(info.MaxValue, v)
		}
	}

	// Handle empty or all-corrupt tensors
	if math.IsInf(info.MinValue, 1) {
		info.MinValue = 0
	}
	if math.IsInf(info.MaxValue, -1) {
		info.MaxValue = 0
	}

	return info
}

// validateTensorOutput checks a pipeline output against the expected shape
func validateTensorOutput(t *Tensor, expected []int, stage, image string) error {
	if t == nil || len(t.Data) == 0 {
		return &PipelineError{
			Stage: stage,
			Image: image,
			Cause: "stage produced no data",
		}
	}

	if expected != nil && !sameShape(t.Shape, expected) {
		return &PipelineError{
			Stage:        stage,
			Image:        image,
			OutputInfo:   ScanTensor(t),
			ExpectedInfo: fmt.Sprintf("shape=%v", expected),
			Cause:        fmt.Sprintf("output has shape %v", t.Shape),
		}
	}

	info := ScanTensor(t)
	if info.NaNCount > 0 || info.InfCount > 0 {
		return &PipelineError{
			Stage:      stage,
			Image:      image,
			OutputInfo: info,
			Cause:      fmt.Sprintf("non-finite values at indices %v", info.BadIndices),
		}
	}

	return nil
}
