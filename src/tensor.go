package retina

// Tensor is a dense row-major float32 array. Image batches use the
// [batch, channel, height, width] layout.
type Tensor struct {
	Shape  []int
	Data   []float32
	stride []int
}

// NewTensor allocates a zeroed tensor
func NewTensor(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		if s < 0 {
			s = 0
		}
		size *= s
	}
	stride := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if i == len(shape)-1 {
			stride[i] = 1
		} else {
			stride[i] = stride[i+1] * shape[i+1]
		}
	}
	return &Tensor{
		Shape:  append([]int(nil), shape...),
		Data:   make([]float32, size),
		stride: stride,
	}
}

func (t *Tensor) Size() int {
	return len(t.Data)
}

func (t *Tensor) offset(indices []int) int {
	idx := 0
	for i, v := range indices {
		idx += v * t.stride[i]
	}
	return idx
}

func (t *Tensor) At(indices ...int) float32 {
	return t.Data[t.offset(indices)]
}

func (t *Tensor) Set(value float32, indices ...int) {
	t.Data[t.offset(indices)] = value
}

func (t *Tensor) Fill(value float32) {
	for i := range t.Data {
		t.Data[i] = value
	}
}

// Slice returns the sub-tensor at index i of the first dimension, sharing data
func (t *Tensor) Slice(i int) *Tensor {
	n := t.stride[0]
	return &Tensor{
		Shape:  t.Shape[1:],
		Data:   t.Data[i*n : (i+1)*n],
		stride: t.stride[1:],
	}
}

func (t *Tensor) Clone() *Tensor {
	nt := NewTensor(t.Shape...)
	copy(nt.Data, t.Data)
	return nt
}

// stack copies same-shaped tensors into a new tensor with a leading batch dim
func stack(items []*Tensor) *Tensor {
	if len(items) == 0 {
		return NewTensor(0)
	}
	out := NewTensor(append([]int{len(items)}, items[0].Shape...)...)
	n := items[0].Size()
	for i, it := range items {
		copy(out.Data[i*n:(i+1)*n], it.Data)
	}
	return out
}
