package tensor

import (
	"fmt"
	"math/rand"
	"slices"
)

// Tensor is a dense row-major n-dimensional array of float64 values.
//
// The leading dimension is the batch dimension. Row(i) is the contiguous
// block of RowSize() values belonging to the i-th batch entry. Operations in
// this package never mutate their inputs and return freshly allocated
// tensors.
type Tensor struct {
	Shape []int
	Data  []float64
}

// New allocates a zero-initialised tensor with the given shape.
// It panics if the shape is empty or has a negative dimension.
func New(shape ...int) *Tensor {
	n, err := numElements(shape)
	if err != nil {
		panic(err.Error())
	}
	return &Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float64, n),
	}
}

// FromData wraps data in a tensor of the given shape.
// The slice is not copied; len(data) must match the product of shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v", len(data), shape)
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// FromRows builds a [len(rows), len(rows[0])] tensor, copying the values.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errEmptyShape
	}
	c := len(rows[0])
	data := make([]float64, 0, len(rows)*c)
	for i, r := range rows {
		if len(r) != c {
			return nil, fmt.Errorf("tensor: row %d has %d values, want %d", i, len(r), c)
		}
		data = append(data, r...)
	}
	return FromData(data, len(rows), c)
}

// Full returns a tensor of the given shape with every element set to v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// ZerosLike returns a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return New(t.Shape...)
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

// Len returns the total number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Batch returns the size of the leading dimension.
func (t *Tensor) Batch() int { return t.Shape[0] }

// RowSize returns the number of elements in one batch entry.
func (t *Tensor) RowSize() int {
	if t.Shape[0] == 0 {
		return 0
	}
	return len(t.Data) / t.Shape[0]
}

// Row returns a view of the i-th batch entry. Writes through the returned
// slice update the tensor.
func (t *Tensor) Row(i int) []float64 {
	if i < 0 || i >= t.Shape[0] {
		panic("row index out of range")
	}
	n := t.RowSize()
	return t.Data[i*n : (i+1)*n]
}

// Rows copies the tensor into a slice of per-batch-entry slices.
func (t *Tensor) Rows() [][]float64 {
	out := make([][]float64, t.Batch())
	for i := range out {
		out[i] = slices.Clone(t.Row(i))
	}
	return out
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.Shape, o.Shape)
}

// Randn fills a new tensor of the given shape with standard normal draws
// from rng. Values are drawn in row-major order, so drawing a [B, D] tensor
// consumes the source exactly like B consecutive [1, D] draws.
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()
	}
	return t
}

// RandnLike is Randn with the shape of t.
func RandnLike(rng *rand.Rand, t *Tensor) *Tensor {
	return Randn(rng, t.Shape...)
}

func numElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, errEmptyShape
	}
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, errNegativeDim
		}
		if d != 0 && n > (int(^uint(0)>>1))/d {
			return 0, errTooLarge
		}
		n *= d
	}
	return n, nil
}

var (
	errEmptyShape  = fmtError("tensor: empty shape")
	errNegativeDim = fmtError("tensor: negative dimension")
	errTooLarge    = fmtError("tensor: too large")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }
