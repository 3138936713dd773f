// Package ml - Tensor
// Dieses Modul definiert den Tensor fuer Bilder ([N, C, H, W], Werte in [-1, 1])
// und Latents sowie die elementweisen Operationen, die die Pipeline braucht.
// Die Rechenkerne laufen ueber gonum blas32.
package ml

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/blas/blas32"
)

// ErrShapeMismatch is returned when operands or backing data disagree on shape.
var ErrShapeMismatch = errors.New("ml: shape mismatch")

// Tensor is a dense row-major float32 tensor. Axis 0 is always the batch axis.
type Tensor struct {
	shape []int
	data  []float32
}

// New wraps data in a tensor of the given shape. data is not copied.
func New(data []float32, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	if n := mul(shape...); n != len(data) {
		return nil, fmt.Errorf("%w: %v needs %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Tensor{shape: cloneShape(shape), data: data}, nil
}

// Zeros allocates a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	return &Tensor{shape: cloneShape(shape), data: make([]float32, mul(shape...))}
}

// Full allocates a tensor filled with v.
func Full(v float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// RandomNormal draws a standard normal tensor from rng.
func RandomNormal(rng *rand.Rand, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
	return t
}

// RandomNormalLike draws standard normal noise shaped like t.
func RandomNormalLike(rng *rand.Rand, t *Tensor) *Tensor {
	return RandomNormal(rng, t.shape...)
}

func (t *Tensor) Shape() []int { return cloneShape(t.shape) }

// Dim returns the size of axis n.
func (t *Tensor) Dim(n int) int { return t.shape[n] }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Floats exposes the backing data.
func (t *Tensor) Floats() []float32 { return t.data }

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool { return slices.Equal(t.shape, o.shape) }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := Zeros(t.shape...)
	blas32.Copy(vec(t.data), vec(out.data))
	return out
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	return New(t.data, shape...)
}

// Scale returns s*t.
func (t *Tensor) Scale(s float32) *Tensor {
	out := t.Clone()
	blas32.Scal(s, vec(out.data))
	return out
}

// AddScalar returns t+s.
func (t *Tensor) AddScalar(s float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] += s
	}
	return out
}

// Map returns fn applied element-wise.
func (t *Tensor) Map(fn func(float32) float32) *Tensor {
	out := Zeros(t.shape...)
	for i, v := range t.data {
		out.data[i] = fn(v)
	}
	return out
}

// Axpy returns a + alpha*b.
func Axpy(a *Tensor, alpha float32, b *Tensor) (*Tensor, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.shape, b.shape)
	}
	out := a.Clone()
	blas32.Axpy(alpha, vec(b.data), vec(out.data))
	return out, nil
}

// Add returns a+b.
func Add(a, b *Tensor) (*Tensor, error) { return Axpy(a, 1, b) }

// Sub returns a-b.
func Sub(a, b *Tensor) (*Tensor, error) { return Axpy(a, -1, b) }

// Mul returns the element-wise product.
func Mul(a, b *Tensor) (*Tensor, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, a.shape, b.shape)
	}
	out := Zeros(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * b.data[i]
	}
	return out, nil
}

// Batch returns a copy of image i along axis 0, keeping a leading axis of 1.
func (t *Tensor) Batch(i int) *Tensor {
	stride := t.batchStride()
	shape := cloneShape(t.shape)
	shape[0] = 1
	data := make([]float32, stride)
	copy(data, t.data[i*stride:(i+1)*stride])
	return &Tensor{shape: shape, data: data}
}

// Chunk splits t into n equal parts along axis 0.
func (t *Tensor) Chunk(n int) ([]*Tensor, error) {
	if n <= 0 || t.shape[0]%n != 0 {
		return nil, fmt.Errorf("%w: cannot split batch %d into %d", ErrShapeMismatch, t.shape[0], n)
	}
	size := t.shape[0] / n
	stride := t.batchStride() * size
	out := make([]*Tensor, n)
	for i := range out {
		shape := cloneShape(t.shape)
		shape[0] = size
		data := make([]float32, stride)
		copy(data, t.data[i*stride:(i+1)*stride])
		out[i] = &Tensor{shape: shape, data: data}
	}
	return out, nil
}

// Concat joins tensors along axis 0. All trailing axes must agree.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShapeMismatch)
	}
	shape := cloneShape(ts[0].shape)
	shape[0] = 0
	for _, t := range ts {
		if !slices.Equal(t.shape[1:], ts[0].shape[1:]) {
			return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t.shape, ts[0].shape)
		}
		shape[0] += t.shape[0]
	}
	data := make([]float32, 0, mul(shape...))
	for _, t := range ts {
		data = append(data, t.data...)
	}
	return &Tensor{shape: shape, data: data}, nil
}

// Tile repeats the whole batch n times along axis 0: [a, b] -> [a, b, a, b].
func (t *Tensor) Tile(n int) (*Tensor, error) {
	parts := make([]*Tensor, n)
	for i := range parts {
		parts[i] = t
	}
	return Concat(parts...)
}

func (t *Tensor) batchStride() int {
	return mul(t.shape[1:]...)
}

func vec(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

func cloneShape(shape []int) []int {
	return append([]int(nil), shape...)
}
