// repeat.go - Batch-Replikation ueber pdevine/tensor
// Dieses Modul repliziert Tensoren entlang der Batch-Achse und stellt
// Layout-Permutationen (z.B. NCHW -> NHWC) bereit.
package ml

import (
	"fmt"

	"github.com/pdevine/tensor"
)

// Repeat repeats every batch entry n times along axis 0: [a, b] -> [a, a, b, b].
// For a single-image batch this yields n identical copies.
func (t *Tensor) Repeat(n int) (*Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: repeat count %d", ErrShapeMismatch, n)
	}
	if n == 1 {
		return t.Clone(), nil
	}

	dense := tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(t.Clone().data))
	r, err := tensor.Repeat(dense, 0, n)
	if err != nil {
		return nil, fmt.Errorf("repeat batch: %w", err)
	}

	data, ok := r.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("repeat batch: unexpected backing %T", r.Data())
	}
	return New(append([]float32(nil), data...), r.Shape()...)
}

// Permute returns a contiguous copy of t with its axes reordered.
func (t *Tensor) Permute(axes ...int) (*Tensor, error) {
	if len(axes) != len(t.shape) {
		return nil, fmt.Errorf("%w: permute %v of %v", ErrShapeMismatch, axes, t.shape)
	}

	dense := tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(t.Clone().data))
	if err := dense.T(axes...); err != nil {
		return nil, fmt.Errorf("permute: %w", err)
	}
	if err := dense.Transpose(); err != nil {
		return nil, fmt.Errorf("permute: %w", err)
	}

	data, ok := dense.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("permute: unexpected backing %T", dense.Data())
	}
	return New(append([]float32(nil), data...), dense.Shape()...)
}
