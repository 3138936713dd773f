// guider.go - Linear Classifier-Free Guidance
// Verdoppelt das Batch (uncond zuerst, dann cond) und kombiniert die beiden
// Vorhersagen mit der Guidance-Skala des aktuellen Rausch-Levels.
package sampler

import (
	"fmt"

	"github.com/hkarakose/SUPIR/ml"
)

type guider struct {
	cfg      GuiderConfig
	sigmaMax float64
}

// prepare concatenates (uc, c) for every conditioning entry and doubles x.
func (g guider) prepare(x *ml.Tensor, cond, uc Conditioning) (*ml.Tensor, Conditioning, error) {
	xx, err := ml.Concat(x, x)
	if err != nil {
		return nil, nil, err
	}

	if len(cond) != len(uc) {
		return nil, nil, fmt.Errorf("%w: cond has %d entries, uc has %d", ErrInvalidInput, len(cond), len(uc))
	}
	cc := make(Conditioning, len(cond))
	for k, c := range cond {
		u, ok := uc[k]
		if !ok {
			return nil, nil, fmt.Errorf("%w: uc is missing %q", ErrInvalidInput, k)
		}
		if cc[k], err = ml.Concat(u, c); err != nil {
			return nil, nil, fmt.Errorf("conditioning %q: %w", k, err)
		}
	}
	return xx, cc, nil
}

// combine returns x_u + scale * (x_c - x_u).
func (g guider) combine(out *ml.Tensor, sigma float64) (*ml.Tensor, error) {
	parts, err := out.Chunk(2)
	if err != nil {
		return nil, err
	}
	xu, xc := parts[0], parts[1]

	diff, err := ml.Sub(xc, xu)
	if err != nil {
		return nil, err
	}
	return ml.Axpy(xu, float32(g.cfg.At(sigma, g.sigmaMax)), diff)
}
