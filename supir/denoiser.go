// MODUL: denoiser
// ZWECK: Denoiser Adapter - bindet den Backbone an das feste Control-Latent
//        und die Control-Skala des aktuellen Sampler-Schritts
// INPUT: CFG-Batch x, Schritt (Sigma, Fortschritt, Control-Schedule), Conditioning
// OUTPUT: vorhergesagtes Latent
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml, sampler
// HINWEISE: Die zurueckgegebene Funktion haelt nur unveraenderliche Werte und
//           ist damit eine reine Funktion von (x, sigma, cond, Fortschritt).

package supir

import (
	"context"
	"fmt"

	"github.com/hkarakose/SUPIR/ml"
	"github.com/hkarakose/SUPIR/sampler"
)

// Backbone is the pretrained controllable denoising network. x and cond hold
// the CFG batch; control is tiled to the same batch size.
type Backbone interface {
	Denoise(ctx context.Context, x *ml.Tensor, sigma float64, cond sampler.Conditioning, control *ml.Tensor, controlScale float64, dtype ml.DType) (*ml.Tensor, error)
}

// BackboneFunc adapts a function to Backbone.
type BackboneFunc func(ctx context.Context, x *ml.Tensor, sigma float64, cond sampler.Conditioning, control *ml.Tensor, controlScale float64, dtype ml.DType) (*ml.Tensor, error)

func (f BackboneFunc) Denoise(ctx context.Context, x *ml.Tensor, sigma float64, cond sampler.Conditioning, control *ml.Tensor, controlScale float64, dtype ml.DType) (*ml.Tensor, error) {
	return f(ctx, x, sigma, cond, control, controlScale, dtype)
}

func newDenoiser(backbone Backbone, control *ml.Tensor, dtype ml.DType) sampler.DenoiseFunc {
	control = control.Round(dtype)
	return func(ctx context.Context, x *ml.Tensor, step sampler.Step, cond sampler.Conditioning) (*ml.Tensor, error) {
		n := control.Dim(0)
		if x.Dim(0)%n != 0 {
			return nil, fmt.Errorf("%w: denoiser batch %d, control batch %d", ml.ErrShapeMismatch, x.Dim(0), n)
		}
		tiled, err := control.Tile(x.Dim(0) / n)
		if err != nil {
			return nil, err
		}

		out, err := backbone.Denoise(ctx, x.Round(dtype), step.Sigma, cond, tiled, step.Control.At(step.Progress), dtype)
		if err != nil {
			return nil, fmt.Errorf("backbone: %w", err)
		}
		return out.Clone(), nil
	}
}
