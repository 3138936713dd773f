// edm.go - RestoreEDMSampler
// Euler-Schritt mit optionalem Churn (Rauschen wird innerhalb von
// [s_tmin, s_tmax] wieder hinzugefuegt).
package sampler

import (
	"context"
	"math"

	"github.com/hkarakose/SUPIR/ml"
)

type edmStepper struct{}

func newRestoreEDM(cfg Config, disc Discretization) (Sampler, error) {
	return &restoreSampler{name: RestoreEDMSampler, cfg: cfg, disc: disc, stepper: edmStepper{}}, nil
}

// gamma is the churn factor for a step at sigma.
func (l *loop) gamma(sigma float64) float64 {
	if l.cfg.SChurn <= 0 || sigma < l.cfg.STMin || sigma > l.cfg.STMax {
		return 0
	}
	return min(l.cfg.SChurn/float64(len(l.sigmas)-1), math.Sqrt2-1)
}

func (edmStepper) step(ctx context.Context, l *loop, i int, x *ml.Tensor) (*ml.Tensor, error) {
	sigma, next := l.sigmas[i], l.sigmas[i+1]
	gamma := l.gamma(sigma)
	sigmaHat := sigma * (gamma + 1)

	if gamma > 0 {
		eps := ml.RandomNormalLike(l.in.Rand, x)
		amp := l.cfg.SNoise * math.Sqrt(sigmaHat*sigmaHat-sigma*sigma)
		var err error
		if x, err = ml.Axpy(x, float32(amp), eps); err != nil {
			return nil, err
		}
	}

	denoised, err := l.denoise(ctx, i, x, sigmaHat, next)
	if err != nil {
		return nil, err
	}

	// d = (x - denoised) / sigma_hat; x += d * (next - sigma_hat)
	d, err := ml.Sub(x, denoised)
	if err != nil {
		return nil, err
	}
	return ml.Axpy(x, float32((next-sigmaHat)/sigmaHat), d)
}
