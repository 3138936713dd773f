// MODUL: sampler
// ZWECK: Guided Sampler - iterativer Restore-Sampler mit Classifier-Free
//        Guidance, Restore-Term Richtung x_center und Control-Schedule
// INPUT: Config (pro Aufruf), Denoiser, Startrauschen, cond/uc, x_center
// OUTPUT: finales Latent
// NEBENEFFEKTE: Progress-Callback, Trace-Logs pro Schritt
// ABHAENGIGKEITEN: ml, logutil, discretization.go, guider.go
// HINWEISE: Ein Sampler wird pro Aufruf aus der Config gebaut und haelt keinen
//           Zustand zwischen Aufrufen. Alle Zufallsdraws kommen aus Input.Rand.

package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hkarakose/SUPIR/logutil"
	"github.com/hkarakose/SUPIR/ml"
)

var (
	ErrUnknownSampler        = errors.New("sampler: unknown sampler")
	ErrUnknownDiscretization = errors.New("sampler: unknown discretization")
	ErrInvalidSteps          = errors.New("sampler: number of steps must be at least 1")
	ErrInvalidParameter      = errors.New("sampler: invalid parameter")
	ErrInvalidInput          = errors.New("sampler: invalid input")
)

// Conditioning maps embedding names to tensors with leading batch dimension.
type Conditioning map[string]*ml.Tensor

// Step describes the noise level a denoiser call runs at.
type Step struct {
	Index    int
	Sigma    float64
	Progress float64 // sigma / sigma_max, 1 at the first step
	Control  ControlSchedule
}

// DenoiseFunc predicts the clean latent for x at step.Sigma. x and cond carry
// the doubled CFG batch (uncond first).
type DenoiseFunc func(ctx context.Context, x *ml.Tensor, step Step, cond Conditioning) (*ml.Tensor, error)

// Input is everything one sampling run consumes.
type Input struct {
	Denoiser DenoiseFunc
	Noise    *ml.Tensor
	Cond     Conditioning
	UC       Conditioning
	XCenter  *ml.Tensor
	Control  ControlSchedule
	Rand     *rand.Rand
}

// Sampler turns noise into a final latent.
type Sampler interface {
	Sample(ctx context.Context, in Input) (*ml.Tensor, error)
}

// stepper is the integration scheme of one sampler variant.
type stepper interface {
	step(ctx context.Context, l *loop, i int, x *ml.Tensor) (*ml.Tensor, error)
}

// Factory builds a sampler from a finalized config.
type Factory func(cfg Config, disc Discretization) (Sampler, error)

var samplers = map[string]Factory{
	RestoreEDMSampler:     newRestoreEDM,
	RestoreDPMPP2MSampler: newRestoreDPMPP2M,
}

// New validates cfg and returns the sampler named by cfg.Target.
func New(cfg Config) (Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	disc, err := NewDiscretization(cfg.Discretization)
	if err != nil {
		return nil, err
	}
	return samplers[cfg.Target](cfg, disc)
}

// Names returns the registered sampler tags.
func Names() []string {
	return []string{RestoreEDMSampler, RestoreDPMPP2MSampler}
}

// =============================================================================
// Gemeinsame Sampling-Schleife
// =============================================================================

type restoreSampler struct {
	name    string
	cfg     Config
	disc    Discretization
	stepper stepper
}

// loop carries the per-run state. It lives for one Sample call.
type loop struct {
	*restoreSampler
	in       Input
	sigmas   []float64
	sigmaMax float64
	guider   guider
}

// Sample implements Sampler.
func (s *restoreSampler) Sample(ctx context.Context, in Input) (*ml.Tensor, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	sigmas := s.disc.Sigmas(s.cfg.NumSteps)
	l := &loop{
		restoreSampler: s,
		in:             in,
		sigmas:         sigmas,
		sigmaMax:       sigmas[0],
	}
	l.guider = guider{cfg: s.cfg.Guider, sigmaMax: l.sigmaMax}

	// x = noise * sqrt(1 + sigma_0^2)
	x := in.Noise.Scale(float32(math.Sqrt(1 + sigmas[0]*sigmas[0])))

	steps := len(sigmas) - 1
	start := time.Now()
	slog.Debug("sampling", "sampler", s.name, "steps", steps, "sigma_max", l.sigmaMax,
		"restore_cfg", s.cfg.RestoreCFG, "guidance", s.cfg.Guider.Scale, "guidance_min", s.cfg.Guider.ScaleMin)

	if s.cfg.Progress != nil {
		s.cfg.Progress(0, steps)
	}
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		stepStart := time.Now()

		var err error
		x, err = s.stepper.step(ctx, l, i, x)
		if err != nil {
			return nil, fmt.Errorf("sampler step %d/%d: %w", i+1, steps, err)
		}

		if slog.Default().Enabled(ctx, logutil.LevelTrace) {
			logutil.Trace("sampler step", "step", i+1, "total", steps, "sigma", sigmas[i],
				"next", sigmas[i+1], "elapsed", time.Since(stepStart), "x", ml.Stats(x))
		}
		if s.cfg.Progress != nil {
			s.cfg.Progress(i+1, steps)
		}
	}

	slog.Debug("sampling done", "sampler", s.name, "steps", steps, "elapsed", time.Since(start))
	return x, nil
}

// denoise runs the guided denoiser at sigma and applies the restoration term
// pulling the prediction toward x_center while nextSigma is above the floor.
func (l *loop) denoise(ctx context.Context, i int, x *ml.Tensor, sigma, nextSigma float64) (*ml.Tensor, error) {
	xx, cc, err := l.guider.prepare(x, l.in.Cond, l.in.UC)
	if err != nil {
		return nil, err
	}

	out, err := l.in.Denoiser(ctx, xx, Step{
		Index:    i,
		Sigma:    sigma,
		Progress: l.sigmas[i] / l.sigmaMax,
		Control:  l.in.Control,
	}, cc)
	if err != nil {
		return nil, err
	}

	denoised, err := l.guider.combine(out, sigma)
	if err != nil {
		return nil, err
	}

	if nextSigma > l.cfg.RestoreCFGSTMin && l.cfg.RestoreCFG > 0 {
		w := float32(math.Pow(l.sigmas[i]/l.sigmaMax, l.cfg.RestoreCFG))
		center, err := ml.Sub(denoised, l.in.XCenter)
		if err != nil {
			return nil, err
		}
		denoised, err = ml.Axpy(denoised, -w, center)
		if err != nil {
			return nil, err
		}
	}
	return denoised, nil
}

func (s *restoreSampler) validate(in Input) error {
	switch {
	case in.Denoiser == nil:
		return fmt.Errorf("%w: denoiser is nil", ErrInvalidInput)
	case in.Noise == nil:
		return fmt.Errorf("%w: noise is nil", ErrInvalidInput)
	case in.Rand == nil:
		return fmt.Errorf("%w: random source is nil", ErrInvalidInput)
	case in.XCenter == nil && s.cfg.RestoreCFG > 0:
		return fmt.Errorf("%w: restore_cfg %v needs x_center", ErrInvalidInput, s.cfg.RestoreCFG)
	case in.XCenter != nil && !in.XCenter.SameShape(in.Noise):
		return fmt.Errorf("%w: x_center %v, noise %v", ml.ErrShapeMismatch, in.XCenter.Shape(), in.Noise.Shape())
	}
	return nil
}
