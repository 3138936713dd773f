// MODUL: model
// ZWECK: Restoration Orchestrator - verbindet Encoder Adapter, Conditioning,
//        Schedule Planner, Sampler und Color Corrector zu einem Restore-Aufruf
// INPUT: Bild-Batch [N, 3, H, W] in [-1, 1], Prompts, Options
// OUTPUT: Result mit restaurierten Bildern, Stufe-1-Vorschau und Seed
// NEBENEFFEKTE: Logs (Run-ID, Timings), Progress-Callback
// ABHAENGIGKEITEN: vae, conditioner, sampler, colorfix, ml, google/uuid
// HINWEISE: Alle Lauf-Parameter leben in einer pro Aufruf gebauten Config.
//           Das Model selbst ist nach New unveraenderlich und kann von
//           mehreren Goroutinen gleichzeitig benutzt werden.

package supir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/hkarakose/SUPIR/colorfix"
	"github.com/hkarakose/SUPIR/conditioner"
	"github.com/hkarakose/SUPIR/ml"
	"github.com/hkarakose/SUPIR/sampler"
	"github.com/hkarakose/SUPIR/vae"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	ErrPromptMismatch = errors.New("supir: number of prompts must match number of images")
	ErrReplicateBatch = errors.New("supir: num_samples > 1 requires exactly one image")
	ErrInvalidInput   = errors.New("supir: invalid input")
)

// maxRandomSeed ist die obere Grenze fuer gezogene Seeds.
const maxRandomSeed = 65535

// ============================================================================
// Externe Kollaborateure
// ============================================================================

// Conditioner encodes the conditional and unconditional batches into
// embedding dictionaries with identical keys.
type Conditioner interface {
	Condition(ctx context.Context, cond, uncond conditioner.Batch) (c, uc sampler.Conditioning, err error)
}

// ConditionerFunc adapts a function to Conditioner.
type ConditionerFunc func(ctx context.Context, cond, uncond conditioner.Batch) (sampler.Conditioning, sampler.Conditioning, error)

func (f ConditionerFunc) Condition(ctx context.Context, cond, uncond conditioner.Batch) (sampler.Conditioning, sampler.Conditioning, error) {
	return f(ctx, cond, uncond)
}

// ============================================================================
// Model
// ============================================================================

// Model orchestrates restoration calls against fixed pretrained components.
type Model struct {
	cfg      Config
	ae       *vae.Adapter
	cond     Conditioner
	backbone Backbone
}

// Result is the output of one Restore call.
type Result struct {
	Images *ml.Tensor // [N*num_samples, 3, H, W] in [-1, 1]
	Stage1 *ml.Tensor // Decode des Denoise-Encoder Latents
	Seed   int64
	RunID  string
}

// New validates cfg and binds the pretrained components.
func New(cfg Config, ae vae.Autoencoder, cond Conditioner, backbone Backbone) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ae == nil || cond == nil || backbone == nil {
		return nil, fmt.Errorf("%w: autoencoder, conditioner and backbone are required", ErrInvalidInput)
	}

	adapter, err := vae.NewAdapter(ae, cfg.ScaleFactor, cfg.AEDType)
	if err != nil {
		return nil, err
	}

	return &Model{cfg: cfg, ae: adapter, cond: cond, backbone: backbone}, nil
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// Denoise runs only the denoising encoder and the decoder. The result is the
// stage-1 preview in image space.
func (m *Model) Denoise(ctx context.Context, images *ml.Tensor) (*ml.Tensor, error) {
	if err := validateImages(images); err != nil {
		return nil, err
	}
	z, err := m.ae.EncodeDenoised(ctx, images, false, nil)
	if err != nil {
		return nil, err
	}
	return m.ae.Decode(ctx, z)
}

// Restore runs the full restoration pipeline. Argument errors are reported
// before any model component is invoked.
func (m *Model) Restore(ctx context.Context, images *ml.Tensor, prompts []string, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := validateImages(images); err != nil {
		return nil, err
	}
	if images.Dim(0) != len(prompts) {
		return nil, fmt.Errorf("%w: %d images, %d prompts", ErrPromptMismatch, images.Dim(0), len(prompts))
	}

	if opts.NumSamples > 1 {
		if images.Dim(0) != 1 {
			return nil, fmt.Errorf("%w: got %d images", ErrReplicateBatch, images.Dim(0))
		}
		var err error
		if images, err = images.Repeat(opts.NumSamples); err != nil {
			return nil, err
		}
		prompts = replicate(prompts[0], opts.NumSamples)
	}

	positive, negative := m.cfg.PositivePrompt, m.cfg.NegativePrompt
	if opts.PositivePrompt != nil {
		positive = *opts.PositivePrompt
	}
	if opts.NegativePrompt != nil {
		negative = *opts.NegativePrompt
	}

	cfg, control := sampler.Plan(m.cfg.Sampler, opts.Steps, opts.RestorationScale, opts.SChurn, opts.SNoise, opts.schedule())
	cfg.Progress = opts.Progress
	smp, err := sampler.New(cfg)
	if err != nil {
		return nil, err
	}

	seed := opts.Seed
	if seed == RandomSeed {
		seed = rand.Int64N(maxRandomSeed + 1)
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	runID := uuid.NewString()
	n := images.Dim(0)
	start := time.Now()
	slog.Info("restore started", "run", runID, "images", n, "steps", cfg.NumSteps,
		"sampler", cfg.Target, "seed", seed, "color_fix", opts.ColorFix)

	// Stufe 1: Degradation entfernen, Ergebnis dient als Control und als Restore-Ziel
	z, err := m.ae.EncodeDenoised(ctx, images, false, nil)
	if err != nil {
		return nil, err
	}
	stage1, err := m.ae.Decode(ctx, z)
	if err != nil {
		return nil, err
	}
	center, err := m.ae.Encode(ctx, stage1, rng)
	if err != nil {
		return nil, err
	}

	batch, batchUC, err := conditioner.Build(n, prompts, positive, negative, z)
	if err != nil {
		return nil, err
	}
	c, uc, err := m.cond.Condition(ctx, batch, batchUC)
	if err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}

	t := time.Now()
	latent, err := smp.Sample(ctx, sampler.Input{
		Denoiser: newDenoiser(m.backbone, z, m.cfg.DiffusionDType),
		Noise:    ml.RandomNormalLike(rng, z),
		Cond:     c,
		UC:       uc,
		XCenter:  center,
		Control:  control,
		Rand:     rng,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("sampling finished", "run", runID, "elapsed", time.Since(t))

	samples, err := m.ae.Decode(ctx, latent)
	if err != nil {
		return nil, err
	}
	samples, err = colorfix.Apply(ctx, opts.ColorFix, samples, stage1)
	if err != nil {
		return nil, err
	}

	slog.Info("restore finished", "run", runID, "elapsed", time.Since(start))
	return &Result{Images: samples, Stage1: stage1, Seed: seed, RunID: runID}, nil
}

func validateImages(images *ml.Tensor) error {
	if images == nil {
		return fmt.Errorf("%w: no images", ErrInvalidInput)
	}
	if images.Rank() != 4 || images.Dim(0) == 0 || images.Dim(1) != 3 {
		return fmt.Errorf("%w: images must be [N, 3, H, W], got %v", ErrInvalidInput, images.Shape())
	}
	return nil
}

func replicate(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
