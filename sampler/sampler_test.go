package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkarakose/SUPIR/ml"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func conditioning() (Conditioning, Conditioning) {
	return Conditioning{"vector": ml.Full(1, 1, 4)}, Conditioning{"vector": ml.Zeros(1, 4)}
}

// constantDenoiser sagt fuer uncond-Haelfte u und fuer cond-Haelfte c voraus.
func constantDenoiser(u, c float32) DenoiseFunc {
	return func(_ context.Context, x *ml.Tensor, _ Step, _ Conditioning) (*ml.Tensor, error) {
		half := x.Dim(0) / 2
		shape := x.Shape()
		shape[0] = half
		return ml.Concat(ml.Full(u, shape...), ml.Full(c, shape...))
	}
}

func TestDiscretizations(t *testing.T) {
	t.Run("legacy ddpm", func(t *testing.T) {
		d, err := NewDiscretization(DefaultConfig().Discretization)
		require.NoError(t, err)

		sigmas := d.Sigmas(100)
		require.Len(t, sigmas, 101)
		assert.InDelta(t, 14.614641, sigmas[0], 1e-4)
		assert.InDelta(t, 0.0935676, sigmas[99], 1e-5)
		assert.Zero(t, sigmas[100])
		reversed := slices.Clone(sigmas)
		slices.Reverse(reversed)
		assert.True(t, slices.IsSorted(reversed), "Sigmas muessen absteigend sein")
	})

	t.Run("edm", func(t *testing.T) {
		cfg := DefaultConfig().Discretization
		cfg.Target = EDM
		d, err := NewDiscretization(cfg)
		require.NoError(t, err)

		sigmas := d.Sigmas(10)
		require.Len(t, sigmas, 11)
		assert.InDelta(t, 80, sigmas[0], 1e-9)
		assert.InDelta(t, 0.002, sigmas[9], 1e-9)
		assert.Zero(t, sigmas[10])
	})

	t.Run("unbekannt", func(t *testing.T) {
		_, err := NewDiscretization(DiscretizationConfig{Target: "Karras"})
		require.ErrorIs(t, err, ErrUnknownDiscretization)
	})
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"sampler", func(c *Config) { c.Target = "EulerEDMSampler" }, ErrUnknownSampler},
		{"discretization", func(c *Config) { c.Discretization.Target = "" }, ErrUnknownDiscretization},
		{"steps", func(c *Config) { c.NumSteps = 0 }, ErrInvalidSteps},
		{"negativer churn", func(c *Config) { c.SChurn = -1 }, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	for _, name := range Names() {
		cfg := DefaultConfig()
		cfg.Target = name
		_, err := New(cfg)
		require.NoError(t, err, name)
	}
}

func TestSampleConvergesToPrediction(t *testing.T) {
	cond, uc := conditioning()
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			cfg, control := Plan(DefaultConfig(), 20, 4.0, 0, 1.003, ScheduleRequest{GuidanceScale: 4, ControlScale: 1})
			cfg.Target = name
			s, err := New(cfg)
			require.NoError(t, err)

			noise := ml.RandomNormal(newRand(1), 1, 4, 2, 2)
			out, err := s.Sample(context.Background(), Input{
				Denoiser: constantDenoiser(0.5, 0.5),
				Noise:    noise,
				Cond:     cond,
				UC:       uc,
				XCenter:  ml.Full(0.5, 1, 4, 2, 2),
				Control:  control,
				Rand:     newRand(2),
			})
			require.NoError(t, err)
			assert.Equal(t, noise.Shape(), out.Shape())
			if diff := cmp.Diff(ml.Full(0.5, 1, 4, 2, 2).Floats(), out.Floats(), cmpopts.EquateApprox(0, 1e-4)); diff != "" {
				t.Errorf("finales Latent (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSampleAppliesGuidance(t *testing.T) {
	cond, uc := conditioning()
	cfg, _ := Plan(DefaultConfig(), 10, 0, 0, 1, ScheduleRequest{GuidanceScale: 4})
	s, err := New(cfg)
	require.NoError(t, err)

	// x_u = 0, x_c = 1, Skala 4 -> 4
	out, err := s.Sample(context.Background(), Input{
		Denoiser: constantDenoiser(0, 1),
		Noise:    ml.RandomNormal(newRand(3), 1, 4, 2, 2),
		Cond:     cond,
		UC:       uc,
		Rand:     newRand(4),
	})
	require.NoError(t, err)
	for _, v := range out.Floats() {
		assert.InDelta(t, 4.0, v, 1e-4)
	}
}

func TestSampleDoublesBatchUncondFirst(t *testing.T) {
	cond, uc := conditioning()
	cfg, control := Plan(DefaultConfig(), 5, 4, 0, 1, ScheduleRequest{GuidanceScale: 2, ControlScale: 1, LinearControlScale: true})
	s, err := New(cfg)
	require.NoError(t, err)

	var steps []Step
	denoiser := func(_ context.Context, x *ml.Tensor, step Step, cc Conditioning) (*ml.Tensor, error) {
		steps = append(steps, step)
		assert.Equal(t, 2, x.Dim(0))
		assert.Equal(t, []float32{0, 0, 0, 0}, cc["vector"].Batch(0).Floats(), "uncond zuerst")
		assert.Equal(t, []float32{1, 1, 1, 1}, cc["vector"].Batch(1).Floats())
		return x.Clone(), nil
	}

	_, err = s.Sample(context.Background(), Input{
		Denoiser: denoiser,
		Noise:    ml.Zeros(1, 4, 2, 2),
		Cond:     cond,
		UC:       uc,
		XCenter:  ml.Zeros(1, 4, 2, 2),
		Control:  control,
		Rand:     newRand(5),
	})
	require.NoError(t, err)
	require.Len(t, steps, 5)

	assert.InDelta(t, 1.0, steps[0].Progress, 1e-12)
	assert.InDelta(t, 0.0, steps[0].Control.At(steps[0].Progress), 1e-12, "lineare Control-Skala startet bei Start")
	for i := 1; i < len(steps); i++ {
		assert.Less(t, steps[i].Progress, steps[i-1].Progress)
		assert.Greater(t, steps[i].Control.At(steps[i].Progress), steps[i-1].Control.At(steps[i-1].Progress))
	}
}

func TestRestoreTermPullsToCenter(t *testing.T) {
	cond, uc := conditioning()
	cfg, _ := Plan(DefaultConfig(), 10, 4, 0, 1, ScheduleRequest{GuidanceScale: 1})
	disc, err := NewDiscretization(cfg.Discretization)
	require.NoError(t, err)

	sigmas := disc.Sigmas(cfg.NumSteps)
	l := &loop{
		restoreSampler: &restoreSampler{cfg: cfg, disc: disc},
		in: Input{
			Denoiser: constantDenoiser(0, 0),
			Cond:     cond,
			UC:       uc,
			XCenter:  ml.Full(1, 1, 4),
		},
		sigmas:   sigmas,
		sigmaMax: sigmas[0],
	}
	l.guider = guider{cfg: cfg.Guider, sigmaMax: sigmas[0]}

	// Erster Schritt: (sigma/sigma_max)^restore_cfg = 1 -> Vorhersage == x_center
	got, err := l.denoise(context.Background(), 0, ml.Zeros(1, 4), sigmas[0], sigmas[1])
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, got.Floats())

	// Unterhalb von restore_cfg_s_tmin greift der Term nicht
	got, err = l.denoise(context.Background(), 9, ml.Zeros(1, 4), sigmas[9], 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, got.Floats())
}

func TestSampleIsSeeded(t *testing.T) {
	cond, uc := conditioning()
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			cfg, control := Plan(DefaultConfig(), 8, 4, 5, 1.003, ScheduleRequest{GuidanceScale: 4, ControlScale: 1})
			cfg.Target = name
			s, err := New(cfg)
			require.NoError(t, err)

			run := func(seed uint64) []float32 {
				rng := newRand(seed)
				noise := ml.RandomNormal(rng, 1, 4, 2, 2)
				// Denoiser skaliert das Eingangs-Latent, damit Rauschen durchschlaegt
				denoiser := func(_ context.Context, x *ml.Tensor, _ Step, _ Conditioning) (*ml.Tensor, error) {
					return x.Scale(0.5), nil
				}
				out, err := s.Sample(context.Background(), Input{
					Denoiser: denoiser, Noise: noise, Cond: cond, UC: uc,
					XCenter: ml.Zeros(1, 4, 2, 2), Control: control, Rand: rng,
				})
				require.NoError(t, err)
				return out.Floats()
			}

			assert.Equal(t, run(11), run(11))
			assert.NotEqual(t, run(11), run(12))
		})
	}
}

func TestSampleProgressAndCancel(t *testing.T) {
	cond, uc := conditioning()
	cfg, control := Plan(DefaultConfig(), 6, 0, 0, 1, ScheduleRequest{GuidanceScale: 1, ControlScale: 1})

	var calls [][2]int
	cfg.Progress = func(step, total int) { calls = append(calls, [2]int{step, total}) }
	s, err := New(cfg)
	require.NoError(t, err)

	in := Input{
		Denoiser: constantDenoiser(0, 0),
		Noise:    ml.Zeros(1, 4, 1, 1),
		Cond:     cond,
		UC:       uc,
		Control:  control,
		Rand:     newRand(1),
	}
	_, err = s.Sample(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, calls, 7)
	assert.Equal(t, [2]int{0, 6}, calls[0])
	assert.Equal(t, [2]int{6, 6}, calls[6])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sample(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSampleDenoiserError(t *testing.T) {
	cond, uc := conditioning()
	cfg, _ := Plan(DefaultConfig(), 4, 0, 0, 1, ScheduleRequest{GuidanceScale: 1})
	s, err := New(cfg)
	require.NoError(t, err)

	boom := errors.New("cuda out of memory")
	_, err = s.Sample(context.Background(), Input{
		Denoiser: func(context.Context, *ml.Tensor, Step, Conditioning) (*ml.Tensor, error) { return nil, boom },
		Noise:    ml.Zeros(1, 4, 1, 1),
		Cond:     cond,
		UC:       uc,
		Rand:     newRand(1),
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "sampler step 1/4")
}

func TestSampleInputValidation(t *testing.T) {
	cond, uc := conditioning()
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = s.Sample(context.Background(), Input{
		Denoiser: constantDenoiser(0, 0),
		Noise:    ml.Zeros(1, 4, 2, 2),
		Cond:     cond,
		UC:       uc,
		Rand:     newRand(1),
	})
	require.ErrorIs(t, err, ErrInvalidInput, "restore_cfg > 0 ohne x_center")

	_, err = s.Sample(context.Background(), Input{
		Denoiser: constantDenoiser(0, 0),
		Noise:    ml.Zeros(1, 4, 2, 2),
		XCenter:  ml.Zeros(1, 4, 1, 1),
		Cond:     cond,
		UC:       uc,
		Rand:     newRand(1),
	})
	require.ErrorIs(t, err, ml.ErrShapeMismatch)
}
