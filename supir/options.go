// options.go - Lauf-Parameter eines Restaurierungs-Aufrufs
// Options werden pro Aufruf neu gebaut und nach dem Aufruf verworfen.
package supir

import (
	"fmt"

	"github.com/hkarakose/SUPIR/colorfix"
	"github.com/hkarakose/SUPIR/sampler"
)

// RandomSeed laesst den Aufruf einen Seed aus [0, 65535] ziehen.
const RandomSeed int64 = -1

// Options are the run parameters of one Restore call.
type Options struct {
	// nil = Prompt aus der Modell-Konfiguration
	PositivePrompt *string
	NegativePrompt *string

	Steps            int
	RestorationScale float64
	SChurn           float64
	SNoise           float64
	GuidanceScale    float64
	Seed             int64
	NumSamples       int
	ControlScale     float64
	ColorFix         colorfix.Mode

	LinearGuidance     bool
	LinearControlScale bool
	GuidanceScaleStart float64
	ControlScaleStart  float64

	// Progress is called after every sampler step.
	Progress func(step, total int)
}

// DefaultOptions returns the documented restore defaults.
func DefaultOptions() Options {
	return Options{
		Steps:              100,
		RestorationScale:   4.0,
		SChurn:             0,
		SNoise:             1.003,
		GuidanceScale:      4.0,
		Seed:               RandomSeed,
		NumSamples:         1,
		ControlScale:       1,
		ColorFix:           colorfix.None,
		GuidanceScaleStart: 1.0,
		ControlScaleStart:  0.0,
	}
}

// Prompt returns a pointer to s for the optional prompt fields.
func Prompt(s string) *string { return &s }

func (o Options) validate() error {
	if err := o.ColorFix.Validate(); err != nil {
		return err
	}
	if o.Steps < 1 {
		return fmt.Errorf("%w: %d", sampler.ErrInvalidSteps, o.Steps)
	}
	if o.NumSamples < 1 {
		return fmt.Errorf("%w: num_samples %d", ErrInvalidInput, o.NumSamples)
	}
	if o.Seed < RandomSeed {
		return fmt.Errorf("%w: seed %d", ErrInvalidInput, o.Seed)
	}
	if o.RestorationScale < 0 || o.SChurn < 0 || o.SNoise < 0 {
		return fmt.Errorf("%w: restoration scale, s_churn and s_noise must not be negative", ErrInvalidInput)
	}
	return nil
}

func (o Options) schedule() sampler.ScheduleRequest {
	return sampler.ScheduleRequest{
		GuidanceScale:      o.GuidanceScale,
		LinearGuidance:     o.LinearGuidance,
		GuidanceScaleStart: o.GuidanceScaleStart,
		ControlScale:       o.ControlScale,
		LinearControlScale: o.LinearControlScale,
		ControlScaleStart:  o.ControlScaleStart,
	}
}
