// MODUL: schedule
// ZWECK: Schedule Planner - leitet aus wenigen Lauf-Parametern die
//        Guidance- und Control-Scale-Politik eines Sampling-Laufs ab
// INPUT: Basis-Config, Schrittzahl, Restore-Staerke, Stochastik, ScheduleRequest
// OUTPUT: neue Config (Guidance eingebacken) + ControlSchedule (pro Schritt),
//         Preview fuer die Schritt-Tabelle der CLI
// NEBENEFFEKTE: keine - die Basis-Config wird nie veraendert
// ABHAENGIGKEITEN: config.go
// HINWEISE: Die Guidance-Rampe interpoliert der Sampler selbst (GuiderConfig.At),
//           die Control-Rampe wertet der Denoiser Adapter pro Schritt aus.

package sampler

import "math"

// ScheduleRequest holds the scheduling knobs of one restoration call.
type ScheduleRequest struct {
	GuidanceScale      float64
	LinearGuidance     bool
	GuidanceScaleStart float64

	ControlScale       float64
	LinearControlScale bool
	ControlScaleStart  float64
}

// ControlSchedule is the control-scale policy. Progress runs from 1 at the
// first (noisiest) step to 0 at the end, so a linear schedule moves from
// Start to Scale.
type ControlSchedule struct {
	Scale  float64
	Start  float64
	Linear bool
}

// At returns the control scale for the given step progress.
func (c ControlSchedule) At(progress float64) float64 {
	if !c.Linear {
		return c.Scale
	}
	return progress*(c.Start-c.Scale) + c.Scale
}

// Plan returns a copy of base configured for one call.
func Plan(base Config, steps int, restoreCFG, sChurn, sNoise float64, req ScheduleRequest) (Config, ControlSchedule) {
	cfg := base
	cfg.NumSteps = steps
	cfg.RestoreCFG = restoreCFG
	cfg.SChurn = sChurn
	cfg.SNoise = sNoise

	if req.LinearGuidance {
		cfg.Guider = GuiderConfig{Scale: req.GuidanceScaleStart, ScaleMin: req.GuidanceScale}
	} else {
		cfg.Guider = GuiderConfig{Scale: req.GuidanceScale, ScaleMin: req.GuidanceScale}
	}

	return cfg, ControlSchedule{
		Scale:  req.ControlScale,
		Start:  req.ControlScaleStart,
		Linear: req.LinearControlScale,
	}
}

// StepPlan is one row of a planned sampling run.
type StepPlan struct {
	Step          int
	Sigma         float64
	Next          float64
	Guidance      float64
	Control       float64
	RestoreWeight float64 // 0 wenn der Restore-Term in diesem Schritt aus ist
}

// Preview evaluates the guidance, control and restoration policies of cfg at
// every step without running a denoiser. Stochastic churn is ignored.
func Preview(cfg Config, control ControlSchedule) ([]StepPlan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	disc, err := NewDiscretization(cfg.Discretization)
	if err != nil {
		return nil, err
	}

	sigmas := disc.Sigmas(cfg.NumSteps)
	sigmaMax := sigmas[0]
	plan := make([]StepPlan, 0, len(sigmas)-1)
	for i := 0; i < len(sigmas)-1; i++ {
		p := StepPlan{
			Step:     i + 1,
			Sigma:    sigmas[i],
			Next:     sigmas[i+1],
			Guidance: cfg.Guider.At(sigmas[i], sigmaMax),
			Control:  control.At(sigmas[i] / sigmaMax),
		}
		if p.Next > cfg.RestoreCFGSTMin && cfg.RestoreCFG > 0 {
			p.RestoreWeight = math.Pow(sigmas[i]/sigmaMax, cfg.RestoreCFG)
		}
		plan = append(plan, p)
	}
	return plan, nil
}
