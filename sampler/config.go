// config.go - Sampler-Konfiguration als Wertobjekt
// Dieses Modul enthaelt:
// - Config: Schrittzahl, Restore-Staerke, Stochastik, Diskretisierung, Guider
// - DefaultConfig: Werte der SUPIR-v0 Modell-Konfiguration
// - Validate: synchrone Pruefung vor jedem Sampling
package sampler

import (
	"fmt"
	"math"
)

// Discretization und Sampler Tags.
const (
	LegacyDDPM = "LegacyDDPMDiscretization"
	EDM        = "EDMDiscretization"

	RestoreEDMSampler     = "RestoreEDMSampler"
	RestoreDPMPP2MSampler = "RestoreDPMPP2MSampler"
)

// DiscretizationConfig selects and parameterizes the noise-level schedule.
type DiscretizationConfig struct {
	Target string `yaml:"target"`

	// LegacyDDPM
	LinearStart  float64 `yaml:"linear_start,omitempty"`
	LinearEnd    float64 `yaml:"linear_end,omitempty"`
	NumTimesteps int     `yaml:"num_timesteps,omitempty"`

	// EDM
	SigmaMin float64 `yaml:"sigma_min,omitempty"`
	SigmaMax float64 `yaml:"sigma_max,omitempty"`
	Rho      float64 `yaml:"rho,omitempty"`
}

// GuiderConfig is the linear classifier-free guidance policy. The scale moves
// from Scale at the highest noise level to ScaleMin at sigma 0; a constant
// policy has Scale == ScaleMin.
type GuiderConfig struct {
	Scale    float64 `yaml:"scale"`
	ScaleMin float64 `yaml:"scale_min"`
}

// At returns the guidance scale for sigma.
func (g GuiderConfig) At(sigma, sigmaMax float64) float64 {
	if sigmaMax <= 0 {
		return g.ScaleMin
	}
	return g.ScaleMin + (g.Scale-g.ScaleMin)*sigma/sigmaMax
}

// Config is constructed per call and never shared between calls.
type Config struct {
	Target          string               `yaml:"target"`
	NumSteps        int                  `yaml:"num_steps"`
	RestoreCFG      float64              `yaml:"restore_cfg"`
	RestoreCFGSTMin float64              `yaml:"restore_cfg_s_tmin"`
	SChurn          float64              `yaml:"s_churn"`
	STMin           float64              `yaml:"s_tmin"`
	STMax           float64              `yaml:"s_tmax"`
	SNoise          float64              `yaml:"s_noise"`
	Eta             float64              `yaml:"eta,omitempty"`
	Discretization  DiscretizationConfig `yaml:"discretization"`
	Guider          GuiderConfig         `yaml:"guider"`

	// Progress is called after every step with (step, total).
	Progress func(step, total int) `yaml:"-"`
}

// DefaultConfig returns the sampler section of the SUPIR-v0 model config.
func DefaultConfig() Config {
	return Config{
		Target:          RestoreEDMSampler,
		NumSteps:        100,
		RestoreCFG:      4.0,
		RestoreCFGSTMin: 0.05,
		SChurn:          0,
		STMin:           0,
		STMax:           999,
		SNoise:          1.003,
		Eta:             1.0,
		Discretization: DiscretizationConfig{
			Target:       LegacyDDPM,
			LinearStart:  0.00085,
			LinearEnd:    0.012,
			NumTimesteps: 1000,
			SigmaMin:     0.002,
			SigmaMax:     80,
			Rho:          7,
		},
		Guider: GuiderConfig{Scale: 7.5, ScaleMin: 4.0},
	}
}

// Validate checks the configuration before any numeric work.
func (c Config) Validate() error {
	if _, ok := samplers[c.Target]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSampler, c.Target)
	}
	if _, ok := discretizations[c.Discretization.Target]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDiscretization, c.Discretization.Target)
	}
	if c.NumSteps < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSteps, c.NumSteps)
	}
	for name, v := range map[string]float64{
		"restore_cfg": c.RestoreCFG, "s_churn": c.SChurn, "s_noise": c.SNoise,
		"eta": c.Eta, "guider.scale": c.Guider.Scale, "guider.scale_min": c.Guider.ScaleMin,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidParameter, name, v)
		}
	}
	if c.SChurn < 0 || c.SNoise < 0 || c.Eta < 0 {
		return fmt.Errorf("%w: s_churn, s_noise and eta must not be negative", ErrInvalidParameter)
	}
	return nil
}
