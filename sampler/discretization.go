// discretization.go - Rausch-Level-Diskretisierungen
// Dieses Modul enthaelt:
// - LegacyDDPMDiscretization: linear-in-sqrt Beta-Schedule (SD/SDXL Training)
// - EDMDiscretization: Karras-Rho-Schedule
// Beide liefern absteigende Sigmas mit angehaengter 0.
package sampler

import (
	"fmt"
	"math"
	"slices"
)

// Discretization produces n descending noise levels followed by a trailing 0.
type Discretization interface {
	Sigmas(n int) []float64
}

type discretizationFactory func(DiscretizationConfig) (Discretization, error)

var discretizations = map[string]discretizationFactory{
	LegacyDDPM: newLegacyDDPM,
	EDM:        newEDM,
}

// NewDiscretization returns the discretization named by cfg.Target.
func NewDiscretization(cfg DiscretizationConfig) (Discretization, error) {
	factory, ok := discretizations[cfg.Target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDiscretization, cfg.Target)
	}
	return factory(cfg)
}

// =============================================================================
// LegacyDDPM
// =============================================================================

type legacyDDPM struct {
	alphasCumprod []float64
}

func newLegacyDDPM(cfg DiscretizationConfig) (Discretization, error) {
	n := cfg.NumTimesteps
	if n <= 1 {
		return nil, fmt.Errorf("%w: num_timesteps %d", ErrInvalidParameter, n)
	}
	if cfg.LinearStart <= 0 || cfg.LinearEnd <= cfg.LinearStart || cfg.LinearEnd >= 1 {
		return nil, fmt.Errorf("%w: linear_start %v, linear_end %v", ErrInvalidParameter, cfg.LinearStart, cfg.LinearEnd)
	}

	lo, hi := math.Sqrt(cfg.LinearStart), math.Sqrt(cfg.LinearEnd)
	acp := make([]float64, n)
	prod := 1.0
	for i := range n {
		b := lo + (hi-lo)*float64(i)/float64(n-1)
		prod *= 1 - b*b
		acp[i] = prod
	}
	return &legacyDDPM{alphasCumprod: acp}, nil
}

// Sigmas picks n evenly spaced training timesteps from the top of the
// schedule down, converts them to sigma and appends 0.
func (d *legacyDDPM) Sigmas(n int) []float64 {
	total := len(d.alphasCumprod)
	if n > total {
		n = total
	}

	// n Zeitschritte von total-1 abwaerts (ohne 0 als Endpunkt), abgeschnitten, aufsteigend sortiert
	ts := make([]int, n)
	for i := range n {
		ts[i] = int(float64(total-1) - float64(i)*float64(total-1)/float64(n))
	}
	slices.Sort(ts)

	sigmas := make([]float64, 0, n+1)
	for i := n - 1; i >= 0; i-- {
		a := d.alphasCumprod[ts[i]]
		sigmas = append(sigmas, math.Sqrt((1-a)/a))
	}
	return append(sigmas, 0)
}

// =============================================================================
// EDM
// =============================================================================

type edm struct {
	sigmaMin, sigmaMax, rho float64
}

func newEDM(cfg DiscretizationConfig) (Discretization, error) {
	if cfg.SigmaMin <= 0 || cfg.SigmaMax <= cfg.SigmaMin || cfg.Rho <= 0 {
		return nil, fmt.Errorf("%w: sigma_min %v, sigma_max %v, rho %v", ErrInvalidParameter, cfg.SigmaMin, cfg.SigmaMax, cfg.Rho)
	}
	return &edm{sigmaMin: cfg.SigmaMin, sigmaMax: cfg.SigmaMax, rho: cfg.Rho}, nil
}

func (d *edm) Sigmas(n int) []float64 {
	minInv := math.Pow(d.sigmaMin, 1/d.rho)
	maxInv := math.Pow(d.sigmaMax, 1/d.rho)

	sigmas := make([]float64, 0, n+1)
	for i := range n {
		ramp := 0.0
		if n > 1 {
			ramp = float64(i) / float64(n-1)
		}
		sigmas = append(sigmas, math.Pow(maxInv+ramp*(minInv-maxInv), d.rho))
	}
	return append(sigmas, 0)
}
