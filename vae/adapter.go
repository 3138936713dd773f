// MODUL: adapter
// ZWECK: Dual-Path Encoder Adapter um den Autoencoder (sauberer Encoder,
//        Denoise-Encoder, Decoder) mit Latent-Skalierung und Praezisionsgrenze
// INPUT: Bild-Tensoren [N, 3, H, W] in [-1, 1], Latents [N, C, h, w]
// OUTPUT: skalierte Latents bzw. fp32-Bilder
// NEBENEFFEKTE: keine (Autoencoder-Gewichte werden nur gelesen)
// ABHAENGIGKEITEN: ml (Tensor, DType), posterior.go
// HINWEISE: Skalierung genau einmal beim Encode, genau einmal invertiert beim
//           Decode. fp16 ist fuer den Autoencoder verboten (NaN-Ausgaben).

package vae

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hkarakose/SUPIR/ml"
)

// ============================================================================
// Fehler-Definitionen
// ============================================================================

var (
	// ErrUnstablePrecision: fp16 produziert im Autoencoder ungueltige Werte (NaN).
	ErrUnstablePrecision = errors.New("vae: fp16 is numerically unstable for the autoencoder (produces NaN), use fp32 or bf16")
	ErrNoRandomSource    = errors.New("vae: sampling the posterior requires a random source")
	ErrInvalidScale      = errors.New("vae: scale factor must be positive")
)

// DefaultScaleFactor ist der SDXL-Latent-Skalierungsfaktor.
const DefaultScaleFactor = 0.13025

// ============================================================================
// Autoencoder - externer Kollaborateur
// ============================================================================

// Autoencoder is the pretrained first-stage model. Encode and DenoiseEncode
// return distribution moments [N, 2*C, h, w] (mean followed by log-variance);
// DenoiseEncode runs the separate denoising encoder head that shares the
// downstream quantization layers with Encode.
type Autoencoder interface {
	Encode(ctx context.Context, x *ml.Tensor) (*ml.Tensor, error)
	DenoiseEncode(ctx context.Context, x *ml.Tensor) (*ml.Tensor, error)
	Decode(ctx context.Context, z *ml.Tensor) (*ml.Tensor, error)
}

// ============================================================================
// Adapter
// ============================================================================

// Adapter wraps an Autoencoder with latent scaling and a fixed precision.
type Adapter struct {
	ae          Autoencoder
	scaleFactor float32
	dtype       ml.DType
}

// NewAdapter validates the precision and returns an adapter. The autoencoder
// precision must be fp32 or bf16.
func NewAdapter(ae Autoencoder, scaleFactor float32, dtype ml.DType) (*Adapter, error) {
	if err := ValidatePrecision(dtype); err != nil {
		return nil, err
	}
	if scaleFactor <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScale, scaleFactor)
	}
	return &Adapter{ae: ae, scaleFactor: scaleFactor, dtype: dtype}, nil
}

// ValidatePrecision rejects precisions the autoencoder cannot run under.
func ValidatePrecision(dtype ml.DType) error {
	switch dtype {
	case ml.DTypeFloat32, ml.DTypeBFloat16:
		return nil
	case ml.DTypeFloat16:
		return ErrUnstablePrecision
	default:
		return fmt.Errorf("%w: %v", ml.ErrUnknownDType, dtype)
	}
}

// DType returns the autoencoder precision.
func (a *Adapter) DType() ml.DType { return a.dtype }

// ScaleFactor returns the latent scale factor.
func (a *Adapter) ScaleFactor() float32 { return a.scaleFactor }

// Encode runs the clean encoder. With rng the posterior is sampled (the
// first-stage regularizer's behavior), without it the mode is returned.
func (a *Adapter) Encode(ctx context.Context, x *ml.Tensor, rng *rand.Rand) (*ml.Tensor, error) {
	start := time.Now()
	moments, err := a.ae.Encode(ctx, x.Round(a.dtype))
	if err != nil {
		return nil, fmt.Errorf("vae encode: %w", err)
	}

	z, err := a.latent(moments, rng != nil, rng)
	if err != nil {
		return nil, err
	}
	slog.Debug("vae encode", "shape", z.Shape(), "sample", rng != nil, "dtype", a.dtype, "elapsed", time.Since(start))
	return z, nil
}

// EncodeDenoised runs the denoising encoder head. useSample=false returns the
// posterior mode and is used for the deterministic restoration pass.
func (a *Adapter) EncodeDenoised(ctx context.Context, x *ml.Tensor, useSample bool, rng *rand.Rand) (*ml.Tensor, error) {
	if useSample && rng == nil {
		return nil, ErrNoRandomSource
	}

	start := time.Now()
	moments, err := a.ae.DenoiseEncode(ctx, x.Round(a.dtype))
	if err != nil {
		return nil, fmt.Errorf("vae denoise encode: %w", err)
	}

	z, err := a.latent(moments, useSample, rng)
	if err != nil {
		return nil, err
	}
	slog.Debug("vae denoise encode", "shape", z.Shape(), "sample", useSample, "dtype", a.dtype, "elapsed", time.Since(start))
	return z, nil
}

// Decode inverts the latent scaling and decodes to a full-precision image.
func (a *Adapter) Decode(ctx context.Context, z *ml.Tensor) (*ml.Tensor, error) {
	start := time.Now()
	out, err := a.ae.Decode(ctx, a.Unscale(z).Round(a.dtype))
	if err != nil {
		return nil, fmt.Errorf("vae decode: %w", err)
	}
	slog.Debug("vae decode", "shape", out.Shape(), "dtype", a.dtype, "elapsed", time.Since(start))
	return out.Clone(), nil
}

// Scale multiplies a raw latent by the scale factor.
func (a *Adapter) Scale(z *ml.Tensor) *ml.Tensor {
	return z.Scale(a.scaleFactor)
}

// Unscale divides a scaled latent by the scale factor.
func (a *Adapter) Unscale(z *ml.Tensor) *ml.Tensor {
	return z.Scale(1 / a.scaleFactor)
}

func (a *Adapter) latent(moments *ml.Tensor, useSample bool, rng *rand.Rand) (*ml.Tensor, error) {
	posterior, err := NewPosterior(moments)
	if err != nil {
		return nil, err
	}

	var z *ml.Tensor
	if useSample {
		z = posterior.Sample(rng)
	} else {
		z = posterior.Mode()
	}
	return a.Scale(z), nil
}
