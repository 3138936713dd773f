// config.go - Modell-Konfiguration (YAML)
// Dieses Modul enthaelt:
// - Config: Praezisionen, Latent-Skalierung, Default-Prompts, Sampler-Sektion
// - DefaultConfig: SUPIR-v0 Werte
// - LoadConfig: Defaults -> YAML -> Environment -> Validate
package supir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hkarakose/SUPIR/envconfig"
	"github.com/hkarakose/SUPIR/ml"
	"github.com/hkarakose/SUPIR/sampler"
	"github.com/hkarakose/SUPIR/vae"
)

// Default-Prompts der Restaurierung
const (
	DefaultPositivePrompt = "Cinematic, High Contrast, highly detailed, taken using a Canon EOS R camera, " +
		"hyper detailed photo - realistic maximum detail, 32k, Color Grading, ultra HD, extreme meticulous detailing, " +
		"skin pore detailing, hyper sharpness, perfect without deformations."
	DefaultNegativePrompt = "painting, oil painting, illustration, drawing, art, sketch, oil painting, cartoon, " +
		"CG Style, 3D render, unreal engine, blurring, dirty, messy, worst quality, low quality, frames, watermark, " +
		"signature, jpeg artifacts, deformed, lowres, over-smooth"
)

// Config is the model configuration shared by all restoration calls.
type Config struct {
	AEDType        ml.DType       `yaml:"ae_dtype"`
	DiffusionDType ml.DType       `yaml:"diffusion_dtype"`
	ScaleFactor    float32        `yaml:"scale_factor"`
	PositivePrompt string         `yaml:"positive_prompt"`
	NegativePrompt string         `yaml:"negative_prompt"`
	Sampler        sampler.Config `yaml:"sampler"`
}

// DefaultConfig returns the SUPIR-v0 configuration.
func DefaultConfig() Config {
	return Config{
		AEDType:        ml.DTypeBFloat16,
		DiffusionDType: ml.DTypeFloat16,
		ScaleFactor:    vae.DefaultScaleFactor,
		PositivePrompt: DefaultPositivePrompt,
		NegativePrompt: DefaultNegativePrompt,
		Sampler:        sampler.DefaultConfig(),
	}
}

// LoadConfig reads a YAML model config. A missing file yields the defaults.
// Environment overrides are applied last, then the result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides applies SUPIR_AE_DTYPE and SUPIR_DIFFUSION_DTYPE.
func (c *Config) applyEnvOverrides() error {
	if s := envconfig.AEDType(); s != "" {
		d, err := ml.ParseDType(s)
		if err != nil {
			return fmt.Errorf("SUPIR_AE_DTYPE: %w", err)
		}
		c.AEDType = d
	}
	if s := envconfig.DiffusionDType(); s != "" {
		d, err := ml.ParseDType(s)
		if err != nil {
			return fmt.Errorf("SUPIR_DIFFUSION_DTYPE: %w", err)
		}
		c.DiffusionDType = d
	}
	return nil
}

// Validate rejects configurations that cannot run, including the fp16
// autoencoder.
func (c Config) Validate() error {
	if err := vae.ValidatePrecision(c.AEDType); err != nil {
		return fmt.Errorf("ae_dtype: %w", err)
	}
	switch c.DiffusionDType {
	case ml.DTypeFloat32, ml.DTypeFloat16, ml.DTypeBFloat16:
	default:
		return fmt.Errorf("diffusion_dtype: %w: %v", ml.ErrUnknownDType, c.DiffusionDType)
	}
	if c.ScaleFactor <= 0 {
		return fmt.Errorf("scale_factor: %w: %v", vae.ErrInvalidScale, c.ScaleFactor)
	}
	if err := c.Sampler.Validate(); err != nil {
		return fmt.Errorf("sampler: %w", err)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the config as YAML.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
