// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"SUPIR_DEBUG":            {"SUPIR_DEBUG", LogLevel(), "Show additional debug information (e.g. SUPIR_DEBUG=1, 2 for per-step trace)"},
		"SUPIR_CONFIG":           {"SUPIR_CONFIG", ConfigPath(), "Path to the model config file (default $HOME/.supir/config.yaml)"},
		"SUPIR_AE_DTYPE":         {"SUPIR_AE_DTYPE", AEDType(), "Override autoencoder precision (fp32, bf16)"},
		"SUPIR_DIFFUSION_DTYPE":  {"SUPIR_DIFFUSION_DTYPE", DiffusionDType(), "Override diffusion precision (fp32, fp16, bf16)"},
		"SUPIR_COLOR_FIX":        {"SUPIR_COLOR_FIX", ColorFix(), "Default color fix mode (Wavelet, AdaIn, None)"},
		"SUPIR_COLORFIX_WORKERS": {"SUPIR_COLORFIX_WORKERS", ColorFixWorkers(), "Maximum number of images color corrected in parallel (default: number of CPUs)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
