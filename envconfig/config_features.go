// config_features.go - Color-Fix und Parallelitaets-Einstellungen
//
// Dieses Modul enthaelt:
// - Default-Modus des Color Correctors fuer die CLI
// - Worker-Limit fuer die Farbkorrektur pro Bild
package envconfig

import "runtime"

// =============================================================================
// Color-Fix
// =============================================================================

// ColorFix ist der Default-Modus fuer "supir colorfix" (Wavelet, AdaIn, None)
var ColorFix = String("SUPIR_COLOR_FIX")

// =============================================================================
// Parallelitaet
// =============================================================================

var colorFixWorkers = Uint("SUPIR_COLORFIX_WORKERS", 0)

// ColorFixWorkers gibt die maximale Anzahl parallel korrigierter Bilder zurueck
// Konfigurierbar via SUPIR_COLORFIX_WORKERS
// 0 = Anzahl CPUs
func ColorFixWorkers() int {
	if n := colorFixWorkers(); n > 0 {
		return int(n)
	}
	return runtime.NumCPU()
}
