// config.go - Haupt-Konfigurationsfunktionen fuer SUPIR
//
// Dieses Modul enthaelt:
// - ConfigPath: Pfad der Modell-Konfiguration (SUPIR_CONFIG)
// - AEDType / DiffusionDType: Praezisions-Overrides (SUPIR_AE_DTYPE, SUPIR_DIFFUSION_DTYPE)
// - LogLevel: Gibt Log-Level zurueck (SUPIR_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Color-Fix und Parallelitaets-Einstellungen
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ConfigPath gibt den Pfad der Modell-Konfiguration zurueck
// Konfigurierbar via SUPIR_CONFIG
// Default: $HOME/.supir/config.yaml
func ConfigPath() string {
	if s := Var("SUPIR_CONFIG"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}

	return filepath.Join(home, ".supir", "config.yaml")
}

var (
	// AEDType ueberschreibt ae_dtype aus der Modell-Konfiguration (fp32, bf16)
	AEDType = String("SUPIR_AE_DTYPE")

	// DiffusionDType ueberschreibt diffusion_dtype (fp32, fp16, bf16)
	DiffusionDType = String("SUPIR_DIFFUSION_DTYPE")
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via SUPIR_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("SUPIR_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
