// config.go - Haupt-Konfigurationsfunktionen fuer attndistill
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (ATTNDISTILL_DEBUG)
// - Backend: Gibt das Tensor-Backend zurueck (ATTNDISTILL_BACKEND)
// - NumThreads: Anzahl Worker fuer Batch-Kernel (ATTNDISTILL_NUM_THREADS)
// - Seed: Ueberschreibt den Seed der Laufkonfiguration (ATTNDISTILL_SEED)
// - DType: Tensortyp fuer geschriebene Checkpoints (ATTNDISTILL_DTYPE)
// - ConfigPath: Standard-Pfad der YAML-Laufkonfiguration (ATTNDISTILL_CONFIG)
// - Plain: Tabellen immer tabulatorgetrennt ausgeben (ATTNDISTILL_PLAIN)
//
// Weitere Funktionen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via ATTNDISTILL_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("ATTNDISTILL_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Backend gibt den Namen des Tensor-Backends zurueck
// Konfigurierbar via ATTNDISTILL_BACKEND
// Default: cpu
func Backend() string {
	if s := Var("ATTNDISTILL_BACKEND"); s != "" {
		return strings.ToLower(s)
	}
	return "cpu"
}

// DType gibt den Tensortyp fuer geschriebene Checkpoints zurueck
// Konfigurierbar via ATTNDISTILL_DTYPE (f32, f16, bf16)
// Default: f32
func DType() string {
	if s := Var("ATTNDISTILL_DTYPE"); s != "" {
		return strings.ToLower(s)
	}
	return "f32"
}

// Seed gibt einen Seed zurueck, der den Seed der Laufkonfiguration ersetzt.
// ok ist false wenn ATTNDISTILL_SEED nicht gesetzt oder ungueltig ist.
func Seed() (seed uint64, ok bool) {
	s := Var("ATTNDISTILL_SEED")
	if s == "" {
		return 0, false
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		slog.Warn("invalid environment variable, ignoring", "key", "ATTNDISTILL_SEED", "value", s)
		return 0, false
	}
	return n, true
}

var (
	// NumThreads setzt die Anzahl der Worker fuer Batch-Kernel, 0 = GOMAXPROCS
	NumThreads = Uint("ATTNDISTILL_NUM_THREADS", 0)
	// ConfigPath ist der Standard-Pfad der YAML-Laufkonfiguration
	ConfigPath = String("ATTNDISTILL_CONFIG")
	// Plain erzwingt tabulatorgetrennte Ausgabe auch im Terminal
	Plain = Bool("ATTNDISTILL_PLAIN")
)

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
