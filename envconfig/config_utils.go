// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
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
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

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
	seed, _ := Seed()
	return map[string]EnvVar{
		"ATTNDISTILL_DEBUG":       {"ATTNDISTILL_DEBUG", LogLevel(), "Show additional debug information (e.g. ATTNDISTILL_DEBUG=1, 2 for trace)"},
		"ATTNDISTILL_BACKEND":     {"ATTNDISTILL_BACKEND", Backend(), "Tensor backend to run on (default: cpu)"},
		"ATTNDISTILL_NUM_THREADS": {"ATTNDISTILL_NUM_THREADS", NumThreads(), "Number of goroutines for batched kernels (default: all CPUs)"},
		"ATTNDISTILL_SEED":        {"ATTNDISTILL_SEED", seed, "Override the seed of the run configuration"},
		"ATTNDISTILL_DTYPE":       {"ATTNDISTILL_DTYPE", DType(), "Tensor type for written checkpoints: f32, f16 or bf16 (default: f32)"},
		"ATTNDISTILL_CONFIG":      {"ATTNDISTILL_CONFIG", ConfigPath(), "Path of the YAML run configuration used when --config is not given"},
		"ATTNDISTILL_PLAIN":       {"ATTNDISTILL_PLAIN", Plain(), "Print tab separated tables even on a terminal"},
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
