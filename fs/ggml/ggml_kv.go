// Package ggml - KV (Key-Value) Metadaten
//
// Dieses Modul enthaelt den KV-Typ und alle zugehoerigen Methoden:
// - KV: Map fuer GGUF Key-Value Metadaten
// - Architektur-spezifische Methoden (Architecture, ParameterCount)
// - Generische Getter (String, Uint, Float, Strings)
package ggml

import (
	"iter"
	"log/slog"
	"maps"
	"strings"
)

// KV repraesentiert GGUF Key-Value Metadaten.
// Schluessel ohne "general."-Prefix werden unter der Architektur abgelegt.
type KV map[string]any

// Architecture gibt die Architektur zurueck
func (kv KV) Architecture() string {
	return kv.String("general.architecture", "unknown")
}

// ParameterCount gibt die Anzahl der Parameter zurueck
func (kv KV) ParameterCount() uint64 {
	val, _ := keyValue(kv, "general.parameter_count", uint64(0))
	return val
}

// Generische Getter

// String gibt einen String-Wert zurueck
func (kv KV) String(key string, defaultValue ...string) string {
	val, _ := keyValue(kv, key, append(defaultValue, "")...)
	return val
}

// Uint gibt einen uint32-Wert zurueck
func (kv KV) Uint(key string, defaultValue ...uint32) uint32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Float gibt einen float32-Wert zurueck
func (kv KV) Float(key string, defaultValue ...float32) float32 {
	val, _ := keyValue(kv, key, append(defaultValue, 0)...)
	return val
}

// Strings gibt ein String-Array zurueck
func (kv KV) Strings(key string, defaultValue ...[]string) []string {
	val, _ := keyValue(kv, key, append(defaultValue, []string(nil))...)
	return val
}

// Len gibt die Anzahl der KV-Paare zurueck
func (kv KV) Len() int {
	return len(kv)
}

// Keys gibt einen Iterator ueber alle Keys zurueck
func (kv KV) Keys() iter.Seq[string] {
	return maps.Keys(kv)
}

// Value gibt den Wert fuer einen Key zurueck
func (kv KV) Value(key string) any {
	return kv[key]
}

// valueTypes beschraenkt keyValue auf die Typen, die der Decoder erzeugt
type valueTypes interface {
	uint8 | int8 | uint16 | int16 |
		uint32 | int32 | uint64 | int64 |
		string | float32 | float64 | bool |
		[]string | []uint32 | []float32
}

// keyValue ist eine generische Hilfsfunktion zum Lesen von KV-Werten
func keyValue[T valueTypes](kv KV, key string, defaultValue ...T) (T, bool) {
	if !strings.HasPrefix(key, "general.") {
		key = kv.Architecture() + "." + key
	}

	if val, ok := kv[key].(T); ok {
		return val, true
	}

	slog.Debug("key with type not found", "key", key, "default", defaultValue[0])
	return defaultValue[0], false
}
