// Package fs - Gemeinsame Schnittstellen fuer Checkpoint-Formate
package fs

// Config liefert Architektur-Hyperparameter aus Checkpoint-Metadaten.
// Schluessel ohne "general."-Prefix gelten relativ zur Architektur.
type Config interface {
	Architecture() string
	String(key string, defaultValue ...string) string
	Uint(key string, defaultValue ...uint32) uint32
	Float(key string, defaultValue ...float32) float32

	Strings(key string, defaultValue ...[]string) []string
}
