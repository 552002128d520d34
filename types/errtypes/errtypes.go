// Package errtypes - Fehlerarten fuer die Distillation
//
// Dieses Modul enthaelt:
// - ErrShapeMismatch: Tensor-Dimensionen passen nicht zusammen
// - ErrMissingActivation: Pflicht-Layer wurde nicht vom Hook erfasst
// - ErrDegenerateMask: Maske eines Samples ist komplett null (lokal behoben)
// - ErrInvalidConfiguration: Unbekannter oder ungueltiger Konfigurationswert
// - Error: Strukturierter Fehler mit Operation, Name und Ursache
package errtypes

import (
	"errors"
	"fmt"
	"strings"
)

// Fehlerarten, pruefbar mit errors.Is
var (
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrMissingActivation    = errors.New("missing activation")
	ErrDegenerateMask       = errors.New("degenerate mask")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Error beschreibt einen Fehler einer Kern-Operation.
// Kind ist eine der Fehlerarten oben, Err die optionale Ursache.
type Error struct {
	Kind error
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}

	sb.WriteString(e.Kind.Error())
	if e.Name != "" {
		fmt.Fprintf(&sb, " %q", e.Name)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}

	return sb.String()
}

// Unwrap gibt Kind und Ursache zurueck, damit errors.Is beide findet
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ShapeMismatch erstellt einen ErrShapeMismatch-Fehler mit formatierter Ursache
func ShapeMismatch(op, format string, args ...any) error {
	return &Error{Kind: ErrShapeMismatch, Op: op, Err: fmt.Errorf(format, args...)}
}

// InvalidConfiguration erstellt einen ErrInvalidConfiguration-Fehler fuer den Schluessel name
func InvalidConfiguration(op, name, format string, args ...any) error {
	return &Error{Kind: ErrInvalidConfiguration, Op: op, Name: name, Err: fmt.Errorf(format, args...)}
}

// MissingActivation erstellt einen ErrMissingActivation-Fehler fuer den Layer name
func MissingActivation(op, name string, err error) error {
	return &Error{Kind: ErrMissingActivation, Op: op, Name: name, Err: err}
}
