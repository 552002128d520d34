// types.go - Datentypen und Konstanten fuer ML-Operationen
// Dieses Modul definiert grundlegende Typen wie DType und SamplingMode.
package ml

import "fmt"

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// String gibt den Namen des Datentyps zurueck
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	default:
		return "other"
	}
}

// ParseDType parst einen Datentyp-Namen (f32, f16, bf16)
func ParseDType(s string) (DType, error) {
	switch s {
	case "", "f32", "F32", "float32":
		return DTypeF32, nil
	case "f16", "F16", "float16":
		return DTypeF16, nil
	case "bf16", "BF16", "bfloat16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
}

// SamplingMode specifies the interpolation method for tensor resizing.
type SamplingMode int

const (
	SamplingModeNearest SamplingMode = iota
	SamplingModeBilinear
)
