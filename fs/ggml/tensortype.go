// tensortype.go - GGML TensorType Definitionen
// Enthält: TensorType Konstanten, Parsing, Kodierung von float32-Daten

package ggml

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// TensorType ist äquivalent zu ggml_type, die Werte entsprechen den ggml-IDs
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

// ParseTensorType parst den Tensortyp aus einem String
func ParseTensorType(s string) (TensorType, error) {
	switch strings.ToUpper(s) {
	case "F32":
		return TensorTypeF32, nil
	case "F16":
		return TensorTypeF16, nil
	case "BF16":
		return TensorTypeBF16, nil
	default:
		return 0, fmt.Errorf("unsupported tensor type: %s", s)
	}
}

// TypeSize gibt die Byte-Groesse pro Element zurueck, 0 fuer unbekannte Typen
func (t TensorType) TypeSize() uint64 {
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16, TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

// String gibt den Namen des Tensortyps zurueck
func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// EncodeFloats kodiert float32-Werte im Zieltyp
func EncodeFloats(t TensorType, order binary.ByteOrder, f []float32) ([]byte, error) {
	switch t {
	case TensorTypeF32:
		b := make([]byte, 4*len(f))
		for i, v := range f {
			order.PutUint32(b[4*i:], math.Float32bits(v))
		}
		return b, nil
	case TensorTypeF16:
		b := make([]byte, 2*len(f))
		for i, v := range f {
			order.PutUint16(b[2*i:], float16.Fromfloat32(v).Bits())
		}
		return b, nil
	case TensorTypeBF16:
		b := bfloat16.EncodeFloat32(f)
		if order != binary.LittleEndian {
			swap16(b)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported tensor type %v", t)
	}
}

// DecodeFloats dekodiert Daten des Typs t nach float32
func DecodeFloats(t TensorType, order binary.ByteOrder, b []byte) ([]float32, error) {
	switch t {
	case TensorTypeF32:
		f := make([]float32, len(b)/4)
		for i := range f {
			f[i] = math.Float32frombits(order.Uint32(b[4*i:]))
		}
		return f, nil
	case TensorTypeF16:
		f := make([]float32, len(b)/2)
		for i := range f {
			f[i] = float16.Frombits(order.Uint16(b[2*i:])).Float32()
		}
		return f, nil
	case TensorTypeBF16:
		if order != binary.LittleEndian {
			b = append([]byte(nil), b...)
			swap16(b)
		}
		return bfloat16.DecodeFloat32(b), nil
	default:
		return nil, fmt.Errorf("unsupported tensor type %v", t)
	}
}

// swap16 tauscht die Bytes jedes 16-Bit-Worts
func swap16(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}
