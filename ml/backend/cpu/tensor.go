// tensor.go - Tensor-Struktur und Basis-Methoden
// Enthaelt: Tensor struct, Dim(), Shape(), DType(), Floats(), Reshape(), Duplicate()

package cpu

import (
	"fmt"
	"slices"

	"github.com/7blacky7/attndistill/ml"
)

// Tensor ist ein zusammenhaengender float32-Tensor in Row-Major-Ordnung
type Tensor struct {
	shape []int
	data  []float32
}

// newTensor erstellt einen mit Nullen gefuellten Tensor
func newTensor(shape ...int) *Tensor {
	checkShape(shape)
	return &Tensor{
		shape: slices.Clone(shape),
		data:  make([]float32, numel(shape)),
	}
}

// cast konvertiert ein ml.Tensor in den CPU-Tensor
func cast(t ml.Tensor) *Tensor {
	switch t := t.(type) {
	case *Tensor:
		return t
	case nil:
		panic("cpu: nil tensor")
	default:
		panic(fmt.Errorf("cpu: foreign tensor type %T", t))
	}
}

// Dim gibt die Groesse der Dimension n zurueck (1 jenseits des Rangs)
func (t *Tensor) Dim(n int) int {
	if n < 0 || n >= len(t.shape) {
		return 1
	}
	return t.shape[n]
}

// Shape gibt eine Kopie des Shapes zurueck
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// DType gibt den Datentyp zurueck
func (t *Tensor) DType() ml.DType {
	return ml.DTypeF32
}

// Floats gibt eine Kopie der Daten zurueck
func (t *Tensor) Floats() []float32 {
	return slices.Clone(t.data)
}

// Reshape gibt eine Kopie mit neuem Shape zurueck, -1 wird inferiert
func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	shape = slices.Clone(shape)
	if i := slices.Index(shape, -1); i >= 0 {
		shape[i] = 1
		shape[i] = len(t.data) / numel(shape)
	}

	if numel(shape) != len(t.data) {
		panic(fmt.Errorf("cpu: cannot reshape %v to %v", t.shape, shape))
	}

	return &Tensor{shape: shape, data: slices.Clone(t.data)}
}

// Duplicate gibt eine tiefe Kopie zurueck
func (t *Tensor) Duplicate(ctx ml.Context) ml.Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// String gibt eine kurze Beschreibung fuer Logs zurueck
func (t *Tensor) String() string {
	return fmt.Sprintf("cpu.Tensor%v", t.shape)
}
