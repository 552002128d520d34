// Package ggml - Tensor Datenstrukturen
//
// Dieses Modul enthaelt Tensor-bezogene Typen und Methoden:
// - Tensor: Einzelner Tensor mit Name, Shape, Kind
// - Tensors: Collection von Tensors mit Offset
// - NewTensor: Tensor aus float32-Daten zum Schreiben vorbereiten
package ggml

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Tensors repraesentiert eine Sammlung von Tensors
type Tensors struct {
	items  []*Tensor
	Offset uint64
}

// Items gibt Tensors zurueck, optional gefiltert nach Prefix
func (s Tensors) Items(prefix ...string) []*Tensor {
	if len(prefix) == 0 {
		return s.items
	}

	var items []*Tensor
	for _, t := range s.items {
		if strings.HasPrefix(t.Name, prefix[0]) {
			items = append(items, t)
		}
	}

	return items
}

// Tensor repraesentiert einen einzelnen Tensor im Checkpoint
type Tensor struct {
	Name   string `json:"name"`
	Kind   uint32 `json:"kind"`
	Offset uint64 `json:"-"`

	// Shape ist die Anzahl der Elemente in jeder Dimension, innerste zuerst
	Shape []uint64 `json:"shape"`

	io.WriterTo `json:"-"`
}

// NewTensor bereitet einen Tensor zum Schreiben vor.
// shape wird wie bei PyTorch aeusserste Dimension zuerst angegeben.
func NewTensor(name string, kind TensorType, shape []int, data []float32) (*Tensor, error) {
	if kind.TypeSize() == 0 {
		return nil, fmt.Errorf("unsupported tensor type %v", kind)
	}

	dims := make([]uint64, len(shape))
	n := 1
	for i, d := range slices.Backward(shape) {
		dims[len(shape)-1-i] = uint64(d)
		n *= d
	}

	if n != len(data) {
		return nil, fmt.Errorf("tensor %q: %d values do not fit shape %v", name, len(data), shape)
	}

	return &Tensor{
		Name:     name,
		Kind:     uint32(kind),
		Shape:    dims,
		WriterTo: floatWriter{kind: kind, data: data},
	}, nil
}

// Dims gibt das Shape aeusserste Dimension zuerst zurueck
func (t Tensor) Dims() []int {
	dims := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		dims[len(t.Shape)-1-i] = int(d)
	}
	return dims
}

// block extrahiert die Block-Nummer aus dem Tensor-Namen
func (t Tensor) block() (n int) {
	i := strings.Index(t.Name, "blk.")
	if i < 0 {
		return -1
	}
	if _, err := fmt.Sscanf(t.Name[i:], "blk.%d.", &n); err != nil {
		return -1
	}
	return
}

// Elements gibt die Gesamtanzahl der Elemente im Tensor zurueck
func (t Tensor) Elements() uint64 {
	var count uint64 = 1
	for _, n := range t.Shape {
		count *= n
	}
	return count
}

// Size gibt die Groesse des Tensors in Bytes zurueck
func (t Tensor) Size() uint64 {
	return t.Elements() * TensorType(t.Kind).TypeSize()
}

// Type gibt den Typ-Namen als String zurueck
func (t Tensor) Type() string {
	return TensorType(t.Kind).String()
}

// floatWriter kodiert float32-Daten beim Schreiben in den Zieltyp
type floatWriter struct {
	kind TensorType
	data []float32
}

func (w floatWriter) WriteTo(dst io.Writer) (int64, error) {
	b, err := EncodeFloats(w.kind, binary.LittleEndian, w.data)
	if err != nil {
		return 0, err
	}
	return io.Copy(dst, bytes.NewReader(b))
}
