// context.go - Context-Struktur und Tensor-Erzeugung
// Enthaelt: Context struct, Zeros(), FromFloats(), Arange(), parallel()

package cpu

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/attndistill/ml"
)

// Context erzeugt Tensoren und verteilt Kernel auf Goroutinen
type Context struct {
	b *Backend
}

// Zeros erstellt einen mit Nullen gefuellten Tensor
func (c *Context) Zeros(dtype ml.DType, shape ...int) ml.Tensor {
	if dtype != ml.DTypeF32 {
		panic(fmt.Errorf("cpu: unsupported dtype %v", dtype))
	}
	return newTensor(shape...)
}

// FromFloats erstellt einen Tensor aus einer Kopie von s
func (c *Context) FromFloats(s []float32, shape ...int) ml.Tensor {
	t := newTensor(shape...)
	if len(s) != len(t.data) {
		panic(fmt.Errorf("cpu: %d values do not fit shape %v", len(s), shape))
	}
	copy(t.data, s)
	return t
}

// Arange erstellt einen 1D-Tensor mit Werten in [start, stop)
func (c *Context) Arange(start, stop, step float32, dtype ml.DType) ml.Tensor {
	if dtype != ml.DTypeF32 {
		panic(fmt.Errorf("cpu: unsupported dtype %v", dtype))
	}

	var s []float32
	for v := start; v < stop; v += step {
		s = append(s, v)
	}
	return &Tensor{shape: []int{len(s)}, data: s}
}

// Close gibt den Kontext frei
func (c *Context) Close() {}

// threads gibt die Anzahl der Worker fuer einen Kontext zurueck
func threads(ctx ml.Context) int {
	if c, ok := ctx.(*Context); ok && c.b != nil {
		return c.b.numThreads
	}
	return 1
}

// parallel teilt [0, n) in zusammenhaengende Bereiche und ruft fn je Bereich auf.
// Jeder Bereich schreibt disjunkte Ausgaben, das Ergebnis ist deterministisch.
func parallel(ctx ml.Context, n int, fn func(lo, hi int)) {
	workers := min(threads(ctx), n)
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

// numel berechnet die Anzahl der Elemente eines Shapes
func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// checkShape prueft dass alle Dimensionen positiv sind
func checkShape(shape []int) {
	if slices.ContainsFunc(shape, func(d int) bool { return d <= 0 }) {
		panic(fmt.Errorf("cpu: invalid shape %v", shape))
	}
}
