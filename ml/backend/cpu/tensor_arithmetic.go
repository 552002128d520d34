// tensor_arithmetic.go - Arithmetische Tensor-Operationen
// Enthaelt: Add, Sub, Mul, Div mit Broadcasting, Scale, Sqr, Sqrt

package cpu

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"

	"github.com/7blacky7/attndistill/ml"
)

// Add addiert t2 elementweise (mit Broadcasting)
func (t *Tensor) Add(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return binary(t, cast(t2), func(a, b float32) float32 { return a + b })
}

// Sub subtrahiert t2 elementweise (mit Broadcasting)
func (t *Tensor) Sub(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return binary(t, cast(t2), func(a, b float32) float32 { return a - b })
}

// Mul multipliziert t2 elementweise (mit Broadcasting)
func (t *Tensor) Mul(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return binary(t, cast(t2), func(a, b float32) float32 { return a * b })
}

// Div dividiert durch t2 elementweise (mit Broadcasting)
func (t *Tensor) Div(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	return binary(t, cast(t2), func(a, b float32) float32 { return a / b })
}

// Scale multipliziert alle Elemente mit s
func (t *Tensor) Scale(ctx ml.Context, s float64) ml.Tensor {
	return unary(t, func(v float32) float32 { return v * float32(s) })
}

// Sqr quadriert elementweise
func (t *Tensor) Sqr(ctx ml.Context) ml.Tensor {
	return unary(t, func(v float32) float32 { return v * v })
}

// Sqrt zieht elementweise die Wurzel
func (t *Tensor) Sqrt(ctx ml.Context) ml.Tensor {
	return unary(t, math32.Sqrt)
}

// unary wendet fn auf jedes Element an
func unary(t *Tensor, fn func(float32) float32) *Tensor {
	out := &Tensor{shape: slices.Clone(t.shape), data: make([]float32, len(t.data))}
	for i, v := range t.data {
		out.data[i] = fn(v)
	}
	return out
}

// binary wendet fn elementweise nach numpy-Broadcasting-Regeln an
func binary(a, b *Tensor, fn func(x, y float32) float32) *Tensor {
	if slices.Equal(a.shape, b.shape) {
		out := &Tensor{shape: slices.Clone(a.shape), data: make([]float32, len(a.data))}
		for i := range a.data {
			out.data[i] = fn(a.data[i], b.data[i])
		}
		return out
	}

	shape, err := broadcastShape(a.shape, b.shape)
	if err != nil {
		panic(err)
	}

	out := newTensor(shape...)
	as := broadcastStrides(a.shape, shape)
	bs := broadcastStrides(b.shape, shape)

	idx := make([]int, len(shape))
	var ai, bi int
	for i := range out.data {
		out.data[i] = fn(a.data[ai], b.data[bi])

		// Index wie einen Zaehler hochzaehlen, Offsets mitfuehren
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ai += as[d]
			bi += bs[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= as[d] * shape[d]
			bi -= bs[d] * shape[d]
			idx[d] = 0
		}
	}

	return out
}

// broadcastShape berechnet das gemeinsame Shape zweier Operanden
func broadcastShape(a, b []int) ([]int, error) {
	n := max(len(a), len(b))
	shape := make([]int, n)
	for i := range n {
		da, db := 1, 1
		if k := i - (n - len(a)); k >= 0 {
			da = a[k]
		}
		if k := i - (n - len(b)); k >= 0 {
			db = b[k]
		}

		switch {
		case da == db, db == 1:
			shape[i] = da
		case da == 1:
			shape[i] = db
		default:
			return nil, fmt.Errorf("cpu: cannot broadcast %v with %v", a, b)
		}
	}
	return shape, nil
}

// broadcastStrides gibt die Strides von in relativ zu out zurueck, 0 fuer gebroadcastete Dimensionen
func broadcastStrides(in, out []int) []int {
	strides := make([]int, len(out))
	offset := len(out) - len(in)
	stride := 1
	for d := len(out) - 1; d >= 0; d-- {
		k := d - offset
		if k < 0 {
			continue
		}
		if in[k] != 1 {
			strides[d] = stride
		}
		stride *= in[k]
	}
	return strides
}
