// tensor_nn.go - Neuronale-Netz-Kernel auf der letzten Dimension
// Enthaelt: Softmax, LayerNorm, SumRows, Mean, Variance, GELU

package cpu

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"

	"github.com/7blacky7/attndistill/ml"
)

// rows zerlegt t in Zeilen der letzten Dimension
func (t *Tensor) rows() (n, width int) {
	width = t.shape[len(t.shape)-1]
	return len(t.data) / width, width
}

// reduced gibt das Shape mit letzter Dimension 1 zurueck
func (t *Tensor) reduced() []int {
	shape := slices.Clone(t.shape)
	shape[len(shape)-1] = 1
	return shape
}

// Softmax berechnet eine numerisch stabile Softmax je Zeile.
// -Inf-Eintraege erhalten 0; eine Zeile nur aus -Inf ergibt Nullen.
func (t *Tensor) Softmax(ctx ml.Context) ml.Tensor {
	n, width := t.rows()
	out := newTensor(t.shape...)
	parallel(ctx, n, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			in := t.data[r*width : (r+1)*width]
			dst := out.data[r*width : (r+1)*width]

			m := math32.Inf(-1)
			for _, v := range in {
				m = max(m, v)
			}
			if math32.IsInf(m, -1) {
				continue
			}

			var sum float32
			for i, v := range in {
				e := math32.Exp(v - m)
				dst[i] = e
				sum += e
			}
			for i := range dst {
				dst[i] /= sum
			}
		}
	})
	return out
}

// LayerNorm normalisiert je Zeile mit Mittelwert und biased Varianz.
// weight und bias duerfen nil sein.
func (t *Tensor) LayerNorm(ctx ml.Context, weight, bias ml.Tensor, eps float32) ml.Tensor {
	n, width := t.rows()

	var w, b []float32
	if weight != nil {
		w = cast(weight).data
		if len(w) != width {
			panic(fmt.Errorf("cpu: layer norm weight %v does not match %v", weight.Shape(), t.shape))
		}
	}
	if bias != nil {
		b = cast(bias).data
		if len(b) != width {
			panic(fmt.Errorf("cpu: layer norm bias %v does not match %v", bias.Shape(), t.shape))
		}
	}

	out := newTensor(t.shape...)
	parallel(ctx, n, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			in := t.data[r*width : (r+1)*width]
			dst := out.data[r*width : (r+1)*width]

			mean, variance := moments(in)
			inv := 1 / math32.Sqrt(variance+eps)
			for i, v := range in {
				y := (v - mean) * inv
				if w != nil {
					y *= w[i]
				}
				if b != nil {
					y += b[i]
				}
				dst[i] = y
			}
		}
	})
	return out
}

// moments berechnet Mittelwert und biased Varianz in float64
func moments(in []float32) (mean, variance float32) {
	var sum float64
	for _, v := range in {
		sum += float64(v)
	}
	m := sum / float64(len(in))

	var sq float64
	for _, v := range in {
		d := float64(v) - m
		sq += d * d
	}
	return float32(m), float32(sq / float64(len(in)))
}

// SumRows summiert je Zeile
func (t *Tensor) SumRows(ctx ml.Context) ml.Tensor {
	return t.reduce(func(in []float32) float32 {
		var sum float64
		for _, v := range in {
			sum += float64(v)
		}
		return float32(sum)
	})
}

// Mean mittelt je Zeile
func (t *Tensor) Mean(ctx ml.Context) ml.Tensor {
	return t.reduce(func(in []float32) float32 {
		m, _ := moments(in)
		return m
	})
}

// Variance berechnet die biased Varianz je Zeile
func (t *Tensor) Variance(ctx ml.Context) ml.Tensor {
	return t.reduce(func(in []float32) float32 {
		_, v := moments(in)
		return v
	})
}

func (t *Tensor) reduce(fn func([]float32) float32) *Tensor {
	n, width := t.rows()
	out := newTensor(t.reduced()...)
	for r := range n {
		out.data[r] = fn(t.data[r*width : (r+1)*width])
	}
	return out
}

// GELU wendet die tanh-Naeherung der GELU-Aktivierung an
func (t *Tensor) GELU(ctx ml.Context) ml.Tensor {
	const c = 0.7978845608028654 // sqrt(2/pi)
	return unary(t, func(x float32) float32 {
		return 0.5 * x * (1 + math32.Tanh(c*(x+0.044715*x*x*x)))
	})
}
