// tensor_shape.go - Shape-Operationen
// Enthaelt: Permute (ueber pdevine/tensor), Roll, Interpolate

package cpu

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/pdevine/tensor"

	"github.com/7blacky7/attndistill/ml"
)

// Permute ordnet die Achsen um: Ergebnis-Achse i ist Eingabe-Achse order[i]
func (t *Tensor) Permute(ctx ml.Context, order ...int) ml.Tensor {
	if len(order) != len(t.shape) {
		panic(fmt.Errorf("cpu: permute %v needs %d axes, got %v", t.shape, len(t.shape), order))
	}

	shape := make([]int, len(order))
	for i, o := range order {
		shape[i] = t.shape[o]
	}

	identity := true
	for i, o := range order {
		if i != o {
			identity = false
			break
		}
	}
	if identity || len(t.data) <= 1 {
		return &Tensor{shape: shape, data: slices.Clone(t.data)}
	}

	var tt tensor.Tensor = tensor.New(tensor.WithShape(t.Shape()...), tensor.WithBacking(slices.Clone(t.data)))
	tt, err := tensor.Transpose(tt, order...)
	if err != nil {
		panic(fmt.Errorf("cpu: permute %v by %v: %w", t.shape, order, err))
	}

	tt = tensor.Materialize(tt)
	data, ok := tt.(*tensor.Dense).Data().([]float32)
	if !ok || len(data) != len(t.data) {
		panic(fmt.Errorf("cpu: permute %v by %v produced unexpected data", t.shape, order))
	}

	return &Tensor{shape: shape, data: data}
}

// Roll verschiebt zyklisch entlang dim: out[i] = in[(i - shift) mod n]
func (t *Tensor) Roll(ctx ml.Context, dim, shift int) ml.Tensor {
	if dim < 0 || dim >= len(t.shape) {
		panic(fmt.Errorf("cpu: roll dim %d out of range for %v", dim, t.shape))
	}

	n := t.shape[dim]
	shift = ((shift % n) + n) % n
	if shift == 0 {
		return t.Duplicate(ctx)
	}

	inner := numel(t.shape[dim+1:])
	outer := numel(t.shape[:dim])
	block := n * inner

	out := newTensor(t.shape...)
	for o := range outer {
		src := t.data[o*block : (o+1)*block]
		dst := out.data[o*block : (o+1)*block]
		// die letzten shift Zeilen nach vorne, der Rest dahinter
		copy(dst[:shift*inner], src[(n-shift)*inner:])
		copy(dst[shift*inner:], src[:(n-shift)*inner])
	}
	return out
}

// Interpolate skaliert [B, C, H, W] auf dims.
// Bilinear entspricht align_corners=False.
func (t *Tensor) Interpolate(ctx ml.Context, dims [4]int, mode ml.SamplingMode) ml.Tensor {
	if len(t.shape) != 4 || dims[0] != t.shape[0] || dims[1] != t.shape[1] {
		panic(fmt.Errorf("cpu: cannot interpolate %v to %v", t.shape, dims))
	}

	inH, inW := t.shape[2], t.shape[3]
	outH, outW := dims[2], dims[3]
	out := newTensor(dims[:]...)
	planes := dims[0] * dims[1]

	switch mode {
	case ml.SamplingModeNearest:
		parallel(ctx, planes, func(lo, hi int) {
			for p := lo; p < hi; p++ {
				src := t.data[p*inH*inW : (p+1)*inH*inW]
				dst := out.data[p*outH*outW : (p+1)*outH*outW]
				for y := range outH {
					sy := min(y*inH/outH, inH-1)
					for x := range outW {
						sx := min(x*inW/outW, inW-1)
						dst[y*outW+x] = src[sy*inW+sx]
					}
				}
			}
		})
	case ml.SamplingModeBilinear:
		ys := bilinearTaps(inH, outH)
		xs := bilinearTaps(inW, outW)
		parallel(ctx, planes, func(lo, hi int) {
			for p := lo; p < hi; p++ {
				src := t.data[p*inH*inW : (p+1)*inH*inW]
				dst := out.data[p*outH*outW : (p+1)*outH*outW]
				for y, ty := range ys {
					for x, tx := range xs {
						top := src[ty.i0*inW+tx.i0]*(1-tx.w) + src[ty.i0*inW+tx.i1]*tx.w
						bottom := src[ty.i1*inW+tx.i0]*(1-tx.w) + src[ty.i1*inW+tx.i1]*tx.w
						dst[y*outW+x] = top*(1-ty.w) + bottom*ty.w
					}
				}
			}
		})
	default:
		panic(fmt.Errorf("cpu: unsupported sampling mode %d", mode))
	}

	return out
}

// tap beschreibt die zwei Quellindizes und das Gewicht des zweiten
type tap struct {
	i0, i1 int
	w      float32
}

func bilinearTaps(in, out int) []tap {
	scale := float32(in) / float32(out)
	taps := make([]tap, out)
	for i := range taps {
		src := max((float32(i)+0.5)*scale-0.5, 0)
		i0 := min(int(math32.Floor(src)), in-1)
		i1 := min(i0+1, in-1)
		taps[i] = tap{i0: i0, i1: i1, w: src - float32(i0)}
	}
	return taps
}
