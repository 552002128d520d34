package attnembed

import (
	"math"
	"slices"

	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// ============================================================================
// Fenster-Partitionierung
// ============================================================================
//
// Dieses Modul enthaelt:
// - Windows: Fenster-Tokens plus die Geometrie fuer den Rueckweg
// - Partition/Reassemble: [B, C, H, W] <-> [B*nW, S*S, C]
// - ShiftMask: Additive Maske fuer verschobene Fenster
//
// Intern arbeiten die Stufen kanal-letzt ([B, H, W, C]), Partition und
// Reassemble sind die kanal-erst Varianten fuer Aufrufer ausserhalb.

// Windows haelt die Tokens aller Fenster und die Geometrie der Feature-Map
type Windows struct {
	// Tokens hat Shape [B*nH*nW, Size*Size, C], Fenster in Zeilen-Reihenfolge
	Tokens ml.Tensor

	Batch, Height, Width, Channels int
	Size, Shift                    int
}

// Count gibt die Anzahl der Fenster je Sample zurueck
func (w *Windows) Count() int {
	return (w.Height / w.Size) * (w.Width / w.Size)
}

// Partition zerlegt x [B, C, H, W] in nicht ueberlappende Fenster der
// Kantenlaenge size. Bei shift > 0 wird vorher um -shift in H und W gerollt.
func Partition(ctx ml.Context, x ml.Tensor, size, shift int) (*Windows, error) {
	if len(x.Shape()) != 4 {
		return nil, errtypes.ShapeMismatch("attnembed.partition", "want [B, C, H, W], got %v", x.Shape())
	}

	return partition(ctx, x.Permute(ctx, 0, 2, 3, 1), size, shift)
}

// Reassemble ist die Umkehrung von Partition und liefert [B, C, H, W]
func Reassemble(ctx ml.Context, w *Windows) (ml.Tensor, error) {
	if err := checkWindow("attnembed.reassemble", w.Height, w.Width, w.Size, w.Shift); err != nil {
		return nil, err
	}

	want := []int{w.Batch * w.Count(), w.Size * w.Size, w.Channels}
	if !slices.Equal(w.Tokens.Shape(), want) {
		return nil, errtypes.ShapeMismatch("attnembed.reassemble", "tokens %v do not match geometry %v", w.Tokens.Shape(), want)
	}

	return reassemble(ctx, w, w.Tokens).Permute(ctx, 0, 3, 1, 2), nil
}

func checkWindow(op string, height, width, size, shift int) error {
	if size < 1 {
		return errtypes.InvalidConfiguration(op, "window_size", "must be >= 1, got %d", size)
	}
	if shift != 0 && shift != size/2 {
		return errtypes.InvalidConfiguration(op, "shift", "must be 0 or %d, got %d", size/2, shift)
	}
	if height%size != 0 || width%size != 0 {
		return errtypes.ShapeMismatch(op, "spatial size %dx%d is not divisible by window size %d", height, width, size)
	}

	return nil
}

// partition arbeitet auf x [B, H, W, C]
func partition(ctx ml.Context, x ml.Tensor, size, shift int) (*Windows, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, errtypes.ShapeMismatch("attnembed.partition", "want [B, H, W, C], got %v", shape)
	}

	b, h, w, c := shape[0], shape[1], shape[2], shape[3]
	if err := checkWindow("attnembed.partition", h, w, size, shift); err != nil {
		return nil, err
	}

	if shift > 0 {
		x = x.Roll(ctx, 1, -shift).Roll(ctx, 2, -shift)
	}

	nh, nw := h/size, w/size
	x = x.Reshape(ctx, b, nh, size, nw, size, c)
	x = x.Permute(ctx, 0, 1, 3, 2, 4, 5)
	x = x.Reshape(ctx, b*nh*nw, size*size, c)

	return &Windows{
		Tokens:   x,
		Batch:    b,
		Height:   h,
		Width:    w,
		Channels: c,
		Size:     size,
		Shift:    shift,
	}, nil
}

// reassemble setzt tokens [B*nW, S*S, C'] mit der Geometrie von w zu
// [B, H, W, C'] zusammen. C' darf von w.Channels abweichen.
func reassemble(ctx ml.Context, w *Windows, tokens ml.Tensor) ml.Tensor {
	c := tokens.Dim(2)
	nh, nw := w.Height/w.Size, w.Width/w.Size

	x := tokens.Reshape(ctx, w.Batch, nh, nw, w.Size, w.Size, c)
	x = x.Permute(ctx, 0, 1, 3, 2, 4, 5)
	x = x.Reshape(ctx, w.Batch, w.Height, w.Width, c)

	if w.Shift > 0 {
		x = x.Roll(ctx, 1, w.Shift).Roll(ctx, 2, w.Shift)
	}

	return x
}

// ShiftMask baut die additive Maske [batch*nW, 1, N, N] fuer verschobene
// Fenster. Tokens, die erst durch das Rollen in ein Fenster geraten sind,
// sehen sich gegenseitig nicht (-inf), alle anderen Paare erhalten 0.
func ShiftMask(ctx ml.Context, batch, height, width, size, shift int) (ml.Tensor, error) {
	if err := checkWindow("attnembed.shift_mask", height, width, size, shift); err != nil {
		return nil, err
	}

	// Regionen wie nach dem Rollen: [0, L-S), [L-S, L-shift), [L-shift, L)
	region := func(i, length int) int {
		switch {
		case shift == 0 || i < length-size:
			return 0
		case i < length-shift:
			return 1
		default:
			return 2
		}
	}

	nh, nw := height/size, width/size
	n := size * size
	mask := make([]float32, batch*nh*nw*n*n)
	labels := make([]int, n)
	negInf := float32(math.Inf(-1))

	for wy := range nh {
		for wx := range nw {
			for i := range n {
				y, x := wy*size+i/size, wx*size+i%size
				labels[i] = region(y, height)*3 + region(x, width)
			}

			base := (wy*nw + wx) * n * n
			for i := range n {
				for j := range n {
					if labels[i] != labels[j] {
						mask[base+i*n+j] = negInf
					}
				}
			}
		}
	}

	// gleiche Maske fuer jedes Sample
	per := nh * nw * n * n
	for i := 1; i < batch; i++ {
		copy(mask[i*per:(i+1)*per], mask[:per])
	}

	return ctx.FromFloats(mask, batch*nh*nw, 1, n, n), nil
}
