// Package distill - Masked Feature-Map Distillation
//
// Dieses Paket verbindet die Bausteine eines Distillationsschritts:
// - Mask: Wichtigkeitsmaske aus der Teacher-Feature-Map (mask.go)
// - Criterion: Maskierter Feature-Map-Loss (loss.go)
// - Bridge: Aktivierungen aus Student/Teacher-Hooks (hooks.go)
// - Distiller: Adapter -> Maske -> Loss je Paar (pipeline.go)
package distill

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Mask ist die Wichtigkeitsmaske eines Batches
type Mask struct {
	// Values hat Shape [B, H, W]
	Values ml.Tensor

	// Degenerate enthaelt die Samples, die auf eine uniforme Maske zurueckgefallen sind
	Degenerate []int
}

// Err gibt ErrDegenerateMask zurueck, wenn mindestens ein Sample zurueckgefallen ist.
// Der Fallback ist bereits angewendet, der Fehler dient nur der Auswertung.
func (m *Mask) Err() error {
	if len(m.Degenerate) == 0 {
		return nil
	}
	return &errtypes.Error{
		Kind: errtypes.ErrDegenerateMask,
		Op:   "distill.mask",
		Err:  fmt.Errorf("samples %v use a uniform mask", m.Degenerate),
	}
}

// NewMask berechnet die Maske aus teacher [B, C, H, W]: L2-Norm ueber die
// Kanaele, danach Normalisierung je Sample nach policy.
// Ein komplett leeres Sample (bei min-max auch ein konstantes) faellt auf
// eine uniforme Maske zurueck, NaN verlaesst die Funktion nie.
func NewMask(ctx ml.Context, teacher ml.Tensor, policy config.MaskNormalization, temperature float64) (*Mask, error) {
	const op = "distill.mask"

	shape := teacher.Shape()
	if len(shape) != 4 {
		return nil, errtypes.ShapeMismatch(op, "teacher must be [B, C, H, W], got %v", shape)
	}
	if policy == config.MaskL2Softmax && !(temperature > 0) {
		return nil, errtypes.InvalidConfiguration(op, "mask_temperature", "must be > 0, got %v", temperature)
	}

	b, h, w := shape[0], shape[2], shape[3]

	// [B, H, W, C] -> Summe der Quadrate -> [B, H, W]
	norms := teacher.Permute(ctx, 0, 2, 3, 1).Sqr(ctx).SumRows(ctx).Sqrt(ctx).Floats()

	n := h * w
	values := make([]float32, b*n)
	mask := &Mask{}
	for i := range b {
		sample := norms[i*n : (i+1)*n]
		out := values[i*n : (i+1)*n]

		var ok bool
		switch policy {
		case config.MaskL2Softmax:
			ok = softmaxMask(sample, out, temperature)
		case config.MaskL2MinMax:
			ok = minMaxMask(sample, out)
		case config.MaskNone:
			ok = rawMask(sample, out)
		default:
			return nil, errtypes.InvalidConfiguration(op, "mask_normalization", "unknown value %q", policy)
		}

		if !ok {
			fill := float32(1)
			if policy == config.MaskL2Softmax {
				fill = 1 / float32(n)
			}
			for j := range out {
				out[j] = fill
			}

			mask.Degenerate = append(mask.Degenerate, i)
			slog.Debug("degenerate mask, using uniform fallback", "sample", i, "normalization", string(policy))
		}
	}

	mask.Values = ctx.FromFloats(values, b, h, w)
	return mask, nil
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// softmaxMask verteilt die Masse per Softmax auf alle Positionen ungleich null.
// Nullpositionen bleiben exakt 0.
func softmaxMask(norms, out []float32, temperature float64) bool {
	peak := math.Inf(-1)
	for _, v := range norms {
		if !finite(v) {
			return false
		}
		if v > 0 {
			peak = max(peak, float64(v)/temperature)
		}
	}
	if math.IsInf(peak, -1) {
		return false
	}

	var sum float64
	for _, v := range norms {
		if v > 0 {
			sum += math.Exp(float64(v)/temperature - peak)
		}
	}

	for j, v := range norms {
		if v > 0 {
			out[j] = float32(math.Exp(float64(v)/temperature-peak) / sum)
		} else {
			out[j] = 0
		}
	}

	return true
}

// minMaxMask skaliert linear auf [0, 1]
func minMaxMask(norms, out []float32) bool {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range norms {
		if !finite(v) {
			return false
		}
		lo = min(lo, float64(v))
		hi = max(hi, float64(v))
	}
	if !(hi > lo) {
		return false
	}

	for j, v := range norms {
		out[j] = float32(min(1, max(0, (float64(v)-lo)/(hi-lo))))
	}

	return true
}

// rawMask uebernimmt die Betraege unveraendert
func rawMask(norms, out []float32) bool {
	var nonzero bool
	for _, v := range norms {
		if !finite(v) {
			return false
		}
		nonzero = nonzero || v > 0
	}
	if !nonzero {
		return false
	}

	copy(out, norms)
	return true
}
