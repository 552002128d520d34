// loss.go - Maskierter Feature-Map-Loss
// Enthaelt: Criterion, Loss(), distance()

package distill

import (
	"math"
	"slices"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Criterion beschreibt den Loss eines Paars, ohne eigenen Zustand
type Criterion struct {
	Metric  config.DistanceMetric
	Beta    float64
	Epsilon float64
}

// NewCriterion uebernimmt Metrik, Beta und Epsilon aus c
func NewCriterion(c *config.Config) Criterion {
	return Criterion{Metric: c.DistanceMetric, Beta: c.SmoothL1Beta, Epsilon: c.Epsilon}
}

// Loss berechnet sum(mask * d) / (sum(mask) + epsilon).
// d ist die Distanz je Position, gemittelt ueber die Kanaele.
// student und teacher [B, C, H, W] muessen exakt gleich sein, mask [B, H, W]
// passend dazu, es wird nie gebroadcastet. Negative oder nicht endliche
// Maskenwerte sind ein Fehler.
func (c Criterion) Loss(student, teacher, mask ml.Tensor) (float64, error) {
	const op = "distill.loss"

	ss, ts := student.Shape(), teacher.Shape()
	if len(ss) != 4 || !slices.Equal(ss, ts) {
		return 0, errtypes.ShapeMismatch(op, "student %v and teacher %v must both be the same [B, C, H, W]", ss, ts)
	}
	if ms := mask.Shape(); !slices.Equal(ms, []int{ss[0], ss[2], ss[3]}) {
		return 0, errtypes.ShapeMismatch(op, "mask %v does not match [%d, %d, %d]", ms, ss[0], ss[2], ss[3])
	}

	switch c.Metric {
	case config.DistanceMSE:
	case config.DistanceSmoothL1:
		if c.Beta < 0 {
			return 0, errtypes.InvalidConfiguration(op, "smooth_l1_beta", "must be >= 0, got %v", c.Beta)
		}
	default:
		return 0, errtypes.InvalidConfiguration(op, "distance_metric", "unknown value %q", c.Metric)
	}
	if c.Epsilon < 0 {
		return 0, errtypes.InvalidConfiguration(op, "epsilon", "must be >= 0, got %v", c.Epsilon)
	}

	b, ch, hw := ss[0], ss[1], ss[2]*ss[3]
	sv, tv, mv := student.Floats(), teacher.Floats(), mask.Floats()

	// Masken sind Gewichte, der Loss bleibt damit >= 0
	for i, m := range mv {
		if !finite(m) || m < 0 {
			return 0, errtypes.InvalidConfiguration(op, "mask", "value %v at sample %d, position %d must be finite and >= 0", m, i/hw, i%hw)
		}
	}

	// feste Reihenfolge und float64, damit gleiche Eingaben gleiche Bits ergeben
	var weighted, total float64
	for i := range b {
		for p := range hw {
			var d float64
			for k := range ch {
				j := (i*ch+k)*hw + p
				d += c.distance(float64(sv[j]) - float64(tv[j]))
			}
			d /= float64(ch)

			m := float64(mv[i*hw+p])
			weighted += m * d
			total += m
		}
	}

	if total+c.Epsilon == 0 {
		return 0, nil
	}
	return weighted / (total + c.Epsilon), nil
}

func (c Criterion) distance(diff float64) float64 {
	switch c.Metric {
	case config.DistanceSmoothL1:
		abs := math.Abs(diff)
		if abs < c.Beta {
			return 0.5 * diff * diff / c.Beta
		}
		return abs - 0.5*c.Beta
	default:
		return diff * diff
	}
}
