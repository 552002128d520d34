// Package nn - Bausteine fuer Modell-Layer
//
// Dieses Modul enthaelt:
// - Linear: Affine Projektion ueber die letzte Dimension
// - LayerNorm: Normalisierung ueber die letzte Dimension
// - BatchNorm: Normalisierung je Kanal mit Batch-Statistiken
package nn

import "github.com/7blacky7/attndistill/ml"

// Linear berechnet x @ Weightᵀ + Bias, Weight hat Shape [out, in]
type Linear struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`
}

func (m *Linear) Forward(ctx ml.Context, t ml.Tensor) ml.Tensor {
	t = m.Weight.Mulmat(ctx, t)
	if m.Bias != nil {
		t = t.Add(ctx, m.Bias)
	}

	return t
}
