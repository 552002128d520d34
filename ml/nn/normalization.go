package nn

import (
	"fmt"

	"github.com/7blacky7/attndistill/ml"
)

type LayerNorm struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`
}

func (m *LayerNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	return t.LayerNorm(ctx, m.Weight, m.Bias, eps)
}

// BatchNorm normalisiert [B, C, H, W] je Kanal mit den Statistiken des
// aktuellen Batches (biased Varianz) und wendet Weight/Bias [C] an.
type BatchNorm struct {
	Weight ml.Tensor `gguf:"weight"`
	Bias   ml.Tensor `gguf:"bias"`
}

func (m *BatchNorm) Forward(ctx ml.Context, t ml.Tensor, eps float32) ml.Tensor {
	shape := t.Shape()
	if len(shape) != 4 {
		panic(fmt.Errorf("nn: batch norm expects [B, C, H, W], got %v", shape))
	}
	b, c, h, w := shape[0], shape[1], shape[2], shape[3]

	x := t.Permute(ctx, 1, 0, 2, 3).Reshape(ctx, c, b*h*w)
	mean := x.Mean(ctx)
	std := x.Variance(ctx).Add(ctx, ctx.FromFloats([]float32{eps}, 1)).Sqrt(ctx)
	x = x.Sub(ctx, mean).Div(ctx, std)

	if m.Weight != nil {
		x = x.Mul(ctx, m.Weight.Reshape(ctx, c, 1))
	}
	if m.Bias != nil {
		x = x.Add(ctx, m.Bias.Reshape(ctx, c, 1))
	}

	return x.Reshape(ctx, c, b, h, w).Permute(ctx, 1, 0, 2, 3)
}
