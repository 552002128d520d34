package attnembed

import (
	"math"

	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/nn"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// ============================================================================
// Window Attention - Multi-Head Attention innerhalb eines Fensters
// ============================================================================
//
// Dieses Modul enthaelt:
// - WindowAttention: Q/K/V-Projektionen, relativer Positions-Bias, Ausgabe
// - Weights: Attention-Gewichte [B*nW, heads, N, N] zur Inspektion
// - relativeBias: Expandiert die Bias-Tabelle auf [N, N]

// WindowAttention berechnet Self- oder Cross-Attention je Fenster.
// Query, Key und Value haben keinen Bias, Output schon.
type WindowAttention struct {
	Query  *nn.Linear `gguf:"attn_q"`
	Key    *nn.Linear `gguf:"attn_k"`
	Value  *nn.Linear `gguf:"attn_v"`
	Output *nn.Linear `gguf:"attn_out"`

	// RelativeBias ist die Tabelle [2S-1, 2S-1], von allen Heads geteilt
	RelativeBias ml.Tensor `gguf:"attn_rel_pos"`
}

// Forward berechnet die Attention fuer query [Bw, N, C] gegen kv [Bw, N, C].
// mask ist optional und wird auf [Bw, heads, N, N] gebroadcastet.
func (sa *WindowAttention) Forward(ctx ml.Context, query, kv, mask ml.Tensor, opts *Options) (ml.Tensor, error) {
	weights, err := sa.Weights(ctx, query, kv, mask, opts)
	if err != nil {
		return nil, err
	}

	batch, tokens := query.Dim(0), query.Dim(1)

	// [Bw, N, heads, hd] -> [Bw, heads, hd, N]
	value := sa.Value.Forward(ctx, kv)
	value = value.Reshape(ctx, batch, tokens, opts.numHeads, opts.headDim).Permute(ctx, 0, 2, 3, 1)

	attention := value.Mulmat(ctx, weights)
	attention = attention.Permute(ctx, 0, 2, 1, 3).Reshape(ctx, batch, tokens, opts.numHeads*opts.headDim)

	return sa.Output.Forward(ctx, attention), nil
}

// Weights liefert die normierten Attention-Gewichte [Bw, heads, N, N].
// Jede Zeile summiert zu 1.
func (sa *WindowAttention) Weights(ctx ml.Context, query, kv, mask ml.Tensor, opts *Options) (ml.Tensor, error) {
	const op = "attnembed.attention"

	qs, ks := query.Shape(), kv.Shape()
	if len(qs) != 3 || len(ks) != 3 {
		return nil, errtypes.ShapeMismatch(op, "want [B*nW, N, C] tokens, got %v and %v", qs, ks)
	}
	if qs[0] != ks[0] || qs[1] != ks[1] {
		return nil, errtypes.ShapeMismatch(op, "query windows %v do not match key/value windows %v", qs[:2], ks[:2])
	}
	if want := sa.Query.Weight.Dim(1); qs[2] != want {
		return nil, errtypes.ShapeMismatch(op, "query has %d channels, want %d", qs[2], want)
	}
	if want := sa.Key.Weight.Dim(1); ks[2] != want {
		return nil, errtypes.ShapeMismatch(op, "key/value has %d channels, want %d", ks[2], want)
	}

	batch, tokens := qs[0], qs[1]
	size := int(math.Round(math.Sqrt(float64(tokens))))
	if size*size != tokens {
		return nil, errtypes.ShapeMismatch(op, "%d tokens do not form a square window", tokens)
	}

	q := sa.Query.Forward(ctx, query)
	q = q.Reshape(ctx, batch, tokens, opts.numHeads, opts.headDim).Permute(ctx, 0, 2, 1, 3)

	k := sa.Key.Forward(ctx, kv)
	k = k.Reshape(ctx, batch, tokens, opts.numHeads, opts.headDim).Permute(ctx, 0, 2, 1, 3)

	scores := k.Mulmat(ctx, q)
	scores = scores.Scale(ctx, 1/math.Sqrt(float64(opts.headDim)))

	if sa.RelativeBias != nil {
		bias, err := relativeBias(ctx, sa.RelativeBias, size)
		if err != nil {
			return nil, err
		}
		scores = scores.Add(ctx, bias)
	}

	if mask != nil {
		scores = scores.Add(ctx, mask)
	}

	return scores.Softmax(ctx), nil
}

// relativeBias expandiert die Tabelle [2S-1, 2S-1] auf [1, 1, N, N].
// Fuer Token i=(yi, xi) und j=(yj, xj) gilt bias[i][j] = table[yj-yi+S-1][xj-xi+S-1].
func relativeBias(ctx ml.Context, table ml.Tensor, size int) (ml.Tensor, error) {
	span := 2*size - 1
	if shape := table.Shape(); len(shape) != 2 || shape[0] != span || shape[1] != span {
		return nil, errtypes.ShapeMismatch("attnembed.relative_bias", "table %v does not fit window size %d", shape, size)
	}

	values := table.Floats()
	n := size * size
	bias := make([]float32, n*n)
	for i := range n {
		yi, xi := i/size, i%size
		for j := range n {
			yj, xj := j/size, j%size
			bias[i*n+j] = values[(yj-yi+size-1)*span+(xj-xi+size-1)]
		}
	}

	return ctx.FromFloats(bias, 1, 1, n, n), nil
}
