package attnembed

import (
	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/nn"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// ============================================================================
// Stage - Pre-Norm Attention-Block mit MLP
// ============================================================================
//
// Dieses Modul enthaelt:
// - MLP: Zweischichtiges Feed-Forward mit GELU
// - Stage: LayerNorm -> Window Attention -> Residual -> LayerNorm -> MLP -> Residual
//
// Cross-Stufen normieren und projizieren den Kontext auf die Student-Breite,
// danach laufen Key und Value ueber dieselben Gewichte wie bei Self-Attention.

// MLP ist das Feed-Forward-Netz einer Stufe
type MLP struct {
	Up   *nn.Linear `gguf:"ffn_up"`
	Down *nn.Linear `gguf:"ffn_down"`
}

// Forward berechnet das MLP
func (mlp *MLP) Forward(ctx ml.Context, hiddenStates ml.Tensor) ml.Tensor {
	return mlp.Down.Forward(ctx, mlp.Up.Forward(ctx, hiddenStates).GELU(ctx))
}

// Stage ist eine Attention-Stufe des Adapters
type Stage struct {
	Norm1     *nn.LayerNorm `gguf:"ln1"`
	Attention *WindowAttention
	Norm2     *nn.LayerNorm `gguf:"ln2"`
	MLP       *MLP

	// nur bei Cross-Stufen vorhanden
	ContextNorm       *nn.LayerNorm `gguf:"ln_ctx"`
	ContextProjection *nn.Linear    `gguf:"ctx_proj"`
}

// Forward berechnet die Stufe fuer x [B, H, W, C].
// context [B, H, W, Cc] wird nur bei Cross-Stufen verwendet und darf nil sein.
func (s *Stage) Forward(ctx ml.Context, x, context ml.Tensor, so stageOptions, opts *Options) (ml.Tensor, error) {
	residual := x

	hiddenStates := s.Norm1.Forward(ctx, x, opts.eps)
	windows, err := partition(ctx, hiddenStates, opts.windowSize, so.shift)
	if err != nil {
		return nil, err
	}

	kv := windows.Tokens
	if so.mode == config.AttentionCross && context != nil {
		if context.Dim(1) != windows.Height || context.Dim(2) != windows.Width {
			return nil, errtypes.ShapeMismatch("attnembed.stage", "context %dx%d does not match feature map %dx%d",
				context.Dim(1), context.Dim(2), windows.Height, windows.Width)
		}

		c := s.ContextNorm.Forward(ctx, context, opts.eps)
		c = s.ContextProjection.Forward(ctx, c)

		contextWindows, err := partition(ctx, c, opts.windowSize, so.shift)
		if err != nil {
			return nil, err
		}
		kv = contextWindows.Tokens
	}

	var mask ml.Tensor
	if so.shift > 0 {
		mask, err = ShiftMask(ctx, windows.Batch, windows.Height, windows.Width, windows.Size, windows.Shift)
		if err != nil {
			return nil, err
		}
	}

	hiddenStates, err = s.Attention.Forward(ctx, windows.Tokens, kv, mask, opts)
	if err != nil {
		return nil, err
	}

	x = reassemble(ctx, windows, hiddenStates).Add(ctx, residual)

	residual = x
	hiddenStates = s.MLP.Forward(ctx, s.Norm2.Forward(ctx, x, opts.eps))
	return hiddenStates.Add(ctx, residual), nil
}
