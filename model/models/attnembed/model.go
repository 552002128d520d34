// Package attnembed - Attention-basierter Embedding-Adapter
//
// Der Adapter bildet eine Student-Feature-Map [B, Cs, H, W] in den
// Feature-Raum des Teachers [B, Ct, H', W'] ab:
// - Resampling auf die Teacher-Aufloesung (resample.go)
// - num_stages Stufen mit (verschobener) Window Attention (stage.go, attention.go)
// - 1x1-Projektion auf die Teacher-Kanaele, optional Batch-Norm
package attnembed

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/fs"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/nn"
	"github.com/7blacky7/attndistill/model"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Model ist der AttnEmbed-Adapter eines Student/Teacher-Paars
type Model struct {
	Stages     []*Stage      `gguf:"blk"`
	Projection *nn.Linear    `gguf:"proj"`
	OutputNorm *nn.BatchNorm `gguf:"out_norm"`

	*Options
}

// New erstellt einen leeren Adapter, die Tensoren befuellt model.New
func New(c fs.Config) (model.Model, error) {
	opts, err := newOptions(c)
	if err != nil {
		return nil, err
	}

	return &Model{
		Stages:  make([]*Stage, len(opts.stages)),
		Options: opts,
	}, nil
}

// Params beschreibt alle Parameter des Adapters relativ zum Prefix.
// Gewichte starten bei N(0, 0.02), Biases bei 0, Norm-Gewichte bei 1.
func (m *Model) Params() []model.ParamSpec {
	c, hidden, span := m.studentDim, m.hiddenDim, 2*m.windowSize-1

	norm := func(name string, dim int) []model.ParamSpec {
		return []model.ParamSpec{
			{Name: name + ".weight", Shape: []int{dim}, Init: model.InitOnes},
			{Name: name + ".bias", Shape: []int{dim}, Init: model.InitZeros},
		}
	}

	var specs []model.ParamSpec
	for i, so := range m.stages {
		blk := fmt.Sprintf("blk.%d.", i)

		specs = append(specs, norm(blk+"ln1", c)...)
		specs = append(specs,
			model.ParamSpec{Name: blk + "attn_q.weight", Shape: []int{c, c}},
			model.ParamSpec{Name: blk + "attn_k.weight", Shape: []int{c, c}},
			model.ParamSpec{Name: blk + "attn_v.weight", Shape: []int{c, c}},
			model.ParamSpec{Name: blk + "attn_out.weight", Shape: []int{c, c}},
			model.ParamSpec{Name: blk + "attn_out.bias", Shape: []int{c}, Init: model.InitZeros},
			model.ParamSpec{Name: blk + "attn_rel_pos", Shape: []int{span, span}},
		)

		if so.mode == config.AttentionCross {
			specs = append(specs, norm(blk+"ln_ctx", m.contextDim)...)
			specs = append(specs, model.ParamSpec{Name: blk + "ctx_proj.weight", Shape: []int{c, m.contextDim}})
		}

		specs = append(specs, norm(blk+"ln2", c)...)
		specs = append(specs,
			model.ParamSpec{Name: blk + "ffn_up.weight", Shape: []int{hidden, c}},
			model.ParamSpec{Name: blk + "ffn_up.bias", Shape: []int{hidden}, Init: model.InitZeros},
			model.ParamSpec{Name: blk + "ffn_down.weight", Shape: []int{c, hidden}},
			model.ParamSpec{Name: blk + "ffn_down.bias", Shape: []int{c}, Init: model.InitZeros},
		)
	}

	specs = append(specs, model.ParamSpec{Name: "proj.weight", Shape: []int{m.teacherDim, c}})
	if m.outputNorm == config.OutputNormBatch {
		specs = append(specs, norm("out_norm", m.teacherDim)...)
	}

	return specs
}

// Validate prueft nach dem Befuellen, dass alle Pflicht-Tensoren vorhanden sind
func (m *Model) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("attnembed: missing tensor %q", name)
	}

	for i, s := range m.Stages {
		blk := fmt.Sprintf("blk.%d.", i)
		switch {
		case s == nil:
			return missing(fmt.Sprintf("blk.%d", i))
		case s.Norm1 == nil || s.Norm1.Weight == nil:
			return missing(blk + "ln1.weight")
		case s.Norm2 == nil || s.Norm2.Weight == nil:
			return missing(blk + "ln2.weight")
		case s.Attention == nil || s.Attention.Query == nil || s.Attention.Query.Weight == nil:
			return missing(blk + "attn_q.weight")
		case s.Attention.Key == nil || s.Attention.Key.Weight == nil:
			return missing(blk + "attn_k.weight")
		case s.Attention.Value == nil || s.Attention.Value.Weight == nil:
			return missing(blk + "attn_v.weight")
		case s.Attention.Output == nil || s.Attention.Output.Weight == nil:
			return missing(blk + "attn_out.weight")
		case s.MLP == nil || s.MLP.Up == nil || s.MLP.Up.Weight == nil:
			return missing(blk + "ffn_up.weight")
		case s.MLP.Down == nil || s.MLP.Down.Weight == nil:
			return missing(blk + "ffn_down.weight")
		}

		if m.stages[i].mode == config.AttentionCross {
			if s.ContextNorm == nil || s.ContextNorm.Weight == nil {
				return missing(blk + "ln_ctx.weight")
			}
			if s.ContextProjection == nil || s.ContextProjection.Weight == nil {
				return missing(blk + "ctx_proj.weight")
			}
		}
	}

	if m.Projection == nil || m.Projection.Weight == nil {
		return missing("proj.weight")
	}

	if m.outputNorm == config.OutputNormBatch && (m.OutputNorm == nil || m.OutputNorm.Weight == nil) {
		return missing("out_norm.weight")
	}

	return nil
}

// StudentChannels gibt die erwartete Kanalzahl der Student-Map zurueck
func (m *Model) StudentChannels() int { return m.studentDim }

// TeacherChannels gibt die Kanalzahl der Ausgabe zurueck
func (m *Model) TeacherChannels() int { return m.teacherDim }

// NeedsContext meldet, ob mindestens eine Stufe Cross-Attention nutzt
func (m *Model) NeedsContext() bool {
	for _, so := range m.stages {
		if so.mode == config.AttentionCross {
			return true
		}
	}
	return false
}

// Forward bildet student [B, Cs, h, w] auf [B, Ct, height, width] ab.
// context [B, Cc, height, width] speist die Cross-Stufen und darf nil sein,
// dann rechnen diese Stufen Self-Attention.
func (m *Model) Forward(ctx ml.Context, student ml.Tensor, height, width int, context ml.Tensor) (ml.Tensor, error) {
	const op = "attnembed.forward"

	shape := student.Shape()
	if len(shape) != 4 {
		return nil, errtypes.ShapeMismatch(op, "student must be [B, C, H, W], got %v", shape)
	}
	if shape[1] != m.studentDim {
		return nil, errtypes.ShapeMismatch(op, "student has %d channels, want %d", shape[1], m.studentDim)
	}
	if height < 1 || width < 1 {
		return nil, errtypes.ShapeMismatch(op, "invalid target size %dx%d", height, width)
	}

	x, err := resample(ctx, student, height, width, m.resample)
	if err != nil {
		return nil, err
	}

	// kanal-letzt fuer LayerNorm und Linear ueber C
	x = x.Permute(ctx, 0, 2, 3, 1)

	if context != nil {
		cs := context.Shape()
		if len(cs) != 4 || cs[0] != shape[0] || cs[2] != height || cs[3] != width {
			return nil, errtypes.ShapeMismatch(op, "context %v does not match [%d, C, %d, %d]", cs, shape[0], height, width)
		}
		if cs[1] != m.contextDim {
			return nil, errtypes.ShapeMismatch(op, "context has %d channels, want %d", cs[1], m.contextDim)
		}
		context = context.Permute(ctx, 0, 2, 3, 1)
	} else if m.NeedsContext() {
		slog.Debug("no context for cross attention, falling back to self attention")
	}

	for i, stage := range m.Stages {
		x, err = stage.Forward(ctx, x, context, m.stages[i], m.Options)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}

	x = m.Projection.Forward(ctx, x).Permute(ctx, 0, 3, 1, 2)
	if m.outputNorm == config.OutputNormBatch {
		x = m.OutputNorm.Forward(ctx, x, m.eps)
	}

	return x, nil
}

func init() {
	model.Register(Architecture, New)
}
