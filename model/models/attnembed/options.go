package attnembed

import (
	"math"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/fs"
	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// ============================================================================
// Options - Hyperparameter des Adapters
// ============================================================================
//
// Dieses Modul enthaelt:
// - Options: Hyperparameter aus den Checkpoint-Metadaten
// - stageOptions: Fenster-Verschiebung und Attention-Modus je Stufe
// - newOptions: Liest und validiert Options aus fs.Config
// - KV: Baut die Metadaten eines Paars aus der Laufkonfiguration

// Architecture ist der Architekturname in Checkpoints
const Architecture = "attnembed"

// Options enthaelt die Hyperparameter eines Adapters
type Options struct {
	studentDim int
	teacherDim int
	contextDim int

	windowSize int
	numHeads   int
	headDim    int
	hiddenDim  int
	eps        float32

	stages     []stageOptions
	outputNorm config.OutputNorm
	resample   config.ResamplePolicy
}

type stageOptions struct {
	shift int
	mode  config.AttentionMode
}

// newOptions liest die Hyperparameter aus c
func newOptions(c fs.Config) (*Options, error) {
	const op = "attnembed.new"

	opts := &Options{
		studentDim: int(c.Uint("student_channels")),
		teacherDim: int(c.Uint("teacher_channels")),
		windowSize: int(c.Uint("window_size", config.DefaultWindowSize)),
		numHeads:   int(c.Uint("attention.head_count", config.DefaultNumHeads)),
		eps:        c.Float("attention.layer_norm_epsilon", config.DefaultLayerNormEps),
		outputNorm: config.OutputNorm(c.String("output_norm", string(config.OutputNormBatch))),
		resample:   config.ResamplePolicy(c.String("resample_policy", string(config.ResampleNearest))),
	}
	opts.contextDim = int(c.Uint("context_channels", uint32(opts.teacherDim)))

	switch {
	case opts.studentDim < 1:
		return nil, errtypes.InvalidConfiguration(op, "student_channels", "must be >= 1, got %d", opts.studentDim)
	case opts.teacherDim < 1:
		return nil, errtypes.InvalidConfiguration(op, "teacher_channels", "must be >= 1, got %d", opts.teacherDim)
	case opts.contextDim < 1:
		return nil, errtypes.InvalidConfiguration(op, "context_channels", "must be >= 1, got %d", opts.contextDim)
	case opts.windowSize < 1:
		return nil, errtypes.InvalidConfiguration(op, "window_size", "must be >= 1, got %d", opts.windowSize)
	case opts.numHeads < 1 || opts.studentDim%opts.numHeads != 0:
		return nil, errtypes.InvalidConfiguration(op, "num_heads", "%d heads do not divide %d channels", opts.numHeads, opts.studentDim)
	case opts.eps <= 0:
		return nil, errtypes.InvalidConfiguration(op, "layer_norm_eps", "must be > 0, got %v", opts.eps)
	}
	opts.headDim = opts.studentDim / opts.numHeads

	ratio := c.Float("mlp_ratio", config.DefaultMLPRatio)
	if ratio <= 0 {
		return nil, errtypes.InvalidConfiguration(op, "mlp_ratio", "must be > 0, got %v", ratio)
	}
	opts.hiddenDim = max(1, int(math.Round(float64(opts.studentDim)*float64(ratio))))

	shiftMode, err := config.ParseShiftMode(c.String("shift_mode", string(config.ShiftAlternate)))
	if err != nil {
		return nil, err
	}
	if _, err := config.ParseResamplePolicy(string(opts.resample)); err != nil {
		return nil, err
	}
	if opts.outputNorm != config.OutputNormNone && opts.outputNorm != config.OutputNormBatch {
		return nil, errtypes.InvalidConfiguration(op, "output_norm", "unknown value %q", opts.outputNorm)
	}

	numStages := int(c.Uint("block_count", config.DefaultNumStages))
	if numStages < 1 {
		return nil, errtypes.InvalidConfiguration(op, "num_stages", "must be >= 1, got %d", numStages)
	}

	modes := c.Strings("attention_mode", []string{string(config.AttentionSelf)})
	if len(modes) != 1 && len(modes) != numStages {
		return nil, errtypes.InvalidConfiguration(op, "attention_mode", "need 1 or %d values (one per stage), got %d", numStages, len(modes))
	}

	parsed := make(config.AttentionModes, len(modes))
	for i, s := range modes {
		if parsed[i], err = config.ParseAttentionMode(s); err != nil {
			return nil, err
		}
	}

	opts.stages = make([]stageOptions, numStages)
	for i := range opts.stages {
		opts.stages[i] = stageOptions{
			shift: shiftMode.Stage(opts.windowSize, i),
			mode:  parsed.Stage(i),
		}
	}

	return opts, nil
}

// KV baut die Checkpoint-Metadaten fuer den Adapter eines Paars
func KV(c *config.Config, p config.Pair) ggml.KV {
	return ggml.KV{
		"general.architecture": Architecture,
		"general.name":         p.Name,

		Architecture + ".student_channels":             uint32(p.StudentChannels),
		Architecture + ".teacher_channels":             uint32(p.TeacherChannels),
		Architecture + ".context_channels":             uint32(p.ContextDim()),
		Architecture + ".window_size":                  uint32(c.WindowSize),
		Architecture + ".block_count":                  uint32(c.NumStages),
		Architecture + ".attention.head_count":         uint32(c.NumHeads),
		Architecture + ".attention.layer_norm_epsilon": float32(c.LayerNormEps),
		Architecture + ".mlp_ratio":                    float32(c.MLPRatio),
		Architecture + ".shift_mode":                   string(c.ShiftMode),
		Architecture + ".attention_mode":               c.AttentionMode.Strings(),
		Architecture + ".output_norm":                  string(c.OutputNorm),
		Architecture + ".resample_policy":              string(c.ResamplePolicy),
	}
}
