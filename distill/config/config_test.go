package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/attndistill/types/errtypes"
)

const sample = `
window_size: 4
shift_mode: alternate
num_stages: 2
attention_mode: [self, cross]
mask_normalization: l2_minmax
distance_metric: smooth_l1
resample_policy: bilinear
seed: 7
pairs:
  - name: layer3
    student_layer: layer3
    teacher_layer: layer3
    student_channels: 4
    teacher_channels: 8
    factor: 0.5
  - name: layer4
    student_layer: layer4
    teacher_layer: layer4
    context_layer: layer3
    student_channels: 4
    teacher_channels: 8
    context_channels: 6
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 4, c.WindowSize)
	assert.Equal(t, AttentionModes{AttentionSelf, AttentionCross}, c.AttentionMode)
	assert.Equal(t, DistanceSmoothL1, c.DistanceMetric)
	assert.Equal(t, ResampleBilinear, c.ResamplePolicy)
	assert.Equal(t, uint64(7), c.Seed)

	// nicht gesetzte Werte behalten die Defaults
	assert.Equal(t, DefaultNumHeads, c.NumHeads)
	assert.Equal(t, OutputNormBatch, c.OutputNorm)
	assert.InDelta(t, DefaultEpsilon, c.Epsilon, 0)

	require.Len(t, c.Pairs, 2)
	assert.InDelta(t, 0.5, c.Pairs[0].Weight(), 0)
	assert.InDelta(t, 1.0, c.Pairs[1].Weight(), 0)
	assert.Equal(t, "layer3", c.Pairs[0].Context())
	assert.Equal(t, 8, c.Pairs[0].ContextDim())
	assert.Equal(t, "layer3", c.Pairs[1].Context())
	assert.Equal(t, 6, c.Pairs[1].ContextDim())

	assert.Equal(t, AttentionSelf, c.AttentionMode.Stage(0))
	assert.Equal(t, AttentionCross, c.AttentionMode.Stage(1))
	assert.Equal(t, 0, c.ShiftMode.Stage(c.WindowSize, 0))
	assert.Equal(t, c.WindowSize/2, c.ShiftMode.Stage(c.WindowSize, 1))
	assert.Equal(t, 0, ShiftNone.Stage(c.WindowSize, 1))
}

func TestParseScalarAttentionMode(t *testing.T) {
	c, err := Parse([]byte("num_stages: 3\nattention_mode: cross\n"))
	require.NoError(t, err)
	for i := range 3 {
		assert.Equal(t, AttentionCross, c.AttentionMode.Stage(i))
	}
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestInvalidConfiguration(t *testing.T) {
	cases := map[string]struct {
		yaml    string
		contain string
	}{
		"unknown attention mode": {"attention_mode: crosss\n", `did you mean "cross"`},
		"unknown mask":           {"mask_normalization: l2_minmux\n", `did you mean "l2_minmax"`},
		"unknown metric":         {"distance_metric: huber\n", "distance_metric"},
		"unknown resample":       {"resample_policy: neares\n", `did you mean "nearest"`},
		"unknown shift":          {"shift_mode: always\n", "shift_mode"},
		"wrong stage count":      {"num_stages: 3\nattention_mode: [self, cross]\n", "one per stage"},
		"zero window":            {"window_size: 0\n", "window_size"},
		"unknown key":            {"window_sise: 4\n", "window_sise"},
		"heads do not divide": {
			"num_heads: 3\npairs:\n  - {name: a, student_layer: s, teacher_layer: t, student_channels: 4, teacher_channels: 4}\n",
			"num_heads",
		},
		"duplicate pair": {
			"pairs:\n  - {name: a, student_layer: s, teacher_layer: t, student_channels: 4, teacher_channels: 4}\n  - {name: a, student_layer: s, teacher_layer: t, student_channels: 4, teacher_channels: 4}\n",
			"duplicate",
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, errtypes.ErrInvalidConfiguration)
			assert.ErrorContains(t, err, tt.contain)
		})
	}
}

func TestLoadAndMarshal(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	b, err := c.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "distill.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	m, err := ParseMaskNormalization(" L2_Softmax ")
	require.NoError(t, err)
	assert.Equal(t, MaskL2Softmax, m)

	d, err := ParseDistanceMetric("smooth_l1")
	require.NoError(t, err)
	assert.Equal(t, DistanceSmoothL1, d)

	_, err = ParseResamplePolicy("cubic")
	require.ErrorIs(t, err, errtypes.ErrInvalidConfiguration)
}

func TestSuggest(t *testing.T) {
	assert.Equal(t, "self", Suggest("slef", []string{"self", "cross"}))
	assert.Equal(t, "", Suggest("bilateral", []string{"self", "cross"}))
}
