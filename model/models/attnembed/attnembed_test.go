package attnembed

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/backend/cpu"
	"github.com/7blacky7/attndistill/model"
	"github.com/7blacky7/attndistill/types/errtypes"
)

func setup(t *testing.T) ml.Context {
	t.Helper()
	b, err := cpu.New(ml.BackendParams{NumThreads: 2})
	require.NoError(t, err)
	return b.NewContext()
}

// wave liefert deterministische, nicht-triviale Werte
func wave(ctx ml.Context, shape ...int) ml.Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	s := make([]float32, n)
	for i := range s {
		s[i] = float32(math.Sin(float64(i)*0.37) + 0.1*math.Cos(float64(i)*1.3))
	}
	return ctx.FromFloats(s, shape...)
}

func testKV(modify func(*config.Config, *config.Pair)) ggml.KV {
	c := config.Default()
	c.NumHeads = 2
	p := config.Pair{Name: "p0", StudentLayer: "s", TeacherLayer: "t", StudentChannels: 4, TeacherChannels: 6}
	if modify != nil {
		modify(c, &p)
	}
	return KV(c, p)
}

func newTestModel(t *testing.T, ctx ml.Context, store *model.Store, kv ggml.KV) *Model {
	t.Helper()
	m, err := model.New(ctx, kv, store, "distill.p0", 42)
	require.NoError(t, err)
	return m.(*Model)
}

func TestPartitionRoundTrip(t *testing.T) {
	ctx := setup(t)
	x := ctx.Arange(0, 2*3*8*8, 1, ml.DTypeF32).Reshape(ctx, 2, 3, 8, 8)

	for _, shift := range []int{0, 2} {
		w, err := Partition(ctx, x, 4, shift)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 16, 3}, w.Tokens.Shape())
		assert.Equal(t, 4, w.Count())

		y, err := Reassemble(ctx, w)
		require.NoError(t, err)
		if diff := cmp.Diff(x.Floats(), y.Floats()); diff != "" {
			t.Errorf("shift %d: Round Trip nicht verlustfrei (-want +got):\n%s", shift, diff)
		}
	}
}

func TestPartitionLayout(t *testing.T) {
	ctx := setup(t)
	// [1, 1, 4, 4] mit Werten 0..15, Fenster 2
	x := ctx.Arange(0, 16, 1, ml.DTypeF32).Reshape(ctx, 1, 1, 4, 4)

	w, err := Partition(ctx, x, 2, 0)
	require.NoError(t, err)
	want := []float32{
		0, 1, 4, 5,
		2, 3, 6, 7,
		8, 9, 12, 13,
		10, 11, 14, 15,
	}
	if diff := cmp.Diff(want, w.Tokens.Floats()); diff != "" {
		t.Errorf("falsche Fenster-Reihenfolge (-want +got):\n%s", diff)
	}

	// verschoben um 1: Fenster 0 beginnt bei (1, 1)
	w, err = Partition(ctx, x, 2, 1)
	require.NoError(t, err)
	if diff := cmp.Diff([]float32{5, 6, 9, 10}, w.Tokens.Floats()[:4]); diff != "" {
		t.Errorf("falsches verschobenes Fenster (-want +got):\n%s", diff)
	}
}

func TestPartitionErrors(t *testing.T) {
	ctx := setup(t)

	_, err := Partition(ctx, wave(ctx, 1, 2, 6, 8), 4, 0)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = Partition(ctx, wave(ctx, 1, 2, 8, 8), 4, 1)
	assert.ErrorIs(t, err, errtypes.ErrInvalidConfiguration)

	_, err = Partition(ctx, wave(ctx, 2, 8, 8), 4, 0)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	w, err := Partition(ctx, wave(ctx, 1, 2, 8, 8), 4, 0)
	require.NoError(t, err)
	w.Tokens = wave(ctx, 3, 16, 2)
	_, err = Reassemble(ctx, w)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestShiftMask(t *testing.T) {
	ctx := setup(t)

	mask, err := ShiftMask(ctx, 2, 4, 4, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 1, 4, 4}, mask.Shape())

	values := mask.Floats()
	// Fenster oben links liegt komplett in einer Region
	for i, v := range values[:16] {
		if v != 0 {
			t.Errorf("Fenster 0: Position %d = %v, erwartet 0", i, v)
		}
	}

	// Fenster unten rechts: vier verschiedene Regionen, nur die Diagonale ist frei
	last := values[3*16 : 4*16]
	for i := range 4 {
		for j := range 4 {
			v := last[i*4+j]
			if i == j && v != 0 {
				t.Errorf("Fenster 3: (%d,%d) = %v, erwartet 0", i, j, v)
			}
			if i != j && !math.IsInf(float64(v), -1) {
				t.Errorf("Fenster 3: (%d,%d) = %v, erwartet -inf", i, j, v)
			}
		}
	}

	// zweites Sample bekommt dieselbe Maske
	if diff := cmp.Diff(values[:64], values[64:]); diff != "" {
		t.Errorf("Maske je Sample verschieden (-want +got):\n%s", diff)
	}

	none, err := ShiftMask(ctx, 1, 4, 4, 2, 0)
	require.NoError(t, err)
	assert.True(t, slices.IndexFunc(none.Floats(), func(v float32) bool { return v != 0 }) < 0)
}

func TestRelativeBias(t *testing.T) {
	ctx := setup(t)
	table := ctx.Arange(0, 9, 1, ml.DTypeF32).Reshape(ctx, 3, 3)

	bias, err := relativeBias(ctx, table, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 4}, bias.Shape())

	values := bias.Floats()
	// Token 0 = (0,0), Token 3 = (1,1)
	assert.Equal(t, float32(8), values[0*4+3])
	assert.Equal(t, float32(0), values[3*4+0])
	for i := range 4 {
		assert.Equal(t, float32(4), values[i*4+i])
	}

	_, err = relativeBias(ctx, table, 3)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestAttentionRowsSumToOne(t *testing.T) {
	ctx := setup(t)
	m := newTestModel(t, ctx, model.NewStore(), testKV(nil))

	x := wave(ctx, 2, 8, 8, 4)
	for i, stage := range m.Stages {
		so := m.stages[i]
		w, err := partition(ctx, x, m.windowSize, so.shift)
		require.NoError(t, err)

		var mask ml.Tensor
		if so.shift > 0 {
			mask, err = ShiftMask(ctx, 2, 8, 8, m.windowSize, so.shift)
			require.NoError(t, err)
		}

		weights, err := stage.Attention.Weights(ctx, w.Tokens, w.Tokens, mask, m.Options)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 2, 16, 16}, weights.Shape())

		sums := weights.SumRows(ctx).Floats()
		for j, s := range sums {
			if math.Abs(float64(s)-1) > 1e-5 {
				t.Fatalf("Stufe %d: Zeile %d summiert zu %v", i, j, s)
			}
		}
	}
}

func TestAttentionShapeMismatch(t *testing.T) {
	ctx := setup(t)
	m := newTestModel(t, ctx, model.NewStore(), testKV(nil))
	attn := m.Stages[0].Attention

	_, err := attn.Forward(ctx, wave(ctx, 4, 16, 4), wave(ctx, 4, 9, 4), nil, m.Options)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = attn.Forward(ctx, wave(ctx, 4, 16, 4), wave(ctx, 4, 16, 5), nil, m.Options)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = attn.Forward(ctx, wave(ctx, 4, 16, 4), wave(ctx, 2, 16, 4), nil, m.Options)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestZeroWeightStageIsIdentity(t *testing.T) {
	ctx := setup(t)
	store := model.NewStore()

	// Projektionen beider Stufen vorab mit Nullen anlegen
	for i := range 2 {
		for _, spec := range []model.ParamSpec{
			{Name: "attn_q.weight", Shape: []int{4, 4}},
			{Name: "attn_k.weight", Shape: []int{4, 4}},
			{Name: "attn_v.weight", Shape: []int{4, 4}},
			{Name: "attn_out.weight", Shape: []int{4, 4}},
			{Name: "attn_out.bias", Shape: []int{4}},
			{Name: "ffn_up.weight", Shape: []int{8, 4}},
			{Name: "ffn_up.bias", Shape: []int{8}},
			{Name: "ffn_down.weight", Shape: []int{4, 8}},
			{Name: "ffn_down.bias", Shape: []int{4}},
		} {
			name := fmt.Sprintf("distill.p0.blk.%d.%s", i, spec.Name)
			store.Set(name, ctx.Zeros(ml.DTypeF32, spec.Shape...))
		}
	}

	m := newTestModel(t, ctx, store, testKV(nil))
	x := wave(ctx, 1, 8, 8, 4)
	for i, stage := range m.Stages {
		y, err := stage.Forward(ctx, x, nil, m.stages[i], m.Options)
		require.NoError(t, err)
		if diff := cmp.Diff(x.Floats(), y.Floats()); diff != "" {
			t.Errorf("Stufe %d ist nicht die Identitaet (-want +got):\n%s", i, diff)
		}
	}
}

func TestForward(t *testing.T) {
	ctx := setup(t)
	m := newTestModel(t, ctx, model.NewStore(), testKV(nil))

	out, err := m.Forward(ctx, wave(ctx, 1, 4, 8, 8), 8, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 8, 8}, out.Shape())
	for i, v := range out.Floats() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("Ausgabe %d ist nicht endlich: %v", i, v)
		}
	}

	// gleiche Parameter, gleiche Eingabe, gleiche Bits
	again, err := newTestModel(t, ctx, model.NewStore(), testKV(nil)).Forward(ctx, wave(ctx, 1, 4, 8, 8), 8, 8, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(out.Floats(), again.Floats()); diff != "" {
		t.Errorf("Forward nicht reproduzierbar (-first +second):\n%s", diff)
	}

	// Resampling von 4x4 auf 8x8
	out, err = m.Forward(ctx, wave(ctx, 1, 4, 4, 4), 8, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 8, 8}, out.Shape())

	_, err = m.Forward(ctx, wave(ctx, 1, 3, 8, 8), 8, 8, nil)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = m.Forward(ctx, wave(ctx, 1, 4, 8, 8), 6, 6, nil)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestForwardReject(t *testing.T) {
	ctx := setup(t)
	kv := testKV(func(c *config.Config, _ *config.Pair) {
		c.ResamplePolicy = config.ResampleReject
	})
	m := newTestModel(t, ctx, model.NewStore(), kv)

	_, err := m.Forward(ctx, wave(ctx, 1, 4, 4, 4), 8, 8, nil)
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = m.Forward(ctx, wave(ctx, 1, 4, 8, 8), 8, 8, nil)
	assert.NoError(t, err)
}

func TestCrossFallsBackToSelf(t *testing.T) {
	ctx := setup(t)

	self := newTestModel(t, ctx, model.NewStore(), testKV(nil))
	cross := newTestModel(t, ctx, model.NewStore(), testKV(func(c *config.Config, _ *config.Pair) {
		c.AttentionMode = config.AttentionModes{config.AttentionCross}
	}))
	assert.True(t, cross.NeedsContext())
	assert.False(t, self.NeedsContext())

	student := wave(ctx, 1, 4, 8, 8)
	want, err := self.Forward(ctx, student, 8, 8, nil)
	require.NoError(t, err)

	got, err := cross.Forward(ctx, student, 8, 8, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(want.Floats(), got.Floats(), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("Cross ohne Kontext ist nicht Self-Attention (-self +cross):\n%s", diff)
	}

	out, err := cross.Forward(ctx, student, 8, 8, wave(ctx, 1, 6, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 6, 8, 8}, out.Shape())

	_, err = cross.Forward(ctx, student, 8, 8, wave(ctx, 1, 6, 4, 4))
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)

	_, err = cross.Forward(ctx, student, 8, 8, wave(ctx, 1, 5, 8, 8))
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestNewInvalidConfiguration(t *testing.T) {
	cases := map[string]func(*config.Config, *config.Pair){
		"heads": func(c *config.Config, _ *config.Pair) { c.NumHeads = 3 },
		"modes": func(c *config.Config, _ *config.Pair) {
			c.AttentionMode = config.AttentionModes{config.AttentionSelf, config.AttentionCross, config.AttentionSelf}
		},
		"shift":  func(c *config.Config, _ *config.Pair) { c.ShiftMode = "sometimes" },
		"window": func(c *config.Config, _ *config.Pair) { c.WindowSize = 0 },
	}

	for name, modify := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(testKV(modify))
			if !errors.Is(err, errtypes.ErrInvalidConfiguration) {
				t.Errorf("erwartet ErrInvalidConfiguration, bekommen %v", err)
			}
		})
	}
}

func TestParams(t *testing.T) {
	m, err := New(testKV(func(c *config.Config, _ *config.Pair) {
		c.AttentionMode = config.AttentionModes{config.AttentionSelf, config.AttentionCross}
	}))
	require.NoError(t, err)

	var names []string
	for _, spec := range m.Params() {
		names = append(names, spec.Name)
	}

	assert.Contains(t, names, "blk.0.attn_rel_pos")
	assert.Contains(t, names, "blk.1.ln_ctx.weight")
	assert.Contains(t, names, "blk.1.ctx_proj.weight")
	assert.NotContains(t, names, "blk.0.ln_ctx.weight")
	assert.Contains(t, names, "out_norm.bias")
	assert.Equal(t, "proj.weight", names[len(names)-3])
}

func TestStageOptions(t *testing.T) {
	cases := map[string]struct {
		modify func(*config.Config, *config.Pair)
		want   []stageOptions
	}{
		"alternate": {
			modify: func(c *config.Config, _ *config.Pair) {
				c.NumStages = 3
				c.AttentionMode = config.AttentionModes{config.AttentionCross}
			},
			want: []stageOptions{
				{shift: 0, mode: config.AttentionCross},
				{shift: 2, mode: config.AttentionCross},
				{shift: 0, mode: config.AttentionCross},
			},
		},
		"none": {
			modify: func(c *config.Config, _ *config.Pair) {
				c.ShiftMode = config.ShiftNone
				c.AttentionMode = config.AttentionModes{config.AttentionSelf, config.AttentionCross}
			},
			want: []stageOptions{
				{shift: 0, mode: config.AttentionSelf},
				{shift: 0, mode: config.AttentionCross},
			},
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := New(testKV(tt.modify))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, m.(*Model).stages, cmp.AllowUnexported(stageOptions{})); diff != "" {
				t.Errorf("Stufen falsch (-want +got):\n%s", diff)
			}
		})
	}
}
