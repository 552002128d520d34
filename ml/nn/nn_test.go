package nn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/backend/cpu"
)

func setup(t *testing.T) ml.Context {
	t.Helper()
	b, err := cpu.New(ml.BackendParams{NumThreads: 2})
	require.NoError(t, err)
	return b.NewContext()
}

func TestLinear(t *testing.T) {
	ctx := setup(t)

	m := Linear{
		Weight: ctx.FromFloats([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		Bias:   ctx.FromFloats([]float32{10, 20}, 2),
	}
	x := ctx.FromFloats([]float32{1, 1, 1, 0, 1, 0}, 1, 2, 3)

	y := m.Forward(ctx, x)
	require.Equal(t, []int{1, 2, 2}, y.Shape())
	if diff := cmp.Diff([]float32{16, 35, 12, 25}, y.Floats()); diff != "" {
		t.Errorf("Linear mismatch (-want +got):\n%s", diff)
	}

	m.Bias = nil
	if diff := cmp.Diff([]float32{6, 15, 2, 5}, m.Forward(ctx, x).Floats()); diff != "" {
		t.Errorf("Linear ohne Bias mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchNorm(t *testing.T) {
	ctx := setup(t)

	// Kanal 0: 1..4 und 5..8, Kanal 1 konstant 3
	x := ctx.FromFloats([]float32{
		1, 2, 3, 4, 3, 3, 3, 3,
		5, 6, 7, 8, 3, 3, 3, 3,
	}, 2, 2, 2, 2)

	m := BatchNorm{
		Weight: ctx.FromFloats([]float32{1, 2}, 2),
		Bias:   ctx.FromFloats([]float32{0, 1}, 2),
	}
	y := m.Forward(ctx, x, 0).Floats()

	var sum float32
	for _, i := range []int{0, 1, 2, 3, 8, 9, 10, 11} {
		sum += y[i]
	}
	require.InDelta(t, 0, sum, 1e-5)

	// konstanter Kanal ergibt Bias (0/0 wird durch eps vermieden)
	z := m.Forward(ctx, x, 1e-5).Floats()
	want := []float32{1, 1, 1, 1}
	if diff := cmp.Diff(want, z[4:8], cmpopts.EquateApprox(0, 1e-5)); diff != "" {
		t.Errorf("BatchNorm konstanter Kanal mismatch (-want +got):\n%s", diff)
	}
}
