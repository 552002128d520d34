package convert

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/ml/backend/cpu"
	"github.com/7blacky7/attndistill/model"
)

func setup(t *testing.T) ml.Context {
	t.Helper()
	b, err := cpu.New(ml.BackendParams{NumThreads: 1})
	require.NoError(t, err)
	return b.NewContext()
}

func TestContiguous(t *testing.T) {
	storage := []float32{0, 1, 2, 3, 4, 5}

	cases := []struct {
		name   string
		offset int
		size   []int
		stride []int
		want   []float32
	}{
		{"contiguous", 0, []int{2, 3}, []int{3, 1}, []float32{0, 1, 2, 3, 4, 5}},
		{"transposed", 0, []int{3, 2}, []int{1, 3}, []float32{0, 3, 1, 4, 2, 5}},
		{"offset", 2, []int{2}, []int{1}, []float32{2, 3}},
		{"scalar", 4, []int{}, []int{}, []float32{4}},
		{"empty", 0, []int{0, 3}, []int{3, 1}, []float32{}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := contiguous(storage, tt.offset, tt.size, tt.stride)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("falsche Elemente (-want +got):\n%s", diff)
			}
		})
	}

	_, err := contiguous(storage, 5, []int{2}, []int{1})
	assert.Error(t, err)

	_, err = contiguous(storage, 0, []int{2}, []int{1, 1})
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	ctx := setup(t)
	store := model.NewStore()

	ts := []Tensor{
		{Name: "layer3.conv.weight", Shape: []int{2, 2}, Data: []float32{1, 2, 3, 4}},
		{Name: "layer3.bn.num_batches_tracked", Shape: nil, Data: []float32{7}},
		{Name: "fc.bias", Shape: nil, Data: []float32{0.5}},
	}

	n, err := Import(ctx, ts, store, Options{
		Prefix:       "student",
		Replacements: []string{"layer3.", "blk.3.", "conv", "proj"},
		Skip:         []string{"num_batches_tracked"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"student.blk.3.proj.weight", "student.fc.bias"}, store.Names())

	w := store.Get("student.blk.3.proj.weight")
	assert.Equal(t, []int{2, 2}, w.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4}, w.Floats())
	assert.Equal(t, []int{1}, store.Get("student.fc.bias").Shape())
}

func TestImportErrors(t *testing.T) {
	ctx := setup(t)

	_, err := Import(ctx, []Tensor{
		{Name: "a.weight", Shape: []int{1}, Data: []float32{1}},
		{Name: "b.weight", Shape: []int{1}, Data: []float32{2}},
	}, model.NewStore(), Options{Replacements: []string{"a.", "", "b.", ""}})
	assert.ErrorContains(t, err, "both map to")

	_, err = Import(ctx, nil, model.NewStore(), Options{})
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = ImportTorch(ctx, filepath.Join(t.TempDir(), "missing.pt"), model.NewStore(), Options{})
	assert.Error(t, err)

	ckpt := filepath.Join(t.TempDir(), "adapters.pt")
	require.NoError(t, os.WriteFile(ckpt, []byte("GGUF\x03\x00\x00\x00"), 0o644))
	_, err = ImportTorch(ctx, ckpt, model.NewStore(), Options{})
	if !errors.Is(err, ErrCheckpointInput) {
		t.Errorf("GGUF-Eingabe sollte ErrCheckpointInput liefern, bekam %v", err)
	}
}

func TestParseReplacements(t *testing.T) {
	got, err := ParseReplacements([]string{"layer=blk", "norm1=ln1", "x="})
	require.NoError(t, err)
	assert.Equal(t, []string{"layer", "blk", "norm1", "ln1", "x", ""}, got)

	_, err = ParseReplacements([]string{"layer"})
	assert.Error(t, err)

	_, err = ParseReplacements([]string{"=blk"})
	assert.Error(t, err)
}
