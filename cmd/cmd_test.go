package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/7blacky7/attndistill/types/errtypes"
)

const testConfig = `
window_size: 4
num_stages: 2
shift_mode: alternate
mask_normalization: l2_minmax
distance_metric: mse
seed: 3
pairs:
  - name: layer3
    student_layer: student.layer3
    teacher_layer: teacher.layer3
    student_channels: 4
    teacher_channels: 4
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&out)
	cli.SetErr(&out)
	cli.SetArgs(args)
	err := cli.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "distill.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return path
}

func TestInitInspectRun(t *testing.T) {
	t.Setenv("ATTNDISTILL_CONFIG", "")
	t.Setenv("ATTNDISTILL_SEED", "")
	t.Setenv("ATTNDISTILL_DTYPE", "")

	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	ckpt := filepath.Join(dir, "adapters.gguf")

	out, err := execute(t, "init", ckpt, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "for 1 pairs")

	out, err = execute(t, "inspect", ckpt)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "NAME\tTYPE\tSHAPE\tSIZE", lines[0])
	assert.Contains(t, out, "distill.layer3.blk.0.attn_q.weight\tF32\t[4, 4]\t64 B")
	assert.Contains(t, out, "distill.layer3.proj.weight")

	out, err = execute(t, "inspect", ckpt, "--kv")
	require.NoError(t, err)
	assert.Contains(t, out, "general.scope\tdistill")
	assert.Contains(t, out, "general.architecture\tattnembed")

	out, err = execute(t, "inspect", ckpt, "--values", "--prefix", "distill.layer3.blk.0.ln1.")
	require.NoError(t, err)
	assert.Contains(t, out, "distill.layer3.blk.0.ln1.bias [4]\n[ 0.0000,  0.0000,  0.0000,  0.0000]\n")
	assert.Contains(t, out, "distill.layer3.blk.0.ln1.weight [4]\n[ 1.0000,  1.0000,  1.0000,  1.0000]\n")

	// Konfiguration kommt aus dem Checkpoint
	first, err := execute(t, "run", "--checkpoint", ckpt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "PAIR\tLOSS\tFACTOR\tDEGENERATE\n"), "unerwartete Ausgabe: %q", first)
	assert.Contains(t, first, "\nlayer3\t")
	assert.Contains(t, first, "\nTOTAL\t")

	second, err := execute(t, "run", "--checkpoint", ckpt, "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// gleiche Parameter aus dem Seed, auch ohne Checkpoint
	third, err := execute(t, "run", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestRunResampleAndSave(t *testing.T) {
	t.Setenv("ATTNDISTILL_CONFIG", "")
	t.Setenv("ATTNDISTILL_SEED", "")
	t.Setenv("ATTNDISTILL_DTYPE", "")

	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	saved := filepath.Join(dir, "all.gguf")

	_, err := execute(t, "run", "--config", cfg, "--batch", "2", "--student-height", "4", "--student-width", "4", "--save", saved, "--dtype", "bf16")
	require.NoError(t, err)

	out, err := execute(t, "inspect", saved, "--prefix", "distill.layer3.proj")
	require.NoError(t, err)
	assert.Contains(t, out, "distill.layer3.proj.weight\tBF16\t[4, 4]\t32 B")

	_, err = execute(t, "run", "--config", cfg, "--height", "6", "--width", "6")
	assert.ErrorIs(t, err, errtypes.ErrShapeMismatch)
}

func TestExport(t *testing.T) {
	t.Setenv("ATTNDISTILL_CONFIG", "")
	t.Setenv("ATTNDISTILL_SEED", "")
	t.Setenv("ATTNDISTILL_DTYPE", "")

	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	ckpt := filepath.Join(dir, "adapters.gguf")
	half := filepath.Join(dir, "adapters-f16.gguf")

	_, err := execute(t, "init", ckpt, "--config", cfg)
	require.NoError(t, err)

	out, err := execute(t, "export", ckpt, half, "--scope", "all", "--dtype", "f16")
	require.NoError(t, err)
	assert.Contains(t, out, "(all, f16)")

	out, err = execute(t, "inspect", half)
	require.NoError(t, err)
	assert.Contains(t, out, "distill.layer3.blk.1.attn_rel_pos\tF16\t[7, 7]")

	_, err = execute(t, "export", ckpt, half, "--scope", "everything")
	assert.Error(t, err)
}

func TestCommandErrors(t *testing.T) {
	t.Setenv("ATTNDISTILL_CONFIG", "")
	t.Setenv("ATTNDISTILL_SEED", "")

	dir := t.TempDir()

	_, err := execute(t, "run")
	assert.ErrorContains(t, err, "no pairs configured")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("mask_normalization: l2_softmx\n"), 0o644))
	_, err = execute(t, "init", filepath.Join(dir, "x.gguf"), "--config", bad)
	assert.ErrorIs(t, err, errtypes.ErrInvalidConfiguration)
	assert.ErrorContains(t, err, `did you mean "l2_softmax"`)

	_, err = execute(t, "inspect", filepath.Join(dir, "missing.gguf"))
	assert.Error(t, err)

	_, err = execute(t, "import", filepath.Join(dir, "missing.pt"), filepath.Join(dir, "out.gguf"), "--replace", "broken")
	assert.Error(t, err)
}
