package ggml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestWriteDecodeRoundTrip(t *testing.T) {
	values := []float32{0.5, -1.25, 3, 0, 1024, -0.125}

	for _, kind := range []TensorType{TensorTypeF32, TensorTypeF16, TensorTypeBF16} {
		t.Run(kind.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ckpt.gguf")
			f, err := os.Create(path)
			require.NoError(t, err)

			a, err := NewTensor("distill.p0.blk.1.attn_q.weight", kind, []int{2, 3}, values)
			require.NoError(t, err)
			b, err := NewTensor("distill.p0.blk.0.attn_q.weight", kind, []int{3, 2}, values)
			require.NoError(t, err)
			c, err := NewTensor("student.layer.bias", kind, []int{1}, values[:1])
			require.NoError(t, err)

			kv := KV{
				"general.architecture": "attnembed",
				"general.name":         "test",
				"window_size":          uint32(4),
				"mask_temperature":     float32(0.5),
				"attention_mode":       []string{"self", "cross"},
			}
			require.NoError(t, WriteGGUF(f, kv, []*Tensor{a, b, c}))
			require.NoError(t, f.Close())

			r, err := os.Open(path)
			require.NoError(t, err)
			defer r.Close()

			g, err := Decode(r)
			require.NoError(t, err)

			require.Equal(t, "attnembed", g.KV().Architecture())
			require.Equal(t, uint32(4), g.KV().Uint("window_size"))
			require.Equal(t, float32(0.5), g.KV().Float("mask_temperature"))
			require.Equal(t, []string{"self", "cross"}, g.KV().Strings("attention_mode"))
			require.Equal(t, uint64(13), g.KV().ParameterCount())

			items := g.Tensors().Items()
			names := make([]string, len(items))
			for i, item := range items {
				names[i] = item.Name
			}
			// Tensoren ohne Block zuerst, dann nach Block-Nummer
			want := []string{"student.layer.bias", "distill.p0.blk.0.attn_q.weight", "distill.p0.blk.1.attn_q.weight"}
			if diff := cmp.Diff(want, names); diff != "" {
				t.Errorf("tensor order mismatch (-want +got):\n%s", diff)
			}

			require.Len(t, g.Tensors().Items("distill."), 2)

			for _, item := range g.Tensors().Items("distill.") {
				require.Equal(t, uint32(kind), item.Kind)
				got, err := g.ReadFloats(item)
				require.NoError(t, err)
				if diff := cmp.Diff(values, got); diff != "" {
					t.Errorf("%s mismatch (-want +got):\n%s", item.Name, diff)
				}
			}

			require.Equal(t, []int{2, 3}, items[2].Dims())
			require.Equal(t, []uint64{3, 2}, items[2].Shape)
		})
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gguf")
	require.NoError(t, os.WriteFile(path, []byte("NOPE0000"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = Decode(f)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewTensorShapeMismatch(t *testing.T) {
	_, err := NewTensor("x", TensorTypeF32, []int{2, 2}, []float32{1, 2, 3})
	require.Error(t, err)

	_, err = NewTensor("x", TensorType(2), []int{1}, []float32{1})
	require.Error(t, err)
}

func TestParseTensorType(t *testing.T) {
	for s, want := range map[string]TensorType{"f32": TensorTypeF32, "F16": TensorTypeF16, "bf16": TensorTypeBF16} {
		got, err := ParseTensorType(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseTensorType("q4_0")
	require.Error(t, err)
}

func TestDetectContentType(t *testing.T) {
	if got := DetectContentType([]byte("GGUF....")); got != "gguf" {
		t.Errorf("DetectContentType = %q, erwartet %q", got, "gguf")
	}
	if got := DetectContentType([]byte("PK")); got != "" {
		t.Errorf("DetectContentType = %q, erwartet leer", got)
	}
}
