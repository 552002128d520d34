// reader_torch.go - Liest PyTorch state_dicts (.pt/.pth/.bin)
// Hauptfunktionen: parseTorch, sniff, torchFloats, contiguous
package convert

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/7blacky7/attndistill/fs/ggml"
)

// ErrCheckpointInput meldet eine Quelle, die bereits ein GGUF-Checkpoint ist
var ErrCheckpointInput = errors.New("convert: input is already a GGUF checkpoint, use export instead")

// sniff liest die Magic-Bytes von path
func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b := make([]byte, 4)
	if _, err := io.ReadFull(f, b); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}

	return ggml.DetectContentType(b), nil
}

// parseTorch liest alle Float-Tensoren eines state_dicts in Dateireihenfolge.
// Tensoren anderer Typen (z.B. num_batches_tracked) werden uebersprungen.
func parseTorch(path string) ([]Tensor, error) {
	kind, err := sniff(path)
	if err != nil {
		return nil, err
	}
	if kind == "gguf" {
		return nil, fmt.Errorf("%s: %w", path, ErrCheckpointInput)
	}

	pt, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var ts []Tensor
	visit := func(k, v any) error {
		name, ok := k.(string)
		if !ok {
			return fmt.Errorf("state_dict key %v is not a string", k)
		}

		t, ok := v.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "name", name, "type", fmt.Sprintf("%T", v))
			return nil
		}

		data, err := torchFloats(t)
		if err != nil {
			slog.Warn("skipping tensor", "name", name, "error", err)
			return nil
		}

		ts = append(ts, Tensor{Name: name, Shape: append([]int(nil), t.Size...), Data: data})
		return nil
	}

	switch d := pt.(type) {
	case *types.OrderedDict:
		for e := d.List.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.OrderedDictEntry)
			if err := visit(entry.Key, entry.Value); err != nil {
				return nil, err
			}
		}
	case *types.Dict:
		for _, k := range d.Keys() {
			if err := visit(k, d.MustGet(k)); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%s: expected a state_dict, got %T", path, pt)
	}

	return ts, nil
}

// torchFloats liest die Elemente von t als float32 in Zeilen-Reihenfolge
func torchFloats(t *pytorch.Tensor) ([]float32, error) {
	var storage []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		storage = s.Data
	case *pytorch.HalfStorage:
		storage = s.Data
	case *pytorch.DoubleStorage:
		storage = make([]float32, len(s.Data))
		for i, v := range s.Data {
			storage[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported storage %T", t.Source)
	}

	return contiguous(storage, t.StorageOffset, t.Size, t.Stride)
}

// contiguous sammelt einen Strided View in einen zusammenhaengenden Slice
func contiguous(storage []float32, offset int, size, stride []int) ([]float32, error) {
	if len(size) != len(stride) {
		return nil, fmt.Errorf("size %v and stride %v differ in rank", size, stride)
	}

	n := 1
	for _, d := range size {
		n *= d
	}

	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}

	index := make([]int, len(size))
	for i := range out {
		pos := offset
		for d, idx := range index {
			pos += idx * stride[d]
		}
		if pos < 0 || pos >= len(storage) {
			return nil, fmt.Errorf("element %d at storage position %d out of range %d", i, pos, len(storage))
		}
		out[i] = storage[pos]

		// naechster Index, letzte Dimension zuerst
		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < size[d] {
				break
			}
			index[d] = 0
		}
	}

	return out, nil
}
