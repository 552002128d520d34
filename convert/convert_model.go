// convert_model.go - Import externer Gewichte in den Parameter-Store
// Hauptfunktionen: Import, ImportTorch, ConvertTorch
package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/model"
)

// ErrEmpty meldet eine Quelle ohne verwertbare Tensoren
var ErrEmpty = errors.New("convert: no tensors imported")

// Import uebernimmt ts unter den Namen aus opts in den Store und gibt die
// Anzahl uebernommener Tensoren zurueck. Doppelte Zielnamen sind ein Fehler.
func Import(ctx ml.Context, ts []Tensor, store *model.Store, opts Options) (int, error) {
	replacer := strings.NewReplacer(opts.Replacements...)

	seen := make(map[string]string, len(ts))
	var n int
	for _, t := range ts {
		name := opts.name(replacer, t.Name)
		if name == "" {
			slog.Debug("skipping tensor", "name", t.Name)
			continue
		}

		if prev, ok := seen[name]; ok {
			return n, fmt.Errorf("convert: %q and %q both map to %q", prev, t.Name, name)
		}
		seen[name] = t.Name

		shape := t.Shape
		if len(shape) == 0 {
			shape = []int{1}
		}

		store.Set(name, ctx.FromFloats(t.Data, shape...))
		n++
	}

	if n == 0 {
		return 0, ErrEmpty
	}

	slog.Info("imported tensors", "count", n, "prefix", opts.Prefix)
	return n, nil
}

// ImportTorch liest ein PyTorch state_dict aus path und uebernimmt es in den Store
func ImportTorch(ctx ml.Context, path string, store *model.Store, opts Options) (int, error) {
	ts, err := parseTorch(path)
	if err != nil {
		return 0, err
	}

	return Import(ctx, ts, store, opts)
}

// ConvertTorch schreibt ein PyTorch state_dict als GGUF-Checkpoint nach out
func ConvertTorch(ctx ml.Context, in, out string, opts Options, dtype ml.DType) error {
	store := model.NewStore()
	if _, err := ImportTorch(ctx, in, store, opts); err != nil {
		return err
	}

	kv := ggml.KV{
		"general.architecture": "torch",
		"general.name":         strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)),
		"general.source":       filepath.Base(in),
	}

	scope := model.ScopeAll
	switch {
	case strings.HasPrefix(opts.Prefix, model.StudentPrefix):
		scope = model.ScopeStudent
	case strings.HasPrefix(opts.Prefix, model.DistillPrefix):
		scope = model.ScopeDistill
	}

	return model.SaveCheckpoint(out, store, kv, scope, dtype)
}
