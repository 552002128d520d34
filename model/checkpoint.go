// checkpoint.go - GGUF-Checkpoints fuer den Parameter-Store
// Enthaelt: Scope, ParseScope(), SaveCheckpoint(), LoadCheckpoint()

package model

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/ml"
)

// Scope bestimmt welche Namespaces ein Checkpoint enthaelt
type Scope int

const (
	// ScopeStudent enthaelt nur Student-Parameter, nie Adapter-Parameter
	ScopeStudent Scope = iota
	// ScopeDistill enthaelt nur Adapter-Parameter
	ScopeDistill
	// ScopeAll enthaelt Student- und Adapter-Parameter
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeStudent:
		return "student"
	case ScopeDistill:
		return "distill"
	case ScopeAll:
		return "all"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope parst student, distill oder all
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(s) {
	case "student":
		return ScopeStudent, nil
	case "distill":
		return ScopeDistill, nil
	case "all", "":
		return ScopeAll, nil
	default:
		return ScopeAll, fmt.Errorf("unknown checkpoint scope %q (student, distill, all)", s)
	}
}

// includes prueft ob name in den Scope faellt
func (s Scope) includes(name string) bool {
	switch s {
	case ScopeStudent:
		return !strings.HasPrefix(name, DistillPrefix)
	case ScopeDistill:
		return strings.HasPrefix(name, DistillPrefix)
	default:
		return true
	}
}

// ggmlTensorType bildet ml.DType auf den GGUF-Tensortyp ab
func ggmlTensorType(dtype ml.DType) (ggml.TensorType, error) {
	switch dtype {
	case ml.DTypeF32:
		return ggml.TensorTypeF32, nil
	case ml.DTypeF16:
		return ggml.TensorTypeF16, nil
	case ml.DTypeBF16:
		return ggml.TensorTypeBF16, nil
	default:
		return 0, fmt.Errorf("unsupported checkpoint dtype %v", dtype)
	}
}

// SaveCheckpoint schreibt alle Tensoren des Scopes nach path.
// kv muss general.architecture enthalten; Scope und eine Lauf-ID werden ergaenzt.
// Die Datei wird erst nach vollstaendigem Schreiben an ihren Platz verschoben.
func SaveCheckpoint(path string, store *Store, kv ggml.KV, scope Scope, dtype ml.DType) error {
	kind, err := ggmlTensorType(dtype)
	if err != nil {
		return err
	}

	kv = maps.Clone(kv)
	if kv == nil {
		kv = ggml.KV{}
	}
	kv["general.type"] = "checkpoint"
	kv["general.scope"] = scope.String()
	if _, ok := kv["general.run_id"]; !ok {
		kv["general.run_id"] = uuid.NewString()
	}

	var ts []*ggml.Tensor
	for _, name := range store.Names() {
		if !scope.includes(name) {
			continue
		}

		t := store.Get(name)
		gt, err := ggml.NewTensor(name, kind, t.Shape(), t.Floats())
		if err != nil {
			return err
		}
		ts = append(ts, gt)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := ggml.WriteGGUF(f, kv, ts); err != nil {
		f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}

	slog.Info("saved checkpoint", "path", path, "scope", scope, "dtype", dtype, "tensors", len(ts), "run_id", kv["general.run_id"])
	return nil
}

// LoadCheckpoint liest alle Tensoren aus path in den Store und gibt die Metadaten zurueck
func LoadCheckpoint(ctx ml.Context, path string, store *Store) (ggml.KV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := ggml.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for _, t := range g.Tensors().Items() {
		data, err := g.ReadFloats(t)
		if err != nil {
			return nil, err
		}

		store.Set(t.Name, ctx.FromFloats(data, t.Dims()...))
	}

	slog.Debug("loaded checkpoint", "path", path, "tensors", len(g.Tensors().Items()), "scope", g.KV().String("general.scope"))
	return g.KV(), nil
}
