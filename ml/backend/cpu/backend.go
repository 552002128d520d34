// backend.go - CPU-Backend Registrierung und Backend-Struktur
// Enthaelt: Backend struct, New(), NewContext(), Close()

package cpu

import (
	"log/slog"
	"runtime"

	"github.com/7blacky7/attndistill/ml"
)

func init() {
	ml.RegisterBackend("cpu", New)
}

// Backend fuehrt Tensor-Operationen in reinem Go aus
type Backend struct {
	numThreads int
}

// New erstellt ein CPU-Backend. NumThreads <= 0 nutzt GOMAXPROCS.
func New(params ml.BackendParams) (ml.Backend, error) {
	threads := params.NumThreads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	slog.Debug("cpu backend", "threads", threads)
	return &Backend{numThreads: threads}, nil
}

// Name gibt den Registrierungsnamen zurueck
func (b *Backend) Name() string {
	return "cpu"
}

// NewContext erstellt einen neuen Compute-Kontext
func (b *Backend) NewContext() ml.Context {
	return &Context{b: b}
}

// Close gibt Ressourcen frei (keine beim CPU-Backend)
func (b *Backend) Close() {}
