// Package model - Parameter-Store
//
// Dieses Modul enthaelt:
// - Store: Benannte Tensoren mit Namespaces (student., distill.)
// - ParamSpec: Beschreibung eines benoetigten Parameters mit Initialisierung
// - Init: Legt fehlende Parameter deterministisch aus einem Seed an
package model

import (
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Namespaces im Store
const (
	StudentPrefix = "student."
	DistillPrefix = "distill."
)

// Store haelt benannte Parameter-Tensoren.
// Tensoren werden beim Forward nur gelesen.
type Store struct {
	mu      sync.RWMutex
	tensors map[string]ml.Tensor
}

// NewStore erstellt einen leeren Store
func NewStore() *Store {
	return &Store{tensors: make(map[string]ml.Tensor)}
}

// Get gibt den Tensor name zurueck, nil wenn er fehlt
func (s *Store) Get(name string) ml.Tensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tensors[name]
}

// Set legt t unter name ab und ersetzt einen vorhandenen Tensor
func (s *Store) Set(name string, t ml.Tensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tensors[name] = t
}

// Delete entfernt alle Tensoren mit dem Prefix und gibt ihre Anzahl zurueck
func (s *Store) Delete(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for name := range s.tensors {
		if strings.HasPrefix(name, prefix) {
			delete(s.tensors, name)
			n++
		}
	}
	return n
}

// Names gibt die sortierten Namen zurueck, optional gefiltert nach Prefix
func (s *Store) Names(prefix ...string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tensors))
	for name := range s.tensors {
		if len(prefix) == 0 || strings.HasPrefix(name, prefix[0]) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Len gibt die Anzahl der Tensoren zurueck
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tensors)
}

// Initializer bestimmt die Startwerte eines Parameters
type Initializer int

const (
	InitNormal Initializer = iota
	InitZeros
	InitOnes
)

// ParamSpec beschreibt einen Parameter, den ein Modell benoetigt
type ParamSpec struct {
	Name  string
	Shape []int
	Init  Initializer
	// Std ist die Standardabweichung fuer InitNormal, 0 = 0.02
	Std float64
}

// Init legt alle fehlenden Parameter aus specs an.
// Jeder Parameter hat einen eigenen Zufallsstrom aus seed und Name,
// das Ergebnis haengt also nicht von der Reihenfolge der specs ab.
// Vorhandene Parameter mit falschem Shape ergeben ErrShapeMismatch.
func (s *Store) Init(ctx ml.Context, seed uint64, specs ...ParamSpec) error {
	var created int
	for _, spec := range specs {
		if t := s.Get(spec.Name); t != nil {
			if !slices.Equal(t.Shape(), spec.Shape) {
				return &errtypes.Error{
					Kind: errtypes.ErrShapeMismatch,
					Op:   "model.init",
					Name: spec.Name,
					Err:  shapeError(t.Shape(), spec.Shape),
				}
			}
			continue
		}

		n := 1
		for _, d := range spec.Shape {
			n *= d
		}

		values := make([]float32, n)
		switch spec.Init {
		case InitOnes:
			for i := range values {
				values[i] = 1
			}
		case InitNormal:
			std := spec.Std
			if std == 0 {
				std = 0.02
			}

			h := fnv.New64a()
			h.Write([]byte(spec.Name)) //nolint:errcheck
			r := rand.New(rand.NewPCG(seed, h.Sum64()))
			for i := range values {
				values[i] = float32(r.NormFloat64() * std)
			}
		}

		s.Set(spec.Name, ctx.FromFloats(values, spec.Shape...))
		created++
	}

	if created > 0 {
		slog.Debug("initialized parameters", "count", created, "seed", seed)
	}
	return nil
}
