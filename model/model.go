// Package model - Model-Interface und Initialisierung
//
// Dieses Paket definiert das Model-Interface und stellt Funktionen
// zur Initialisierung und Verwaltung von Modellen bereit.
//
// Hauptkomponenten:
// - Model: Interface fuer alle Modell-Architekturen
// - New: Erstellt eine Model-Instanz und befuellt sie aus dem Store
// - Register: Registriert Modell-Konstruktoren
// - Store: Benannte Parameter (store.go)
// - SaveCheckpoint/LoadCheckpoint: GGUF-Checkpoints (checkpoint.go)

package model

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/7blacky7/attndistill/fs"
	"github.com/7blacky7/attndistill/ml"
)

// Fehler-Definitionen
var ErrUnsupportedModel = errors.New("model not supported")

// Model definiert das Interface fuer spezifische Modell-Architekturen
type Model interface {
	// Params beschreibt alle Parameter relativ zum Modell-Prefix
	Params() []ParamSpec
}

// Validator ist ein optionales Interface fuer Post-Load-Validierung
type Validator interface {
	Validate() error
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(fs.Config) (Model, error))

// Register registriert einen Modell-Konstruktor fuer eine Architektur
func Register(name string, f func(fs.Config) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New erstellt ein Modell fuer die Architektur in c.
// prefix ist der Namespace im Store (student.* oder distill.*).
// Fehlende Parameter unter prefix werden aus seed initialisiert,
// danach werden alle Tensor-Felder aus dem Store befuellt.
func New(ctx ml.Context, c fs.Config, store *Store, prefix string, seed uint64) (Model, error) {
	f, ok := models[c.Architecture()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, c.Architecture())
	}

	m, err := f(c)
	if err != nil {
		return nil, err
	}

	p, err := newPopulator(store, prefix)
	if err != nil {
		return nil, err
	}

	specs := m.Params()
	for i := range specs {
		specs[i].Name = p.qualify(specs[i].Name)
	}

	if err := store.Init(ctx, seed, specs...); err != nil {
		return nil, err
	}

	v := reflect.ValueOf(m)
	v.Elem().Set(p.fields(v.Elem()))
	slog.Debug("model populated", "architecture", c.Architecture(), "namespace", p.namespace, "tensors", p.found, "params", len(specs))

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// shapeError beschreibt abweichende Shapes
func shapeError(have, want []int) error {
	return fmt.Errorf("have %v, want %v", have, want)
}
