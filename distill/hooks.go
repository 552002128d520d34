// hooks.go - Bruecke zwischen Backbone-Hooks und Distillation
// Enthaelt: Side, Bridge, Hook(), Capture(), Get(), Names(), Require(), Reset()

package distill

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/logutil"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Side unterscheidet Teacher- und Student-Backbone
type Side int

const (
	SideTeacher Side = iota
	SideStudent
)

func (s Side) String() string {
	if s == SideStudent {
		return "student"
	}
	return "teacher"
}

// Bridge sammelt die Aktivierungen eines Schritts je Seite in
// Ausfuehrungsreihenfolge. Gespeichert werden Kopien, spaetere Aenderungen
// des Backbones an seinen Tensoren wirken sich nicht aus.
type Bridge struct {
	ctx ml.Context

	mu       sync.Mutex
	captures [2]*orderedmap.OrderedMap[string, ml.Tensor]
}

// NewBridge erstellt eine leere Bruecke, Kopien entstehen in ctx
func NewBridge(ctx ml.Context) *Bridge {
	b := &Bridge{ctx: ctx}
	b.Reset()
	return b
}

// Hook gibt den Callback fuer den Layer name zurueck.
// Der Backbone ruft ihn synchron mit der Ausgabe des Layers auf.
func (b *Bridge) Hook(side Side, name string) func(ml.Tensor) {
	return func(t ml.Tensor) {
		b.Capture(side, name, t)
	}
}

// Capture speichert eine Kopie von t. Ein zweiter Aufruf fuer denselben
// Layer ersetzt den Wert und behaelt die erste Position.
func (b *Bridge) Capture(side Side, name string, t ml.Tensor) {
	snapshot := t.Duplicate(b.ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, replaced := b.captures[side].Set(name, snapshot); replaced {
		logutil.Trace("activation replaced", "side", side.String(), "layer", name)
	} else {
		logutil.Trace("activation captured", "side", side.String(), "layer", name, "shape", snapshot.Shape())
	}
}

// Get gibt die Aktivierung des Layers name zurueck
func (b *Bridge) Get(side Side, name string) (ml.Tensor, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captures[side].Get(name)
}

// Names gibt die erfassten Layer in Ausfuehrungsreihenfolge zurueck
func (b *Bridge) Names(side Side) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, b.captures[side].Len())
	for pair := b.captures[side].Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Require gibt die Aktivierung zurueck oder ErrMissingActivation mit dem
// aehnlichsten erfassten Namen als Hinweis
func (b *Bridge) Require(side Side, name string) (ml.Tensor, error) {
	if t, ok := b.Get(side, name); ok {
		return t, nil
	}

	var hint error
	if s := config.Suggest(name, b.Names(side)); s != "" {
		hint = fmt.Errorf("%s layer not captured, did you mean %q?", side, s)
	} else {
		hint = fmt.Errorf("%s layer not captured", side)
	}

	return nil, errtypes.MissingActivation("distill.bridge", name, hint)
}

// Reset verwirft alle Aktivierungen, vor jedem Schritt aufzurufen
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.captures {
		b.captures[i] = orderedmap.New[string, ml.Tensor]()
	}
}
