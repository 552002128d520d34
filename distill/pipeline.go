// pipeline.go - Ein Distillationsschritt ueber alle Paare
// Enthaelt: Distiller, Term, Result, New(), Step(), Metadata()

package distill

import (
	"fmt"
	"log/slog"

	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/fs/ggml"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/model"
	"github.com/7blacky7/attndistill/model/models/attnembed"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// Distiller haelt einen Adapter je konfiguriertem Paar
type Distiller struct {
	config    *config.Config
	criterion Criterion
	adapters  []*attnembed.Model
}

// Term ist der Loss-Beitrag eines Paars
type Term struct {
	Pair   string
	Loss   float64
	Factor float64

	// Degenerate sind Samples mit uniformer Ersatzmaske
	Degenerate []int
}

// Result ist das Ergebnis eines Schritts
type Result struct {
	Terms []Term
	// Total ist die mit Factor gewichtete Summe aller Terme
	Total float64
}

// New validiert c und legt fuer jedes Paar einen Adapter unter
// distill.<paar> im Store an. Vorhandene Parameter werden uebernommen,
// fehlende aus c.Seed initialisiert.
func New(ctx ml.Context, c *config.Config, store *model.Store) (*Distiller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	d := &Distiller{config: c, criterion: NewCriterion(c)}
	for _, p := range c.Pairs {
		m, err := model.New(ctx, attnembed.KV(c, p), store, model.DistillPrefix+p.Name, c.Seed)
		if err != nil {
			return nil, fmt.Errorf("pair %s: %w", p.Name, err)
		}

		adapter, ok := m.(*attnembed.Model)
		if !ok {
			return nil, fmt.Errorf("pair %s: unexpected model type %T", p.Name, m)
		}
		d.adapters = append(d.adapters, adapter)
	}

	slog.Debug("distiller ready", "pairs", len(d.adapters), "params", len(store.Names(model.DistillPrefix)))
	return d, nil
}

// Adapter gibt den Adapter des Paars name zurueck, nil wenn es fehlt
func (d *Distiller) Adapter(name string) *attnembed.Model {
	for i, p := range d.config.Pairs {
		if p.Name == name {
			return d.adapters[i]
		}
	}
	return nil
}

// Step rechnet fuer jedes Paar Adapter, Maske und Loss in
// Konfigurationsreihenfolge. Fehler in Shape oder Konfiguration brechen
// den Schritt ab, degenerierte Masken nicht.
func (d *Distiller) Step(ctx ml.Context, bridge *Bridge) (Result, error) {
	var result Result
	for i, p := range d.config.Pairs {
		term, err := d.pair(ctx, bridge, p, d.adapters[i])
		if err != nil {
			return Result{}, fmt.Errorf("pair %s: %w", p.Name, err)
		}

		result.Terms = append(result.Terms, term)
		result.Total += term.Factor * term.Loss
	}

	slog.Debug("distillation step", "pairs", len(result.Terms), "loss", result.Total)
	return result, nil
}

func (d *Distiller) pair(ctx ml.Context, bridge *Bridge, p config.Pair, adapter *attnembed.Model) (Term, error) {
	student, err := bridge.Require(SideStudent, p.StudentLayer)
	if err != nil {
		return Term{}, err
	}

	teacher, err := bridge.Require(SideTeacher, p.TeacherLayer)
	if err != nil {
		return Term{}, err
	}

	shape := teacher.Shape()
	if len(shape) != 4 || shape[1] != adapter.TeacherChannels() {
		return Term{}, errtypes.ShapeMismatch("distill.step", "teacher %q is %v, want [B, %d, H, W]", p.TeacherLayer, shape, adapter.TeacherChannels())
	}

	// Kontext ist optional, ohne ihn rechnen Cross-Stufen Self-Attention
	var context ml.Tensor
	if adapter.NeedsContext() {
		if t, ok := bridge.Get(SideTeacher, p.Context()); ok {
			context = t
		}
	}

	embedded, err := adapter.Forward(ctx, student, shape[2], shape[3], context)
	if err != nil {
		return Term{}, err
	}

	mask, err := NewMask(ctx, teacher, d.config.MaskNormalization, d.config.MaskTemperature)
	if err != nil {
		return Term{}, err
	}

	loss, err := d.criterion.Loss(embedded, teacher, mask.Values)
	if err != nil {
		return Term{}, err
	}

	slog.Debug("distillation term", "pair", p.Name, "loss", loss, "factor", p.Weight(), "degenerate", len(mask.Degenerate))
	return Term{Pair: p.Name, Loss: loss, Factor: p.Weight(), Degenerate: mask.Degenerate}, nil
}

// Metadata beschreibt den Lauf fuer Checkpoint-Metadaten.
// Die Konfiguration wird als YAML abgelegt, damit ein Checkpoint
// ohne separate Datei wieder geladen werden kann.
func (d *Distiller) Metadata() (ggml.KV, error) {
	b, err := d.config.Marshal()
	if err != nil {
		return nil, err
	}

	names := make([]string, len(d.config.Pairs))
	for i, p := range d.config.Pairs {
		names[i] = p.Name
	}

	return ggml.KV{
		"general.architecture": attnembed.Architecture,
		"general.name":         "attndistill",
		"general.config":       string(b),
		"general.pairs":        names,
	}, nil
}
