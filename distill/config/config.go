// MODUL: config
// ZWECK: Laufkonfiguration fuer Adapter, Maske und Loss aus YAML
// INPUT: YAML-Datei oder Bytes, optional Defaults
// OUTPUT: Config Struct mit validierten, geschlossenen Enum-Werten
// NEBENEFFEKTE: Liest Dateien (nur Load)
// ABHAENGIGKEITEN: gopkg.in/yaml.v3, agnivade/levenshtein, types/errtypes
// HINWEISE: Unbekannte Enum-Werte und Schluessel sind ErrInvalidConfiguration

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/7blacky7/attndistill/types/errtypes"
)

// ============================================================================
// Konstanten fuer Standardwerte
// ============================================================================

const (
	DefaultWindowSize      = 4
	DefaultNumStages       = 2
	DefaultNumHeads        = 1
	DefaultMLPRatio        = 2.0
	DefaultLayerNormEps    = 1e-5
	DefaultMaskTemperature = 1.0
	DefaultSmoothL1Beta    = 1.0
	DefaultEpsilon         = 1e-6
	DefaultFactor          = 1.0
)

// ============================================================================
// Config - Zentrale Laufkonfiguration
// ============================================================================

// Config enthaelt alle Optionen eines Distillationslaufs
type Config struct {
	// WindowSize ist die Kantenlaenge eines Fensters
	WindowSize int `yaml:"window_size"`

	// ShiftMode bestimmt ob ungerade Stufen verschobene Fenster nutzen
	ShiftMode ShiftMode `yaml:"shift_mode"`

	// NumStages ist die Anzahl der Attention-Stufen im Adapter
	NumStages int `yaml:"num_stages"`

	// AttentionMode ist ein Wert fuer alle Stufen oder einer je Stufe
	AttentionMode AttentionModes `yaml:"attention_mode"`

	NumHeads     int        `yaml:"num_heads"`
	MLPRatio     float64    `yaml:"mlp_ratio"`
	LayerNormEps float64    `yaml:"layer_norm_eps"`
	OutputNorm   OutputNorm `yaml:"output_norm"`

	MaskNormalization MaskNormalization `yaml:"mask_normalization"`
	MaskTemperature   float64           `yaml:"mask_temperature"`

	DistanceMetric DistanceMetric `yaml:"distance_metric"`
	SmoothL1Beta   float64        `yaml:"smooth_l1_beta"`
	// Epsilon verhindert Division durch null bei leerer Maske
	Epsilon float64 `yaml:"epsilon"`

	ResamplePolicy ResamplePolicy `yaml:"resample_policy"`

	// Seed bestimmt die Initialisierung fehlender Parameter
	Seed uint64 `yaml:"seed"`

	Pairs []Pair `yaml:"pairs"`
}

// Pair verbindet einen Student-Layer mit einem Teacher-Layer
type Pair struct {
	Name         string `yaml:"name"`
	StudentLayer string `yaml:"student_layer"`
	TeacherLayer string `yaml:"teacher_layer"`

	// ContextLayer liefert den Kontext fuer cross-Stufen, leer = TeacherLayer
	ContextLayer string `yaml:"context_layer"`

	StudentChannels int `yaml:"student_channels"`
	TeacherChannels int `yaml:"teacher_channels"`
	// ContextChannels ist 0 wenn der Kontext TeacherChannels hat
	ContextChannels int `yaml:"context_channels"`

	// Factor gewichtet den Loss-Term des Paars
	Factor *float64 `yaml:"factor"`
}

// Context gibt den Layer fuer cross-Stufen zurueck
func (p Pair) Context() string {
	if p.ContextLayer != "" {
		return p.ContextLayer
	}
	return p.TeacherLayer
}

// ContextDim gibt die Kanalzahl des Kontexts zurueck
func (p Pair) ContextDim() int {
	if p.ContextChannels > 0 {
		return p.ContextChannels
	}
	return p.TeacherChannels
}

// Weight gibt den Faktor des Paars zurueck, Default 1
func (p Pair) Weight() float64 {
	if p.Factor != nil {
		return *p.Factor
	}
	return DefaultFactor
}

// ============================================================================
// Default / Load / Parse
// ============================================================================

// Default gibt die Standard-Konfiguration ohne Paare zurueck.
// - window_size 4, shift_mode alternate, num_stages 2, attention_mode self
// - mask_normalization l2_minmax, distance_metric mse, resample_policy nearest
// - output_norm batch
func Default() *Config {
	return &Config{
		WindowSize:        DefaultWindowSize,
		ShiftMode:         ShiftAlternate,
		NumStages:         DefaultNumStages,
		AttentionMode:     AttentionModes{AttentionSelf},
		NumHeads:          DefaultNumHeads,
		MLPRatio:          DefaultMLPRatio,
		LayerNormEps:      DefaultLayerNormEps,
		OutputNorm:        OutputNormBatch,
		MaskNormalization: MaskL2MinMax,
		MaskTemperature:   DefaultMaskTemperature,
		DistanceMetric:    DistanceMSE,
		SmoothL1Beta:      DefaultSmoothL1Beta,
		Epsilon:           DefaultEpsilon,
		ResamplePolicy:    ResampleNearest,
	}
}

// Load liest und validiert eine YAML-Datei
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse liest YAML ueber die Defaults und validiert das Ergebnis.
// Unbekannte Schluessel sind ErrInvalidConfiguration.
func Parse(b []byte) (*Config, error) {
	c := Default()

	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, &errtypes.Error{Kind: errtypes.ErrInvalidConfiguration, Op: "config.parse", Err: err}
		}
		return nil, fmt.Errorf("config.parse: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal gibt die Konfiguration als YAML zurueck
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ============================================================================
// Validate - Konfiguration validieren
// ============================================================================

// Validate prueft alle Werte und gibt den ersten Fehler zurueck
func (c *Config) Validate() error {
	const op = "config.validate"

	if c.WindowSize < 1 {
		return errtypes.InvalidConfiguration(op, "window_size", "must be >= 1, got %d", c.WindowSize)
	}
	if c.ShiftMode == ShiftAlternate && c.WindowSize < 2 {
		return errtypes.InvalidConfiguration(op, "shift_mode", "alternate needs window_size >= 2")
	}
	if c.NumStages < 1 {
		return errtypes.InvalidConfiguration(op, "num_stages", "must be >= 1, got %d", c.NumStages)
	}
	if c.NumHeads < 1 {
		return errtypes.InvalidConfiguration(op, "num_heads", "must be >= 1, got %d", c.NumHeads)
	}
	if c.MLPRatio <= 0 {
		return errtypes.InvalidConfiguration(op, "mlp_ratio", "must be > 0, got %v", c.MLPRatio)
	}
	if c.LayerNormEps <= 0 {
		return errtypes.InvalidConfiguration(op, "layer_norm_eps", "must be > 0, got %v", c.LayerNormEps)
	}
	if c.MaskTemperature <= 0 {
		return errtypes.InvalidConfiguration(op, "mask_temperature", "must be > 0, got %v", c.MaskTemperature)
	}
	if c.SmoothL1Beta <= 0 {
		return errtypes.InvalidConfiguration(op, "smooth_l1_beta", "must be > 0, got %v", c.SmoothL1Beta)
	}
	if c.Epsilon <= 0 {
		return errtypes.InvalidConfiguration(op, "epsilon", "must be > 0, got %v", c.Epsilon)
	}

	if err := checkEnum("shift_mode", c.ShiftMode, shiftModes); err != nil {
		return err
	}
	if len(c.AttentionMode) != 1 && len(c.AttentionMode) != c.NumStages {
		return errtypes.InvalidConfiguration(op, "attention_mode", "need 1 or %d values (one per stage), got %d", c.NumStages, len(c.AttentionMode))
	}
	for _, m := range c.AttentionMode {
		if err := checkEnum("attention_mode", m, attentionModes); err != nil {
			return err
		}
	}
	if err := checkEnum("output_norm", c.OutputNorm, outputNorms); err != nil {
		return err
	}
	if err := checkEnum("mask_normalization", c.MaskNormalization, maskNormalizations); err != nil {
		return err
	}
	if err := checkEnum("distance_metric", c.DistanceMetric, distanceMetrics); err != nil {
		return err
	}
	if err := checkEnum("resample_policy", c.ResamplePolicy, resamplePolicies); err != nil {
		return err
	}

	names := make(map[string]bool)
	for i, p := range c.Pairs {
		key := fmt.Sprintf("pairs[%d]", i)
		switch {
		case p.Name == "":
			return errtypes.InvalidConfiguration(op, key+".name", "must not be empty")
		case strings.ContainsAny(p.Name, ". \t"):
			return errtypes.InvalidConfiguration(op, key+".name", "%q must not contain dots or spaces", p.Name)
		case names[p.Name]:
			return errtypes.InvalidConfiguration(op, key+".name", "duplicate pair %q", p.Name)
		case p.StudentLayer == "":
			return errtypes.InvalidConfiguration(op, key+".student_layer", "must not be empty")
		case p.TeacherLayer == "":
			return errtypes.InvalidConfiguration(op, key+".teacher_layer", "must not be empty")
		case p.StudentChannels < 1:
			return errtypes.InvalidConfiguration(op, key+".student_channels", "must be >= 1, got %d", p.StudentChannels)
		case p.TeacherChannels < 1:
			return errtypes.InvalidConfiguration(op, key+".teacher_channels", "must be >= 1, got %d", p.TeacherChannels)
		case p.ContextChannels < 0:
			return errtypes.InvalidConfiguration(op, key+".context_channels", "must be >= 0, got %d", p.ContextChannels)
		case p.StudentChannels%c.NumHeads != 0:
			return errtypes.InvalidConfiguration(op, key+".student_channels", "%d not divisible by num_heads %d", p.StudentChannels, c.NumHeads)
		case p.Weight() < 0:
			return errtypes.InvalidConfiguration(op, key+".factor", "must be >= 0, got %v", p.Weight())
		}
		names[p.Name] = true
	}

	return nil
}
