// enums.go - Geschlossene Enum-Werte der Laufkonfiguration
// Enthaelt: ShiftMode (Stage), AttentionMode(s) (Stage), OutputNorm, MaskNormalization,
// DistanceMetric, ResamplePolicy, checkEnum(), Suggest()

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/7blacky7/attndistill/types/errtypes"
)

// ShiftMode bestimmt den Wechsel zwischen normalen und verschobenen Fenstern
type ShiftMode string

const (
	ShiftNone      ShiftMode = "none"
	ShiftAlternate ShiftMode = "alternate"
)

var shiftModes = []ShiftMode{ShiftNone, ShiftAlternate}

// Stage gibt die Verschiebung der Stufe i zurueck: windowSize/2 bei jeder
// zweiten Stufe im alternate-Modus, sonst 0
func (s ShiftMode) Stage(windowSize, i int) int {
	if s == ShiftAlternate && i%2 == 1 {
		return windowSize / 2
	}
	return 0
}

// AttentionMode bestimmt die Herkunft von Keys/Values einer Stufe
type AttentionMode string

const (
	AttentionSelf  AttentionMode = "self"
	AttentionCross AttentionMode = "cross"
)

var attentionModes = []AttentionMode{AttentionSelf, AttentionCross}

// AttentionModes ist ein Wert fuer alle Stufen oder einer je Stufe.
// In YAML als Skalar oder Liste.
type AttentionModes []AttentionMode

func (m *AttentionModes) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s AttentionMode
		if err := node.Decode(&s); err != nil {
			return err
		}
		*m = AttentionModes{s}
		return nil
	default:
		var s []AttentionMode
		if err := node.Decode(&s); err != nil {
			return err
		}
		*m = s
		return nil
	}
}

func (m AttentionModes) MarshalYAML() (any, error) {
	if len(m) == 1 {
		return string(m[0]), nil
	}
	return []AttentionMode(m), nil
}

// Stage gibt den Modus der Stufe i zurueck, ein einzelner Wert gilt fuer alle
func (m AttentionModes) Stage(i int) AttentionMode {
	if len(m) == 1 {
		return m[0]
	}
	return m[i]
}

// Strings gibt die Werte als Strings zurueck
func (m AttentionModes) Strings() []string {
	s := make([]string, len(m))
	for i, v := range m {
		s[i] = string(v)
	}
	return s
}

// OutputNorm bestimmt die Normalisierung nach der Ausgabe-Projektion
type OutputNorm string

const (
	OutputNormNone  OutputNorm = "none"
	OutputNormBatch OutputNorm = "batch"
)

var outputNorms = []OutputNorm{OutputNormNone, OutputNormBatch}

// MaskNormalization bestimmt die Normalisierung der Wichtigkeitsmaske
type MaskNormalization string

const (
	MaskL2Softmax MaskNormalization = "l2_softmax"
	MaskL2MinMax  MaskNormalization = "l2_minmax"
	MaskNone      MaskNormalization = "none"
)

var maskNormalizations = []MaskNormalization{MaskL2Softmax, MaskL2MinMax, MaskNone}

// DistanceMetric bestimmt die Distanz je Position
type DistanceMetric string

const (
	DistanceMSE      DistanceMetric = "mse"
	DistanceSmoothL1 DistanceMetric = "smooth_l1"
)

var distanceMetrics = []DistanceMetric{DistanceMSE, DistanceSmoothL1}

// ResamplePolicy bestimmt den Umgang mit abweichender Aufloesung
type ResamplePolicy string

const (
	ResampleNearest  ResamplePolicy = "nearest"
	ResampleBilinear ResamplePolicy = "bilinear"
	ResampleReject   ResamplePolicy = "reject"
)

var resamplePolicies = []ResamplePolicy{ResampleNearest, ResampleBilinear, ResampleReject}

// ParseShiftMode, ParseAttentionMode usw. fuer Werte ausserhalb von YAML (CLI-Flags)

func ParseShiftMode(s string) (ShiftMode, error) {
	return parseEnum("shift_mode", s, shiftModes)
}

func ParseAttentionMode(s string) (AttentionMode, error) {
	return parseEnum("attention_mode", s, attentionModes)
}

func ParseMaskNormalization(s string) (MaskNormalization, error) {
	return parseEnum("mask_normalization", s, maskNormalizations)
}

func ParseDistanceMetric(s string) (DistanceMetric, error) {
	return parseEnum("distance_metric", s, distanceMetrics)
}

func ParseResamplePolicy(s string) (ResamplePolicy, error) {
	return parseEnum("resample_policy", s, resamplePolicies)
}

func parseEnum[T ~string](key, s string, valid []T) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(s)))
	return v, checkEnum(key, v, valid)
}

// checkEnum prueft v gegen die gueltigen Werte und schlaegt den naechsten vor
func checkEnum[T ~string](key string, v T, valid []T) error {
	if slices.Contains(valid, v) {
		return nil
	}

	names := make([]string, len(valid))
	for i, n := range valid {
		names[i] = string(n)
	}

	msg := fmt.Sprintf("unknown value %q (valid: %s)", v, strings.Join(names, ", "))
	if s := Suggest(string(v), names); s != "" {
		msg += fmt.Sprintf(", did you mean %q?", s)
	}
	return errtypes.InvalidConfiguration("config.validate", key, "%s", msg)
}

// Suggest gibt den Kandidaten mit der kleinsten Editierdistanz zurueck,
// leer wenn keiner naeher als die halbe Laenge von s liegt
func Suggest(s string, candidates []string) string {
	best, bestDist := "", len(s)/2+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(s, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
