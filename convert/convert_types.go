// convert_types.go - Basis-Typen fuer den Import externer Checkpoints
// Haupttypen: Tensor, Options
package convert

import (
	"fmt"
	"strings"
)

// Tensor ist ein gelesener Quell-Tensor, Shape von aussen nach innen
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Options steuert, wie Quell-Namen auf Store-Namen abgebildet werden
type Options struct {
	// Prefix ist der Namespace im Store, z.B. "student." oder "distill.<paar>."
	Prefix string

	// Replacements sind Paare aus altem und neuem Namensteil,
	// angewendet wie strings.NewReplacer
	Replacements []string

	// Skip enthaelt Namens-Suffixe, die nicht uebernommen werden
	Skip []string
}

// ParseReplacements liest "alt=neu"-Angaben von der Kommandozeile
func ParseReplacements(pairs []string) ([]string, error) {
	var out []string
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, "=")
		if !ok || from == "" {
			return nil, fmt.Errorf("invalid replacement %q, want old=new", p)
		}
		out = append(out, from, to)
	}
	return out, nil
}

// name bildet den Quell-Namen auf den Store-Namen ab, leer = ueberspringen
func (o Options) name(replacer *strings.Replacer, s string) string {
	for _, suffix := range o.Skip {
		if strings.HasSuffix(s, suffix) {
			return ""
		}
	}

	s = replacer.Replace(s)
	if o.Prefix != "" && !strings.HasSuffix(o.Prefix, ".") {
		return o.Prefix + "." + s
	}
	return o.Prefix + s
}
