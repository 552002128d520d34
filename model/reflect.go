// Package model - Reflection-basierte Tensor-Population
//
// Dieses Modul enthaelt die Reflection-Logik zum automatischen Befuellen
// von Modell-Strukturen mit Tensoren aus einem Namespace des Stores.
//
// Hauptkomponenten:
// - populator: Befuellt Strukturfelder rekursiv aus student.* oder distill.*
// - Tag: GGUF-Tag-Struktur fuer Tensor-Namen
// - parseTag: Parst GGUF-Tags aus Struct-Tags
// - buildTensorNames: Alle Kandidaten-Namen eines Feldes inkl. alt:

package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/7blacky7/attndistill/logutil"
	"github.com/7blacky7/attndistill/ml"
)

// Tag repraesentiert einen geparsten GGUF-Tag
type Tag struct {
	name string
	// prefix und suffix werden auf Kind-Tags angewendet
	prefix, suffix string
	alternatives   []string
}

// parseTag parst "name,alt:x,pre:p,suf:s". Ohne Primaernamen wird die
// erste Alternative zum Namen.
func parseTag(s string) Tag {
	parts := strings.Split(s, ",")
	tag := Tag{name: parts[0]}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}

		switch key {
		case "alt":
			if tag.name == "" {
				tag.name = value
			} else {
				tag.alternatives = append(tag.alternatives, value)
			}
		case "pre":
			tag.prefix = value
		case "suf":
			tag.suffix = value
		}
	}

	return tag
}

var mlTensorType = reflect.TypeOf((*ml.Tensor)(nil)).Elem()

// populator liest Tensoren eines Modells aus einem Namespace des Stores,
// z.B. "distill.layer3". Feldnamen aus den Tags gelten relativ dazu.
type populator struct {
	store     *Store
	namespace string

	found int
}

// newPopulator prueft, dass namespace unter student. oder distill. liegt
func newPopulator(store *Store, namespace string) (*populator, error) {
	namespace = strings.TrimSuffix(namespace, ".")
	if !strings.HasPrefix(namespace, StudentPrefix) && !strings.HasPrefix(namespace, DistillPrefix) {
		return nil, fmt.Errorf("model: namespace %q must start with %q or %q", namespace, StudentPrefix, DistillPrefix)
	}

	return &populator{store: store, namespace: namespace}, nil
}

// qualify setzt den Namespace vor einen relativen Namen
func (p *populator) qualify(name string) string {
	return p.namespace + "." + name
}

// lookup gibt den ersten vorhandenen Kandidaten zurueck
func (p *populator) lookup(tags []Tag) ml.Tensor {
	for _, parts := range buildTensorNames(tags, "", "") {
		name := p.qualify(strings.Join(parts, "."))
		if t := p.store.Get(name); t != nil {
			logutil.Trace("found tensor", "name", name, "shape", t.Shape())
			p.found++
			return t
		}
	}
	return nil
}

// fields befuellt v rekursiv. Eine Struktur, in der kein Feld gesetzt
// wurde, wird zum Nullwert, damit optionale Layer nil bleiben.
func (p *populator) fields(v reflect.Value, tags ...Tag) reflect.Value {
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return v
	}

	empty := true
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldTags := tags[:len(tags):len(tags)]
		if tag := field.Tag.Get("gguf"); tag != "" {
			fieldTags = append(fieldTags, parseTag(tag))
		}

		switch kind := field.Type.Kind(); {
		case field.Type == mlTensorType:
			if tensor := p.lookup(fieldTags); tensor != nil {
				fv.Set(reflect.ValueOf(tensor))
			}
		case kind == reflect.Pointer || kind == reflect.Interface:
			p.pointer(fv, fieldTags)
		case kind == reflect.Slice || kind == reflect.Array:
			for j := range fv.Len() {
				elem := fv.Index(j)
				elemTags := append(fieldTags[:len(fieldTags):len(fieldTags)], Tag{name: strconv.Itoa(j)})
				if k := elem.Kind(); k == reflect.Pointer || k == reflect.Interface {
					p.pointer(elem, elemTags)
				} else {
					elem.Set(p.fields(elem, elemTags...))
				}
			}
		}

		if !canNil(field.Type) || !fv.IsNil() {
			empty = false
		}
	}

	if empty {
		return reflect.Zero(t)
	}
	return v
}

// pointer legt bei Bedarf das Ziel an und setzt es nur, wenn darin
// mindestens ein Tensor gefunden wurde
func (p *populator) pointer(v reflect.Value, tags []Tag) {
	target := v
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		target = target.Elem()
	}

	target = reflect.Indirect(target)
	if v.IsNil() {
		target = reflect.New(v.Type().Elem()).Elem()
	}

	if f := p.fields(target, tags...); f.CanAddr() {
		v.Set(f.Addr())
	}
}

// canNil prueft ob ein Typ nil sein kann
func canNil(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	default:
		return false
	}
}

// buildTensorNames baut alle Kandidaten aus tags. Jeder Name und jede
// Alternative eines Tags wird mit allen Kandidaten der folgenden Tags
// kombiniert, prefix und suffix eines Tags gelten fuer seinen Nachfolger.
func buildTensorNames(tags []Tag, prefix, suffix string) [][]string {
	if len(tags) == 0 {
		return nil
	}

	head := tags[0]
	children := buildTensorNames(tags[1:], head.prefix, head.suffix)
	if head.name == "" {
		return children
	}

	var names [][]string
	for _, n := range append([]string{head.name}, head.alternatives...) {
		n = prefix + n + suffix
		if len(children) == 0 {
			names = append(names, []string{n})
			continue
		}
		for _, child := range children {
			names = append(names, append([]string{n}, child...))
		}
	}
	return names
}
