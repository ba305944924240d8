package facets

import (
	"fmt"
	"sort"
)

// Facet is one filterable attribute with a closed enumerated domain.
type Facet struct {
	Name string `yaml:"name"`
	// Label is the widget heading shown to the user, e.g. "Country(s)".
	Label string `yaml:"label"`
	// Description tells the model what the facet means when preselecting.
	Description string   `yaml:"description"`
	Domain      []string `yaml:"domain"`
}

// Schema is the ordered set of facets a deployment filters on. The facet
// vocabulary is configuration, not code: deployments that filter on
// implementer/subtopic instead of organization/topic load a different
// schema file, they do not fork the application.
type Schema struct {
	Facets []Facet `yaml:"facets"`
}

// Facet returns the facet with the given name.
func (s *Schema) Facet(name string) (Facet, bool) {
	for _, f := range s.Facets {
		if f.Name == name {
			return f, true
		}
	}
	return Facet{}, false
}

// Names returns the facet names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Facets))
	for i, f := range s.Facets {
		names[i] = f.Name
	}
	return names
}

// Selection maps a facet name to the set of selected values. A facet with
// no selected values imposes no search constraint. Initialized empty,
// populated once by the preselect tool, then editable by the user; never
// cleared automatically within a session.
type Selection map[string][]string

// NewSelection returns an empty selection covering every facet in the schema.
func NewSelection(schema *Schema) Selection {
	sel := make(Selection, len(schema.Facets))
	for _, f := range schema.Facets {
		sel[f.Name] = nil
	}
	return sel
}

// Set replaces the values selected for a facet, dropping any value outside
// the facet's declared domain. It returns the values that were dropped so
// callers can report them.
func (sel Selection) Set(schema *Schema, name string, values []string) ([]string, error) {
	facet, ok := schema.Facet(name)
	if !ok {
		return nil, fmt.Errorf("unknown facet: %s", name)
	}

	allowed := make(map[string]bool, len(facet.Domain))
	for _, v := range facet.Domain {
		allowed[v] = true
	}

	var kept, dropped []string
	for _, v := range values {
		if allowed[v] {
			kept = append(kept, v)
		} else {
			dropped = append(dropped, v)
		}
	}

	sel[name] = kept
	return dropped, nil
}

// Values returns the selected values for a facet.
func (sel Selection) Values(name string) []string {
	return sel[name]
}

// IsEmpty reports whether no facet has any selected value.
func (sel Selection) IsEmpty() bool {
	for _, vals := range sel {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the selection.
func (sel Selection) Clone() Selection {
	out := make(Selection, len(sel))
	for k, vals := range sel {
		if vals == nil {
			out[k] = nil
			continue
		}
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}

// Equal reports whether two selections select the same values, ignoring
// order within each facet.
func (sel Selection) Equal(other Selection) bool {
	keys := make(map[string]bool, len(sel)+len(other))
	for k := range sel {
		keys[k] = true
	}
	for k := range other {
		keys[k] = true
	}
	for k := range keys {
		a := append([]string(nil), sel[k]...)
		b := append([]string(nil), other[k]...)
		if len(a) != len(b) {
			return false
		}
		sort.Strings(a)
		sort.Strings(b)
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
