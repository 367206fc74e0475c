// common/model/mapping.go
package model

import "fmt"

// Mapping renames one wire field id to its canonical name.
type Mapping struct {
	From string `mapstructure:"from" json:"from"`
	To   string `mapstructure:"to" json:"to"`
}

// FieldMapping is an ordered list of renames. Order matters: it is the
// order in which fields are requested from the provider.
type FieldMapping []Mapping

// Lookup returns the canonical name for a wire id, or the id itself.
func (m FieldMapping) Lookup(name string) string {
	for _, mp := range m {
		if mp.From == name {
			return mp.To
		}
	}
	return name
}

// Sources returns the wire ids in declaration order.
func (m FieldMapping) Sources() []string {
	out := make([]string, 0, len(m))
	for _, mp := range m {
		out = append(out, mp.From)
	}
	return out
}

// Validate rejects empty names and duplicated wire ids.
func (m FieldMapping) Validate() error {
	seen := make(map[string]struct{}, len(m))
	for i, mp := range m {
		if mp.From == "" || mp.To == "" {
			return fmt.Errorf("model: mapping #%d: from and to are required", i)
		}
		if mp.To == modelKey {
			return fmt.Errorf("model: mapping #%d: %q is reserved", i, modelKey)
		}
		if _, dup := seen[mp.From]; dup {
			return fmt.Errorf("model: mapping #%d: duplicate source %q", i, mp.From)
		}
		seen[mp.From] = struct{}{}
	}
	return nil
}

// MappingTable holds one FieldMapping per Kind, loaded once at start-up.
type MappingTable map[Kind]FieldMapping

// For returns the mapping registered for kind (nil when none).
func (t MappingTable) For(kind Kind) FieldMapping { return t[kind] }
