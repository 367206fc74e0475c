// common/model/entity.go
package model

import (
	"bytes"
	"errors"
	"fmt"
)

const modelKey = "model"

var (
	// ErrMalformed: the input is not a JSON object.
	ErrMalformed = errors.New("model: malformed entity")
	// ErrUnknownModel: the "model" discriminator is missing or unregistered.
	ErrUnknownModel = errors.New("model: unknown model")
	// ErrFieldNotFound: Get on an absent field.
	ErrFieldNotFound = errors.New("model: field not found")
)

// Entity is a named-field record tagged with its Kind. It is not
// modified after construction.
type Entity struct {
	kind   Kind
	fields Fields
}

// New builds an entity from raw values, renaming keys through mapping.
// The reserved "model" key is dropped.
func New(kind Kind, values Fields, mapping FieldMapping) *Entity {
	fields := make(Fields, 0, len(values))
	for _, f := range values {
		name := mapping.Lookup(f.Name)
		if name == modelKey {
			continue
		}
		fields.Set(name, f.Value)
	}
	return &Entity{kind: kind, fields: fields}
}

// Kind returns the entity's model kind.
func (e *Entity) Kind() Kind { return e.kind }

// Fields returns a copy of the entity's fields.
func (e *Entity) Fields() Fields { return e.fields.Clone() }

// Get returns the named value or ErrFieldNotFound.
func (e *Entity) Get(name string) (any, error) {
	v, ok := e.fields.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	return v, nil
}

// FilterModelFields remaps the entity's fields and keeps only the model
// fields of its kind, in entity order.
func (e *Entity) FilterModelFields(mapping FieldMapping) Fields {
	remapped := e.fields.Remap(mapping)
	out := make(Fields, 0, len(remapped))
	for _, f := range remapped {
		if e.kind.HasField(f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// MarshalJSON writes every field followed by the "model" discriminator.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := e.fields.writeMembers(&buf); err != nil {
		return nil, fmt.Errorf("model: encode %s: %w", e.kind, err)
	}
	if len(e.fields) > 0 {
		buf.WriteByte(',')
	}
	if err := writeMember(&buf, modelKey, e.kind.String()); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse decodes one serialized entity.
func Parse(data []byte) (*Entity, error) {
	var fields Fields
	if err := fields.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw, ok := fields.Get(modelKey)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q key", ErrUnknownModel, modelKey)
	}
	name, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownModel, raw)
	}
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return New(kind, fields, nil), nil
}
