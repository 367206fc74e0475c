// common/model/fields.go
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Field is a single named value of an entity.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered set of uniquely named values. JSON objects decode
// into it preserving key order.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (any, bool) {
	for _, fl := range f {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return nil, false
}

// Set stores value under name. An existing key keeps its position.
func (f *Fields) Set(name string, value any) {
	for i := range *f {
		if (*f)[i].Name == name {
			(*f)[i].Value = value
			return
		}
	}
	*f = append(*f, Field{Name: name, Value: value})
}

// Names returns the keys in order.
func (f Fields) Names() []string {
	out := make([]string, len(f))
	for i, fl := range f {
		out[i] = fl.Name
	}
	return out
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// Remap applies mapping to every key; a renamed key overwrites an
// existing one.
func (f Fields) Remap(mapping FieldMapping) Fields {
	out := make(Fields, 0, len(f))
	for _, fl := range f {
		out.Set(mapping.Lookup(fl.Name), fl.Value)
	}
	return out
}

// MarshalJSON encodes the fields as an object in order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := f.writeMembers(&buf); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f Fields) writeMembers(buf *bytes.Buffer) error {
	for i, fl := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(buf, fl.Name, fl.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeMember(buf *bytes.Buffer, name string, value any) error {
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	v, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// marshalValue keeps a decimal point on integral floats so a decode
// gives back a float64 rather than an int64.
func marshalValue(v any) ([]byte, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return json.Marshal(v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return []byte(strconv.FormatFloat(f, 'f', 1, 64)), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON decodes an object preserving member order. Numbers
// become int64 when integral and float64 otherwise.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object")
	}
	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out.Set(name, normalize(raw))
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after object")
	}
	*f = out
	return nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if fl, err := x.Float64(); err == nil {
			return fl
		}
		return x.String()
	case map[string]any:
		for k, vv := range x {
			x[k] = normalize(vv)
		}
		return x
	case []any:
		for i, vv := range x {
			x[i] = normalize(vv)
		}
		return x
	default:
		return v
	}
}
