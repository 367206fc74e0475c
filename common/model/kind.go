// common/model/kind.go
package model

import (
	"fmt"
	"strings"
)

// Kind is the closed set of entity categories. Every kind has a
// registered, ordered set of model fields used to filter persistable
// columns.
type Kind int

const (
	KindUnknown Kind = iota
	Quote
)

var kindNames = map[Kind]string{
	Quote: "QUOTE",
}

var kindFields = map[Kind][]string{
	Quote: {
		"symbol",
		"quote_timestamp",
		"bid_price",
		"ask_price",
		"last_price",
		"bid_size",
		"ask_size",
		"ask_id",
		"bid_id",
		"total_volume",
		"last_size",
		"trade_time",
		"quote_time",
		"last_id",
		"nav",
	},
}

// Kinds returns every registered kind.
func Kinds() []Kind { return []Kind{Quote} }

// String returns the wire name of the kind ("QUOTE").
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Table is the lower-case relational table name of the kind.
func (k Kind) Table() string { return strings.ToLower(k.String()) }

// Fields returns a copy of the registered model fields in order.
func (k Kind) Fields() []string {
	f := kindFields[k]
	out := make([]string, len(f))
	copy(out, f)
	return out
}

// HasField reports whether name is one of the kind's model fields.
func (k Kind) HasField(name string) bool {
	for _, f := range kindFields[k] {
		if f == name {
			return true
		}
	}
	return false
}

// ParseKind resolves a wire name into a Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}
