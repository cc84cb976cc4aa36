// Package table provides the tabular data model shared by the fetch, corpus
// and evaluation stages: tagged cell values, ordered rows and tables.
package table

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is a cell value: a scalar (string, number or null) or a list of
// scalars. The zero Value is null.
type Value struct {
	kind  Kind
	str   string
	num   float64
	items []Value
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// String returns a string scalar.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number returns a numeric scalar. NaN is kept as a number and reported by
// IsNull.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// List returns a list value. Nested lists are flattened so a list only ever
// holds scalars.
func List(items ...Value) Value {
	flat := make([]Value, 0, len(items))
	for _, it := range items {
		if it.kind == KindList {
			flat = append(flat, it.items...)
			continue
		}
		flat = append(flat, it)
	}
	return Value{kind: KindList, items: flat}
}

// Strings returns a list value of string scalars.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

// Kind returns the variant tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsList reports whether v is list-like.
func (v Value) IsList() bool {
	return v.kind == KindList
}

// IsNull reports whether v is a null scalar or a NaN number.
func (v Value) IsNull() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return math.IsNaN(v.num)
	default:
		return false
	}
}

// Items returns a copy of the list elements, or nil for scalars.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// Len returns the number of list elements, or 0 for scalars.
func (v Value) Len() int {
	return len(v.items)
}

// Float returns the numeric payload and whether v is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the textual form of a scalar. Null yields "", numbers use the
// shortest representation that round-trips, lists join their elements with
// ", ".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if math.IsNaN(v.num) {
			return "nan"
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindList:
		parts := make([]string, len(v.items))
		for i, it := range v.items {
			parts[i] = it.Text()
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// FromAny converts a Go value into a Value. Slices of scalars become lists;
// unsupported types are rendered with their string form.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return String(strconv.FormatBool(t))
	case []string:
		return Strings(t...)
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return List(items...)
	case []Value:
		return List(t...)
	default:
		return String(toString(t))
	}
}
