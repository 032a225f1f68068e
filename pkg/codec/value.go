// Package codec implements the compact text format used to embed structured
// payloads in prompts and to persist them. Encode and Decode are exact
// inverses over the Value universe: decoding an encoded value yields the same
// value, including map key order and the integer-vs-fractional class of
// numbers. The format favors token density: uniform lists of maps collapse to
// a single header plus one row per element, scalar lists collapse to one
// line, and everything else falls back to an indented block form.
package codec

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the concrete type of a Value.
type Kind uint8

// Value kinds. Int and Float are distinct kinds: "3" and "3.0" are different
// values and re-encode differently.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

// String returns the lowercase kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is the closed union of types the codec understands. The sealed
// method keeps the union closed so switches over concrete types can be
// exhaustive.
type Value interface {
	Kind() Kind
	sealed()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is an integer-class number. Its encoded form never carries a fraction.
type Int int64

// Float is a fractional-class number. Its encoded form always carries a
// fraction part (3.0 encodes as "3.0", never "3"). Values must be finite;
// NaN and infinities are outside the value universe.
type Float float64

// String is a text value.
type String string

// List is an ordered sequence of values.
type List []Value

// Map is a string-keyed map that preserves insertion order. Order is
// significant for encoding but not for equality.
type Map struct {
	om *orderedmap.OrderedMap[string, Value]
}

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (List) Kind() Kind   { return KindList }
func (*Map) Kind() Kind   { return KindMap }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Int) sealed()    {}
func (Float) sealed()  {}
func (String) sealed() {}
func (List) sealed()   {}
func (*Map) sealed()   {}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{om: orderedmap.New[string, Value]()}
}

// Set associates key with value, appending the key if new and keeping its
// original position if it already exists. Returns the map for chaining.
func (m *Map) Set(key string, value Value) *Map {
	m.om.Set(key, value)
	return m
}

// Get returns the value for key and whether it is present.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil || m.om == nil {
		return nil, false
	}
	return m.om.Get(key)
}

// Delete removes key from the map, reporting whether it was present.
func (m *Map) Delete(key string) bool {
	_, present := m.om.Delete(key)
	return present
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, m.Len())
	for p := m.om.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Range calls fn for each key/value pair in insertion order until fn returns
// false.
func (m *Map) Range(fn func(key string, value Value) bool) {
	if m == nil || m.om == nil {
		return
	}
	for p := m.om.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Equal reports deep equality of two values. Map key order is not
// significant for equality; number class is (Int(3) != Float(3.0)).
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		return av == b.(Float)
	case String:
		return av == b.(String)
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv := b.(*Map)
		if av.Len() != bv.Len() {
			return false
		}
		equal := true
		av.Range(func(key string, value Value) bool {
			other, ok := bv.Get(key)
			if !ok || !Equal(value, other) {
				equal = false
				return false
			}
			return true
		})
		return equal
	default:
		return false
	}
}

// Clone returns a deep copy of v. Lists and maps are copied recursively;
// scalars are returned as-is.
func Clone(v Value) Value {
	switch t := v.(type) {
	case List:
		out := make(List, len(t))
		for i := range t {
			out[i] = Clone(t[i])
		}
		return out
	case *Map:
		out := NewMap()
		t.Range(func(key string, value Value) bool {
			out.Set(key, Clone(value))
			return true
		})
		return out
	default:
		return v
	}
}
