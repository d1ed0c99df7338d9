// Package value holds the generic value tree produced by a database lookup
// and converts it into plain Go values.
package value

import (
	"fmt"
	"math"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNull is the zero Value.
	KindNull Kind = iota
	KindBool
	// KindInt holds a signed 64-bit integer.
	KindInt
	// KindFloat holds a float64; it never compares equal to a KindInt.
	KindFloat
	KindString
	// KindArray holds an ordered list of values.
	KindArray
	// KindObject holds fields in insertion order with unique keys.
	KindObject
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Field is a single key/value pair of an object.
type Field struct {
	Key   string
	Value Value
}

// Value is a node of a decoded record. The zero Value is null.
//
// Exactly one payload is meaningful, selected by Kind. Values are immutable
// once constructed; accessors never hand out the backing slices.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	items  []Value
	fields []Field
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an ordered sequence of values.
func Array(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindArray, items: out}
}

// Object returns an ordered mapping. A repeated key keeps the position of its
// first occurrence and the value of its last.
func Object(fields ...Field) Value {
	out := make([]Field, 0, len(fields))
	var seen map[string]int
	if len(fields) > 8 {
		seen = make(map[string]int, len(fields))
	}
	for _, f := range fields {
		if idx, ok := lookupField(out, seen, f.Key); ok {
			out[idx].Value = f.Value
			continue
		}
		if seen != nil {
			seen[f.Key] = len(out)
		}
		out = append(out, f)
	}
	return Value{kind: KindObject, fields: out}
}

func lookupField(fields []Field, index map[string]int, key string) (int, bool) {
	if index != nil {
		idx, ok := index[key]
		return idx, ok
	}
	for i := range fields {
		if fields[i].Key == key {
			return i, true
		}
	}
	return 0, false
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is an Int.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload and whether v is a Float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the text payload and whether v is a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Len returns the number of elements of an Array or fields of an Object,
// and 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	default:
		return 0
	}
}

// Index returns the i-th element of an Array.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// FieldAt returns the i-th field of an Object.
func (v Value) FieldAt(i int) Field {
	if v.kind != KindObject || i < 0 || i >= len(v.fields) {
		return Field{}
	}
	return v.fields[i]
}

// Get returns the value stored under key in an Object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	if idx, ok := lookupField(v.fields, nil, key); ok {
		return v.fields[idx].Value, true
	}
	return Value{}, false
}

// Keys returns the keys of an Object in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, len(v.fields))
	for i, f := range v.fields {
		keys[i] = f.Key
	}
	return keys
}

// Equal reports whether a and b have the same shape, key order and scalars.
// Int and Float never compare equal to each other. NaN floats are equal to
// each other so that decoded records compare reflexively.
func Equal(a, b Value) bool {
	type pair struct{ a, b *Value }
	stack := []pair{{&a, &b}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.a, p.b
		if x.kind != y.kind {
			return false
		}
		switch x.kind {
		case KindBool:
			if x.b != y.b {
				return false
			}
		case KindInt:
			if x.i != y.i {
				return false
			}
		case KindFloat:
			if x.f != y.f && !(math.IsNaN(x.f) && math.IsNaN(y.f)) {
				return false
			}
		case KindString:
			if x.s != y.s {
				return false
			}
		case KindArray:
			if len(x.items) != len(y.items) {
				return false
			}
			for i := range x.items {
				stack = append(stack, pair{&x.items[i], &y.items[i]})
			}
		case KindObject:
			if len(x.fields) != len(y.fields) {
				return false
			}
			for i := range x.fields {
				if x.fields[i].Key != y.fields[i].Key {
					return false
				}
				stack = append(stack, pair{&x.fields[i].Value, &y.fields[i].Value})
			}
		}
	}
	return true
}

// String renders v for debugging.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.b)
	case KindInt:
		return fmt.Sprint(v.i)
	case KindFloat:
		return fmt.Sprint(v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.items))
	case KindObject:
		return fmt.Sprintf("object[%d]", len(v.fields))
	default:
		return v.kind.String()
	}
}
