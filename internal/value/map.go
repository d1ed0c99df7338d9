package value

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Map is the native form of an Object: a string-keyed mapping that remembers
// insertion order. Go maps do not, and record key order is observable.
type Map struct {
	keys   []string
	values []any
	index  map[string]int
}

func newMap(n int) *Map {
	return &Map{
		keys:   make([]string, n),
		values: make([]any, n),
		index:  make(map[string]int, n),
	}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	idx, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.values[idx], true
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, val any) bool) {
	if m == nil {
		return
	}
	for i, k := range m.keys {
		if !fn(k, m.values[i]) {
			return
		}
	}
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(m.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeMsgpack encodes the map as a msgpack map with keys in insertion order.
func (m *Map) EncodeMsgpack(enc *msgpack.Encoder) error {
	if m == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeMapLen(len(m.keys)); err != nil {
		return err
	}
	for i, k := range m.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.Encode(m.values[i]); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ json.Marshaler        = (*Map)(nil)
	_ msgpack.CustomEncoder = (*Map)(nil)
)
