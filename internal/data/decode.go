package data

import (
	"errors"
	"math"
	"math/big"

	"github.com/TomasB/geolookup/internal/value"
)

// maxPrealloc caps container preallocation; sizes come from the file and a
// corrupt record must not be able to request huge allocations up front.
const maxPrealloc = 64

var errIncompleteRecord = errors.New("decoder produced an incomplete record")

type frame struct {
	object  bool
	items   []value.Value
	fields  []value.Field
	key     string
	haveKey bool
}

// valueBuilder receives the decoder's token stream through the maxminddb
// deserializer hook and assembles a value.Value. Map entries arrive in file
// order, which is what preserves key order.
type valueBuilder struct {
	stack []*frame
	root  value.Value
	done  bool
}

func (b *valueBuilder) ShouldSkip(uintptr) (bool, error) { return false, nil }

func (b *valueBuilder) StartSlice(size uint) error {
	b.stack = append(b.stack, &frame{items: make([]value.Value, 0, min(size, maxPrealloc))})
	return nil
}

func (b *valueBuilder) StartMap(size uint) error {
	b.stack = append(b.stack, &frame{object: true, fields: make([]value.Field, 0, min(size, maxPrealloc))})
	return nil
}

func (b *valueBuilder) End() error {
	if len(b.stack) == 0 {
		return errors.New("unbalanced end of container")
	}
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]

	if top.object {
		if top.haveKey {
			return errors.New("map ended after a key without a value")
		}
		return b.add(value.Object(top.fields...))
	}
	return b.add(value.Array(top.items...))
}

func (b *valueBuilder) String(s string) error {
	if n := len(b.stack); n > 0 {
		if top := b.stack[n-1]; top.object && !top.haveKey {
			top.key = s
			top.haveKey = true
			return nil
		}
	}
	return b.add(value.String(s))
}

func (b *valueBuilder) Float64(f float64) error { return b.add(value.Float(f)) }

func (b *valueBuilder) Float32(f float32) error { return b.add(value.Float(float64(f))) }

func (b *valueBuilder) Bytes(p []byte) error {
	items := make([]value.Value, len(p))
	for i, c := range p {
		items[i] = value.Int(int64(c))
	}
	return b.add(value.Array(items...))
}

func (b *valueBuilder) Uint16(v uint16) error { return b.add(value.Int(int64(v))) }

func (b *valueBuilder) Uint32(v uint32) error { return b.add(value.Int(int64(v))) }

func (b *valueBuilder) Int32(v int32) error { return b.add(value.Int(int64(v))) }

func (b *valueBuilder) Uint64(v uint64) error {
	if v > math.MaxInt64 {
		return b.add(value.Float(float64(v)))
	}
	return b.add(value.Int(int64(v)))
}

func (b *valueBuilder) Uint128(v *big.Int) error {
	if v.IsInt64() {
		return b.add(value.Int(v.Int64()))
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return b.add(value.Float(f))
}

func (b *valueBuilder) Bool(v bool) error { return b.add(value.Bool(v)) }

func (b *valueBuilder) add(v value.Value) error {
	if b.done {
		return errors.New("value after end of record")
	}
	if len(b.stack) == 0 {
		b.root = v
		b.done = true
		return nil
	}

	top := b.stack[len(b.stack)-1]
	if !top.object {
		top.items = append(top.items, v)
		return nil
	}
	if !top.haveKey {
		return errors.New("map key is not a string")
	}
	top.fields = append(top.fields, value.Field{Key: top.key, Value: v})
	top.haveKey = false
	return nil
}

func (b *valueBuilder) result() (value.Value, error) {
	if !b.done || len(b.stack) > 0 {
		return value.Value{}, errIncompleteRecord
	}
	return b.root, nil
}
