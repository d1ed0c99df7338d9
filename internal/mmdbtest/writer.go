// Package mmdbtest writes small MaxMind DB files for tests.
//
// Unlike general purpose writers it never sorts or deduplicates: maps are
// written in the order given and every network gets its own copy of its
// data, so tests control exactly what a reader will see.
package mmdbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

// KV is one entry of an ordered Map.
type KV struct {
	Key   string
	Value any
}

// Map is written as an MMDB map with entries in slice order.
type Map []KV

// Uint16, Uint32 and friends select an explicit MMDB numeric type. Plain Go
// values are mapped as follows: int -> uint32 when non-negative, else int32;
// float64 -> double; float32 -> float; *big.Int -> uint128; []byte -> bytes;
// []any -> array.
type (
	Uint16 uint16
	Uint32 uint32
	Int32  int32
	Uint64 uint64
)

// Raw is copied into the data section verbatim. Use it to plant malformed
// records.
type Raw []byte

// Network assigns Data to every address in Prefix.
type Network struct {
	Prefix netip.Prefix
	Data   any
}

// Options describe the database metadata.
type Options struct {
	DatabaseType string
	// IPVersion is 4 or 6. Zero means 6.
	IPVersion   int
	Languages   []string
	Description string
	BuildEpoch  uint64
}

const (
	recordSize    = 24
	separatorSize = 16
)

var metadataMarker = []byte("\xAB\xCD\xEFMaxMind.com")

const (
	typePointer = 1 + iota
	typeString
	typeFloat64
	typeBytes
	typeUint16
	typeUint32
	typeMap
	typeInt32
	typeUint64
	typeUint128
	typeArray
	_ // container
	_ // end marker
	typeBool
	typeFloat32
)

type recordKind uint8

const (
	recordEmpty recordKind = iota
	recordNode
	recordData
)

type record struct {
	kind recordKind
	val  int
}

type node [2]record

// Build returns the bytes of a database holding networks.
func Build(opts Options, networks ...Network) ([]byte, error) {
	if opts.IPVersion == 0 {
		opts.IPVersion = 6
	}
	if opts.IPVersion != 4 && opts.IPVersion != 6 {
		return nil, fmt.Errorf("unsupported ip version %d", opts.IPVersion)
	}
	if opts.DatabaseType == "" {
		opts.DatabaseType = "Test-Database"
	}
	if opts.Description == "" {
		opts.Description = "mmdbtest database"
	}
	if opts.BuildEpoch == 0 {
		opts.BuildEpoch = 1700000000
	}

	var data encoder
	nodes := []node{{}}
	for _, n := range networks {
		offset := len(data.buf)
		if err := data.encode(n.Data); err != nil {
			return nil, fmt.Errorf("network %s: %w", n.Prefix, err)
		}

		addr, bits, err := treeBits(n.Prefix, opts.IPVersion)
		if err != nil {
			return nil, err
		}
		if nodes, err = insert(nodes, addr, bits, offset); err != nil {
			return nil, fmt.Errorf("network %s: %w", n.Prefix, err)
		}
	}

	nodeCount := len(nodes)
	if nodeCount+separatorSize+len(data.buf) >= 1<<recordSize {
		return nil, fmt.Errorf("database too large for %d bit records", recordSize)
	}

	var out bytes.Buffer
	for _, n := range nodes {
		for _, r := range n {
			var v int
			switch r.kind {
			case recordEmpty:
				v = nodeCount
			case recordNode:
				v = r.val
			case recordData:
				v = nodeCount + separatorSize + r.val
			}
			out.Write([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
		}
	}
	out.Write(make([]byte, separatorSize))
	out.Write(data.buf)
	out.Write(metadataMarker)

	languages := make([]any, len(opts.Languages))
	for i, l := range opts.Languages {
		languages[i] = l
	}
	var meta encoder
	err := meta.encode(Map{
		{"binary_format_major_version", Uint16(2)},
		{"binary_format_minor_version", Uint16(0)},
		{"build_epoch", Uint64(opts.BuildEpoch)},
		{"database_type", opts.DatabaseType},
		{"description", Map{{"en", opts.Description}}},
		{"ip_version", Uint16(opts.IPVersion)},
		{"languages", languages},
		{"node_count", Uint32(nodeCount)},
		{"record_size", Uint16(recordSize)},
	})
	if err != nil {
		return nil, err
	}
	out.Write(meta.buf)
	return out.Bytes(), nil
}

// WriteFile builds a database into a temporary file owned by t and returns
// its path.
func WriteFile(t testing.TB, opts Options, networks ...Network) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.mmdb")
	Rewrite(t, path, opts, networks...)
	return path
}

// Rewrite replaces the database at path.
func Rewrite(t testing.TB, path string, opts Options, networks ...Network) {
	t.Helper()

	buf, err := Build(opts, networks...)
	if err != nil {
		t.Fatalf("failed to build database: %v", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("failed to write database: %v", err)
	}
}

func treeBits(p netip.Prefix, ipVersion int) ([]byte, int, error) {
	if !p.IsValid() || p.Bits() == 0 {
		return nil, 0, fmt.Errorf("invalid prefix %s", p)
	}
	p = p.Masked()
	addr := p.Addr()

	switch {
	case addr.Is4() && ipVersion == 4:
		a := addr.As4()
		return a[:], p.Bits(), nil
	case addr.Is4():
		// IPv4 space lives under ::/96 in an IPv6 tree.
		a := addr.As4()
		buf := make([]byte, 16)
		copy(buf[12:], a[:])
		return buf, 96 + p.Bits(), nil
	case ipVersion == 6:
		a := addr.As16()
		return a[:], p.Bits(), nil
	default:
		return nil, 0, fmt.Errorf("cannot store %s in an IPv4 database", p)
	}
}

func insert(nodes []node, addr []byte, bits int, offset int) ([]node, error) {
	cur := 0
	for i := 0; i < bits; i++ {
		bit := (addr[i/8] >> (7 - uint(i%8))) & 1
		r := nodes[cur][bit]

		if i == bits-1 {
			if r.kind != recordEmpty {
				return nil, fmt.Errorf("overlapping networks are not supported")
			}
			nodes[cur][bit] = record{kind: recordData, val: offset}
			return nodes, nil
		}

		switch r.kind {
		case recordData:
			return nil, fmt.Errorf("overlapping networks are not supported")
		case recordEmpty:
			nodes = append(nodes, node{})
			nodes[cur][bit] = record{kind: recordNode, val: len(nodes) - 1}
		}
		cur = nodes[cur][bit].val
	}
	return nodes, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) ctrl(typ int, size int) {
	var first byte
	if typ <= typeMap {
		first = byte(typ << 5)
	}

	var extra []byte
	switch {
	case size < 29:
		first |= byte(size)
	case size < 285:
		first |= 29
		extra = []byte{byte(size - 29)}
	case size < 65821:
		first |= 30
		s := size - 285
		extra = []byte{byte(s >> 8), byte(s)}
	default:
		first |= 31
		s := size - 65821
		extra = []byte{byte(s >> 16), byte(s >> 8), byte(s)}
	}

	e.buf = append(e.buf, first)
	if typ > typeMap {
		e.buf = append(e.buf, byte(typ-7))
	}
	e.buf = append(e.buf, extra...)
}

func (e *encoder) putUint(typ int, v uint64, size int) {
	e.ctrl(typ, size)
	for i := size - 1; i >= 0; i-- {
		e.buf = append(e.buf, byte(v>>(8*uint(i))))
	}
}

func (e *encoder) encode(v any) error {
	switch v := v.(type) {
	case Raw:
		e.buf = append(e.buf, v...)
	case string:
		e.ctrl(typeString, len(v))
		e.buf = append(e.buf, v...)
	case bool:
		if v {
			e.ctrl(typeBool, 1)
		} else {
			e.ctrl(typeBool, 0)
		}
	case float64:
		e.ctrl(typeFloat64, 8)
		e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
	case float32:
		e.ctrl(typeFloat32, 4)
		e.buf = binary.BigEndian.AppendUint32(e.buf, math.Float32bits(v))
	case []byte:
		e.ctrl(typeBytes, len(v))
		e.buf = append(e.buf, v...)
	case Uint16:
		e.putUint(typeUint16, uint64(v), 2)
	case Uint32:
		e.putUint(typeUint32, uint64(v), 4)
	case Uint64:
		e.putUint(typeUint64, uint64(v), 8)
	case Int32:
		e.putUint(typeInt32, uint64(uint32(v)), 4)
	case int:
		switch {
		case v >= 0 && uint64(v) <= math.MaxUint32:
			e.putUint(typeUint32, uint64(v), 4)
		case v < 0 && v >= math.MinInt32:
			e.putUint(typeInt32, uint64(uint32(int32(v))), 4)
		default:
			return fmt.Errorf("int %d does not fit uint32 or int32", v)
		}
	case *big.Int:
		if v.Sign() < 0 || v.BitLen() > 128 {
			return fmt.Errorf("%s does not fit uint128", v)
		}
		b := v.Bytes()
		e.ctrl(typeUint128, len(b))
		e.buf = append(e.buf, b...)
	case []any:
		e.ctrl(typeArray, len(v))
		for _, item := range v {
			if err := e.encode(item); err != nil {
				return err
			}
		}
	case Map:
		e.ctrl(typeMap, len(v))
		for _, kv := range v {
			if err := e.encode(kv.Key); err != nil {
				return err
			}
			if err := e.encode(kv.Value); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}
