package data

import (
	"math"
	"math/big"
	"net/netip"
	"testing"

	"github.com/TomasB/geolookup/internal/mmdbtest"
	"github.com/TomasB/geolookup/internal/value"
)

type obj = mmdbtest.Map

const deepNesting = 300

var testOptions = mmdbtest.Options{
	DatabaseType: "GeoLite2-Country",
	Languages:    []string{"en", "de"},
	Description:  "geolookup test database",
	BuildEpoch:   1700000000,
}

func londonRecord() obj {
	return obj{
		{Key: "city", Value: obj{
			{Key: "geoname_id", Value: mmdbtest.Uint32(2643743)},
			{Key: "names", Value: obj{{Key: "en", Value: "London"}, {Key: "de", Value: "London"}, {Key: "ja", Value: "ロンドン"}}},
		}},
		{Key: "country", Value: obj{
			{Key: "iso_code", Value: "GB"},
			{Key: "geoname_id", Value: mmdbtest.Uint32(2635167)},
			{Key: "is_in_european_union", Value: false},
		}},
		{Key: "location", Value: obj{
			{Key: "accuracy_radius", Value: mmdbtest.Uint16(100)},
			{Key: "latitude", Value: 51.5142},
			{Key: "longitude", Value: -0.0931},
			{Key: "time_zone", Value: "Europe/London"},
		}},
		{Key: "subdivisions", Value: []any{
			obj{{Key: "iso_code", Value: "ENG"}},
			obj{{Key: "iso_code", Value: "LND"}},
		}},
	}
}

func londonValue() value.Value {
	f := func(k string, v value.Value) value.Field { return value.Field{Key: k, Value: v} }
	return value.Object(
		f("city", value.Object(
			f("geoname_id", value.Int(2643743)),
			f("names", value.Object(
				f("en", value.String("London")),
				f("de", value.String("London")),
				f("ja", value.String("ロンドン")),
			)),
		)),
		f("country", value.Object(
			f("iso_code", value.String("GB")),
			f("geoname_id", value.Int(2635167)),
			f("is_in_european_union", value.Bool(false)),
		)),
		f("location", value.Object(
			f("accuracy_radius", value.Int(100)),
			f("latitude", value.Float(51.5142)),
			f("longitude", value.Float(-0.0931)),
			f("time_zone", value.String("Europe/London")),
		)),
		f("subdivisions", value.Array(
			value.Object(f("iso_code", value.String("ENG"))),
			value.Object(f("iso_code", value.String("LND"))),
		)),
	)
}

func tokyoRecord() obj {
	return obj{
		{Key: "country", Value: obj{{Key: "iso_code", Value: "JP"}, {Key: "geoname_id", Value: mmdbtest.Uint32(1861060)}}},
		{Key: "location", Value: obj{{Key: "latitude", Value: 35.69}, {Key: "longitude", Value: 139.69}}},
	}
}

func numericRecord() obj {
	return obj{
		{Key: "uint16", Value: mmdbtest.Uint16(math.MaxUint16)},
		{Key: "uint32", Value: mmdbtest.Uint32(math.MaxUint32)},
		{Key: "int32", Value: mmdbtest.Int32(math.MinInt32)},
		{Key: "uint64_small", Value: mmdbtest.Uint64(1 << 62)},
		{Key: "uint64_big", Value: mmdbtest.Uint64(math.MaxUint64)},
		{Key: "uint128_small", Value: big.NewInt(12345)},
		{Key: "uint128_big", Value: new(big.Int).Lsh(big.NewInt(1), 100)},
		{Key: "double", Value: 1.0},
		{Key: "float", Value: float32(0.5)},
		{Key: "bytes", Value: []byte{0x00, 0xff}},
		{Key: "flag", Value: true},
		{Key: "empty_map", Value: obj{}},
		{Key: "empty_array", Value: []any{}},
	}
}

func nested(depth int) any {
	var v any = "bottom"
	for i := 0; i < depth; i++ {
		v = []any{v}
	}
	return v
}

func validNetworks() []mmdbtest.Network {
	return []mmdbtest.Network{
		{Prefix: netip.MustParsePrefix("2.125.160.0/24"), Data: londonRecord()},
		{Prefix: netip.MustParsePrefix("2001:218::/32"), Data: tokyoRecord()},
		{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Data: numericRecord()},
		{Prefix: netip.MustParsePrefix("172.16.0.0/12"), Data: nested(deepNesting)},
	}
}

func brokenNetworks() []mmdbtest.Network {
	return append(validNetworks(),
		// A map whose first key is a uint16 rather than a string.
		mmdbtest.Network{Prefix: netip.MustParsePrefix("192.0.2.0/24"), Data: mmdbtest.Raw{0xE1, 0xA1, 0x01, 0x42, 'x', 'y'}},
		mmdbtest.Network{Prefix: netip.MustParsePrefix("198.51.100.0/24"), Data: nested(600)},
	)
}

func openFixture(t *testing.T, networks []mmdbtest.Network, opts ...Option) *Reader {
	t.Helper()

	path := mmdbtest.WriteFile(t, testOptions, networks...)
	r, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
