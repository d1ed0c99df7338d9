package data

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"github.com/TomasB/geolookup/internal/value"
)

var errZonedAddress = errors.New("zoned addresses are not supported")

// Option configures Open, FromBytes and NewStore.
type Option func(*options)

type options struct {
	verify   bool
	observer Observer
}

// WithVerify runs the decoder's full structural verification at open time.
// It walks the entire search tree and data section, so it is slow on large
// databases.
func WithVerify() Option {
	return func(o *options) { o.verify = true }
}

// WithObserver reports lookups and reloads of a Store to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Reader is an opened MaxMind DB. It is immutable after construction and
// safe for concurrent lookups until Close is called.
type Reader struct {
	db       *maxminddb.Reader
	meta     Metadata
	source   string
	geo      *geoip2.Reader
	geoError error
}

// Open reads the database file at path into memory and opens it.
func Open(path string, opts ...Option) (*Reader, error) {
	return openFile(path, buildOptions(opts))
}

func openFile(path string, o options) (*Reader, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, openError(path, err)
	}
	return fromBytes(path, buf, o)
}

// FromBytes opens a database already held in memory. buf must not be
// modified afterwards.
func FromBytes(buf []byte, opts ...Option) (*Reader, error) {
	return fromBytes("", buf, buildOptions(opts))
}

func fromBytes(source string, buf []byte, o options) (*Reader, error) {
	db, err := maxminddb.FromBytes(buf)
	if err != nil {
		return nil, openError(source, err)
	}
	if o.verify {
		if err := db.Verify(); err != nil {
			db.Close()
			return nil, openError(source, fmt.Errorf("verification failed: %w", err))
		}
	}

	r := &Reader{
		db:     db,
		meta:   convertMetadata(db.Metadata),
		source: source,
	}

	// Typed country lookups need a database type geoip2 knows about; other
	// databases still serve generic records.
	geo, err := geoip2.FromBytes(buf)
	if err != nil {
		if geo != nil {
			geo.Close()
		}
		r.geoError = err
	} else {
		r.geo = geo
	}

	return r, nil
}

// Source returns the path the database was opened from, if any.
func (r *Reader) Source() string { return r.source }

// Metadata describes the database.
func (r *Reader) Metadata() Metadata { return r.meta }

// ParseAddr validates an IP address string. Ports, CIDR suffixes, zones and
// host names are rejected. IPv4-mapped IPv6 addresses are unmapped.
func ParseAddr(ip string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, invalidInputError(ip, err)
	}
	if addr.Zone() != "" {
		return netip.Addr{}, invalidInputError(ip, errZonedAddress)
	}
	return addr.Unmap(), nil
}

// Lookup parses ip and returns the record stored for it.
func (r *Reader) Lookup(ip string) (Result, error) {
	addr, err := ParseAddr(ip)
	if err != nil {
		return Result{}, err
	}
	return r.LookupAddr(addr)
}

// LookupAddr returns the record stored for addr.
func (r *Reader) LookupAddr(addr netip.Addr) (Result, error) {
	var b valueBuilder
	network, ok, err := r.db.LookupNetwork(net.IP(addr.AsSlice()), &b)
	if err != nil {
		return Result{}, lookupError("lookup", addr.String(), err)
	}

	res := Result{Network: toPrefix(network)}
	if !ok {
		return res, nil
	}

	v, err := b.result()
	if err != nil {
		return Result{}, lookupError("lookup", addr.String(), err)
	}
	res.Value = v
	res.Found = true
	return res, nil
}

// Get returns the record for ip as plain Go values, or nil when the
// database has no record for it.
func (r *Reader) Get(ip string) (any, error) {
	res, err := r.Lookup(ip)
	if err != nil || !res.Found {
		return nil, err
	}
	return value.ToNative(res.Value), nil
}

// LookupCountry returns the ISO-3166 country code for the given IP address.
func (r *Reader) LookupCountry(ip net.IP) (string, error) {
	if r.geo == nil {
		return "", lookupError("country", ip.String(),
			fmt.Errorf("database type %q does not support country lookups: %w", r.meta.DatabaseType, r.geoError))
	}
	record, err := r.geo.Country(ip)
	if err != nil {
		return "", lookupError("country", ip.String(), fmt.Errorf("country lookup failed: %w", err))
	}
	return record.Country.IsoCode, nil
}

// Verify runs the decoder's structural verification.
func (r *Reader) Verify() error {
	if err := r.db.Verify(); err != nil {
		return openError(r.source, fmt.Errorf("verification failed: %w", err))
	}
	return nil
}

// Close releases the reader resources. No lookup may be running or started
// afterwards.
func (r *Reader) Close() error {
	if r.geo != nil {
		r.geo.Close()
	}
	return r.db.Close()
}

func toPrefix(n *net.IPNet) netip.Prefix {
	if n == nil {
		return netip.Prefix{}
	}
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}
	}
	ones, _ := n.Mask.Size()
	if addr.Is4In6() && ones >= 96 {
		return netip.PrefixFrom(addr.Unmap(), ones-96)
	}
	return netip.PrefixFrom(addr, ones)
}

func convertMetadata(m maxminddb.Metadata) Metadata {
	return Metadata{
		DatabaseType:             m.DatabaseType,
		Description:              m.Description,
		Languages:                m.Languages,
		IPVersion:                m.IPVersion,
		BinaryFormatMajorVersion: m.BinaryFormatMajorVersion,
		BinaryFormatMinorVersion: m.BinaryFormatMinorVersion,
		BuildTime:                time.Unix(int64(m.BuildEpoch), 0).UTC(),
		NodeCount:                m.NodeCount,
		RecordSize:               m.RecordSize,
	}
}

var (
	_ CountryLookup = (*Reader)(nil)
	_ RecordLookup  = (*Reader)(nil)
)
