package data

import (
	"net"
	"net/netip"
	"time"

	"github.com/TomasB/geolookup/internal/value"
)

// CountryLookup defines the interface for IP-to-country lookups.
type CountryLookup interface {
	// LookupCountry returns the ISO-3166 country code for the given IP address.
	// Returns an error if the lookup fails or the IP cannot be resolved.
	LookupCountry(ip net.IP) (string, error)

	// Close releases any resources held by the lookup implementation.
	Close() error
}

// RecordLookup returns whole records as generic value trees.
type RecordLookup interface {
	// Lookup parses ip and returns the record stored for it. An address
	// without a record yields Found == false and a nil error.
	Lookup(ip string) (Result, error)

	// Get is Lookup followed by value.ToNative. It returns nil, nil for an
	// address without a record.
	Get(ip string) (any, error)

	// Metadata describes the database currently being served.
	Metadata() Metadata
}

// Result is the outcome of a successful lookup call.
type Result struct {
	Value   value.Value
	Network netip.Prefix
	Found   bool
}

// Outcome summarises a lookup call for logging and metrics.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not_found"
	OutcomeInvalid  Outcome = "invalid_input"
	OutcomeFailed   Outcome = "error"
)

// OutcomeOf reduces the return values of Lookup to an Outcome.
func OutcomeOf(res Result, err error) Outcome {
	switch {
	case err != nil && KindOf(err) == KindInvalidInput:
		return OutcomeInvalid
	case err != nil:
		return OutcomeFailed
	case res.Found:
		return OutcomeFound
	default:
		return OutcomeNotFound
	}
}

// Metadata describes an opened database.
type Metadata struct {
	DatabaseType             string            `json:"database_type"`
	Description              map[string]string `json:"description"`
	Languages                []string          `json:"languages"`
	IPVersion                uint              `json:"ip_version"`
	BinaryFormatMajorVersion uint              `json:"binary_format_major_version"`
	BinaryFormatMinorVersion uint              `json:"binary_format_minor_version"`
	BuildTime                time.Time         `json:"build_time"`
	NodeCount                uint              `json:"node_count"`
	RecordSize               uint              `json:"record_size"`
}

// Observer is notified about lookups and reloads performed by a Store.
type Observer interface {
	ObserveLookup(outcome Outcome, elapsed time.Duration)
	ObserveReload(meta Metadata, err error)
}
