package data

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/TomasB/geolookup/internal/value"
)

var errNotLoaded = errors.New("database is not loaded")

// Store serves lookups from a Reader that can be replaced at runtime.
// Readers themselves never change; Reload opens a fresh one from the same
// path and swaps it in.
type Store struct {
	path string
	opts options

	mu     sync.RWMutex
	reader *Reader
}

// NewStore opens the database at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, opts: buildOptions(opts)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database file the store reads from.
func (s *Store) Path() string { return s.path }

// Reload opens the database file again and swaps it in. On failure the
// previously loaded database keeps serving.
func (s *Store) Reload() error {
	r, err := openFile(s.path, s.opts)
	if s.opts.observer != nil {
		var meta Metadata
		if r != nil {
			meta = r.Metadata()
		}
		s.opts.observer.ObserveReload(meta, err)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.reader
	s.reader = r
	s.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Lookup parses ip and returns the record stored for it.
func (s *Store) Lookup(ip string) (Result, error) {
	start := time.Now()

	var res Result
	addr, err := ParseAddr(ip)
	if err == nil {
		s.mu.RLock()
		if s.reader == nil {
			err = lookupError("lookup", ip, errNotLoaded)
		} else {
			res, err = s.reader.LookupAddr(addr)
		}
		s.mu.RUnlock()
	}

	if s.opts.observer != nil {
		s.opts.observer.ObserveLookup(OutcomeOf(res, err), time.Since(start))
	}
	return res, err
}

// Get returns the record for ip as plain Go values, or nil when the
// database has no record for it.
func (s *Store) Get(ip string) (any, error) {
	res, err := s.Lookup(ip)
	if err != nil || !res.Found {
		return nil, err
	}
	return value.ToNative(res.Value), nil
}

// LookupCountry returns the ISO-3166 country code for the given IP address.
func (s *Store) LookupCountry(ip net.IP) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.reader == nil {
		return "", lookupError("country", ip.String(), errNotLoaded)
	}
	return s.reader.LookupCountry(ip)
}

// Metadata describes the database currently being served.
func (s *Store) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.reader == nil {
		return Metadata{}
	}
	return s.reader.Metadata()
}

// Ready reports an error while no database is being served.
func (s *Store) Ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.reader == nil {
		return errNotLoaded
	}
	return nil
}

// Close releases the current database. Lookups afterwards fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

var (
	_ CountryLookup = (*Store)(nil)
	_ RecordLookup  = (*Store)(nil)
)
