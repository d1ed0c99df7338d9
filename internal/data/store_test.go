package data

import (
	"context"
	"net"
	"net/netip"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasB/geolookup/internal/mmdbtest"
)

type recordingObserver struct {
	mu       sync.Mutex
	lookups  map[Outcome]int
	reloads  int
	failures int
	lastMeta Metadata
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{lookups: make(map[Outcome]int)}
}

func (o *recordingObserver) ObserveLookup(outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups[outcome]++
}

func (o *recordingObserver) ObserveReload(meta Metadata, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failures++
		return
	}
	o.reloads++
	o.lastMeta = meta
}

func countryOf(t *testing.T, s *Store, ip string) string {
	t.Helper()
	country, err := s.LookupCountry(net.ParseIP(ip))
	require.NoError(t, err)
	return country
}

func swedenNetworks() []mmdbtest.Network {
	return []mmdbtest.Network{{
		Prefix: netip.MustParsePrefix("2.125.160.0/24"),
		Data:   obj{{Key: "country", Value: obj{{Key: "iso_code", Value: "SE"}}}},
	}}
}

func TestStore_LookupAndObserve(t *testing.T) {
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)
	obs := newRecordingObserver()

	s, err := NewStore(path, WithObserver(obs))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ready())
	assert.Equal(t, path, s.Path())
	assert.Equal(t, "GeoLite2-Country", s.Metadata().DatabaseType)

	native, err := s.Get("2.125.160.216")
	require.NoError(t, err)
	assert.NotNil(t, native)

	native, err = s.Get("8.8.8.8")
	require.NoError(t, err)
	assert.Nil(t, native)

	_, err = s.Lookup("bogus")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Lookup("192.0.2.1")
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.lookups[OutcomeFound])
	assert.Equal(t, 2, obs.lookups[OutcomeNotFound])
	assert.Equal(t, 1, obs.lookups[OutcomeInvalid])
	assert.Equal(t, 1, obs.reloads)
}

func TestStore_OpenFailure(t *testing.T) {
	_, err := NewStore("/nonexistent/path.mmdb")
	assert.Equal(t, KindIO, KindOf(err))
}

func TestStore_Reload(t *testing.T) {
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)
	obs := newRecordingObserver()

	s, err := NewStore(path, WithObserver(obs))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "GB", countryOf(t, s, "2.125.160.216"))

	mmdbtest.Rewrite(t, path, testOptions, swedenNetworks()...)
	require.NoError(t, s.Reload())
	assert.Equal(t, "SE", countryOf(t, s, "2.125.160.216"))

	res, err := s.Lookup("2001:218::1")
	require.NoError(t, err)
	assert.False(t, res.Found, "records absent from the new file must be gone")

	obs.mu.Lock()
	assert.Equal(t, 2, obs.reloads)
	obs.mu.Unlock()
}

func TestStore_FailedReloadKeepsPreviousDatabase(t *testing.T) {
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)
	obs := newRecordingObserver()

	s, err := NewStore(path, WithObserver(obs))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.WriteFile(path, []byte("truncated"), 0o644))
	err = s.Reload()
	assert.Equal(t, KindIO, KindOf(err))

	assert.Equal(t, "GB", countryOf(t, s, "2.125.160.216"))

	obs.mu.Lock()
	assert.Equal(t, 1, obs.failures)
	obs.mu.Unlock()
}

func TestStore_Close(t *testing.T) {
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)
	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Error(t, s.Ready())
	assert.Equal(t, Metadata{}, s.Metadata())

	_, err = s.Lookup("2.125.160.216")
	assert.Equal(t, KindLookup, KindOf(err))
	_, err = s.LookupCountry(net.ParseIP("2.125.160.216"))
	assert.Equal(t, KindLookup, KindOf(err))
}

func TestStore_InvalidInputAfterClose(t *testing.T) {
	obs := newRecordingObserver()
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)
	s, err := NewStore(path, WithObserver(obs))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for _, ip := range []string{"not-an-ip", "", "1.2.3.4/24"} {
		_, err := s.Lookup(ip)
		assert.Equal(t, KindInvalidInput, KindOf(err), ip)
		assert.ErrorIs(t, err, ErrInvalidInput, ip)
	}
	assert.Equal(t, 3, obs.lookups[OutcomeInvalid])

	_, err = (&Store{}).Lookup("not-an-ip")
	assert.Equal(t, KindInvalidInput, KindOf(err))
	_, err = (&Store{}).Lookup("1.2.3.4")
	assert.Equal(t, KindLookup, KindOf(err))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := mmdbtest.WriteFile(t, testOptions, validNetworks()...)

	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	w, err := NewWatcher(s, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Replace atomically, the way database updaters usually do.
	buf, err := mmdbtest.Build(testOptions, swedenNetworks()...)
	require.NoError(t, err)
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, buf, 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool {
		country, err := s.LookupCountry(net.ParseIP("2.125.160.216"))
		return err == nil && country == "SE"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
