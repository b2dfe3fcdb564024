package altsvc

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveHeaderAndLookup(t *testing.T) {
	s := New()
	h := http.Header{"Alt-Svc": {`h3=":443"; ma=3600`}}
	s.ObserveHeader("https://example.com", h)

	r, ok := s.Lookup("https://example.com")
	require.True(t, ok)
	assert.Equal(t, 443, r.Port)
}

func TestLookupMissing(t *testing.T) {
	s := New()
	_, ok := s.Lookup("https://nowhere.example")
	assert.False(t, ok)
}

func TestLookupExpired(t *testing.T) {
	s := New()
	s.ObserveHeader("https://example.com", http.Header{"Alt-Svc": {`h3=":443"; ma=0`}})
	time.Sleep(time.Millisecond)

	_, ok := s.Lookup("https://example.com")
	assert.False(t, ok)
}

func TestMarkFailedCoolsDown(t *testing.T) {
	s := New()
	s.ObserveHeader("https://example.com", http.Header{"Alt-Svc": {`h3=":443"; ma=3600`}})
	s.MarkFailed("https://example.com")

	_, ok := s.Lookup("https://example.com")
	assert.False(t, ok, "a record cooling down must not be returned")
}

func TestSeedForcesLongLivedRecord(t *testing.T) {
	s := New()
	s.Seed("https://example.com", "example.com", 443)

	r, ok := s.Lookup("https://example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", r.Host)
}

func TestParseH3AltSvcIgnoresNonH3(t *testing.T) {
	s := New()
	s.ObserveHeader("https://example.com", http.Header{"Alt-Svc": {`h2=":443"; ma=3600`}})

	_, ok := s.Lookup("https://example.com")
	assert.False(t, ok)
}
