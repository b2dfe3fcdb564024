package httpcache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDiskStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	entry := Entry{
		Status:        200,
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Body:          []byte("hello disk cache"),
		RequestTime:   time.Now().Add(-time.Second),
		ResponseTime:  time.Now(),
		VaryOnHeaders: map[string]string{"Accept-Encoding": "gzip"},
	}
	require.NoError(t, s.Set("http://example.com/", entry))

	got, ok, err := s.Get("http://example.com/")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, entry.Status, got.Status)
	require.Equal(t, entry.Body, got.Body)
	require.Equal(t, "text/plain", got.Header.Get("Content-Type"))
	require.Equal(t, "gzip", got.VaryOnHeaders["Accept-Encoding"])
}

func TestDiskStoreDeleteAndMiss(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDiskStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set("k", Entry{Status: 200, Body: []byte("x")}))
	require.NoError(t, s.Delete("k"))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiskStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDiskStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", Entry{Status: 200, Body: []byte("persisted")}))
	require.NoError(t, s.Close())

	s2, err := OpenDiskStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	got, ok, err := s2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), got.Body)
}
