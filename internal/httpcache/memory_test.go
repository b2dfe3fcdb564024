package httpcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore(10)
	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("key", Entry{Status: 200, Body: []byte("hi")}))
	e, ok, err := s.Get("key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, e.Status)
	assert.Equal(t, []byte("hi"), e.Body)
}

func TestMemoryStoreEviction(t *testing.T) {
	s := NewMemoryStore(2)
	require.NoError(t, s.Set("a", Entry{Status: 1}))
	require.NoError(t, s.Set("b", Entry{Status: 2}))
	require.NoError(t, s.Set("c", Entry{Status: 3})) // evicts "a"

	_, ok, _ := s.Get("a")
	assert.False(t, ok)
	_, ok, _ = s.Get("b")
	assert.True(t, ok)
	_, ok, _ = s.Get("c")
	assert.True(t, ok)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore(10)
	require.NoError(t, s.Set("key", Entry{Status: 200}))
	require.NoError(t, s.Delete("key"))
	_, ok, _ := s.Get("key")
	assert.False(t, ok)
}
