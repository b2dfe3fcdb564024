package bodystream

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainSettlesOnce(t *testing.T) {
	var settles int32
	h := New(io.NopCloser(strings.NewReader("hello")), func(error) { atomic.AddInt32(&settles, 1) })

	data, err := h.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, Settled, h.State())
	assert.Equal(t, int32(1), settles)

	_, err = h.Drain(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyDisturbed)
}

func TestCloneSharesBufferAndSettlesOnceTotal(t *testing.T) {
	var settles int32
	h := New(io.NopCloser(strings.NewReader("payload")), func(error) { atomic.AddInt32(&settles, 1) })

	clone, err := h.Clone()
	require.NoError(t, err)
	assert.Equal(t, Fresh, h.State())

	a, err := h.Drain(context.Background())
	require.NoError(t, err)
	b, err := clone.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "payload", string(a))
	assert.Equal(t, int32(1), settles, "clone pair draining the same stream settles exactly once")
}

func TestCloneRejectedOnceDisturbed(t *testing.T) {
	h := New(io.NopCloser(strings.NewReader("x")), nil)
	_, err := h.Drain(context.Background())
	require.NoError(t, err)

	_, err = h.Clone()
	assert.ErrorIs(t, err, ErrAlreadyDisturbed)
}

func TestStreamSettlesOnExhaustion(t *testing.T) {
	h := New(io.NopCloser(strings.NewReader("streamed")), nil)
	r, err := h.Stream()
	require.NoError(t, err)
	assert.Equal(t, Streaming, h.State())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))
	assert.Equal(t, Settled, h.State())
}

func TestDrainAfterStreamIsDisturbed(t *testing.T) {
	h := New(io.NopCloser(strings.NewReader("x")), nil)
	_, err := h.Stream()
	require.NoError(t, err)

	_, err = h.Drain(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyDisturbed)
}

func TestDiscardSettlesInBackground(t *testing.T) {
	settled := make(chan error, 1)
	h := New(io.NopCloser(strings.NewReader("abandoned")), func(err error) { settled <- err })

	h.Discard(context.Background())
	assert.Equal(t, Settled, h.State())
	require.NoError(t, <-settled)

	_, err := h.Drain(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyDisturbed)
}

func TestCloneReplaysPartiallyStreamedBytes(t *testing.T) {
	h := New(io.NopCloser(strings.NewReader("abcdef")), nil)
	clone, err := h.Clone()
	require.NoError(t, err)

	r, err := h.Stream()
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// The clone sees exactly what the streaming reader observed before
	// it was closed, no more.
	data, err := clone.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestConcurrentCloneDrainsSeeSameBytes(t *testing.T) {
	h := New(io.NopCloser(strings.NewReader("racy payload")), nil)
	clone, err := h.Clone()
	require.NoError(t, err)

	type drained struct {
		data []byte
		err  error
	}
	results := make(chan drained, 2)
	for _, hh := range []*Handle{h, clone} {
		hh := hh
		go func() {
			data, derr := hh.Drain(context.Background())
			results <- drained{data, derr}
		}()
	}
	first, second := <-results, <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	a, b := first.data, second.data
	assert.Equal(t, a, b)
	assert.Equal(t, "racy payload", string(a))
}

func TestEmptyHandleIsSettledAlready(t *testing.T) {
	h := NewEmpty()
	assert.Equal(t, Settled, h.State())
	data, err := h.Drain(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyDisturbed)
	assert.Nil(t, data)
}
