// Package bodystream implements the response body engine (C8): a
// shared, cloneable, lazy byte stream with a strict one-shot
// disturbance state machine (§4.8, §3 "Invariants", § GLOSSARY
// "Body handle / SharedStream").
//
// A SharedStream is the single owner of the underlying connection
// reader (post-decompression, integrity-teed); any number of Handles
// may be created against it via Clone, but only the first one to
// actually consume bytes performs network I/O — later consumers reuse
// the buffered result. Each Handle independently tracks Fresh ->
// Streaming|Settled per §3's "at most once per handle" rule.
package bodystream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// scratchBuffers recycles the intermediate read buffer fill() copies
// decompressed body bytes through, so a high request rate doesn't
// allocate and discard a fresh 32KiB slice per response.
var scratchBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, 32*1024)
		return &b
	},
}

// State is a Handle's position in the disturbance state machine.
type State int

const (
	// Fresh: never observed by drain, stream, or clone.
	Fresh State = iota
	// Streaming: a caller holds a live reader; not yet exhausted.
	Streaming
	// Settled: fully buffered (drained) or discarded.
	Settled
)

// ErrAlreadyDisturbed is returned by Drain/Stream/Clone once a Handle
// has left the Fresh state.
var ErrAlreadyDisturbed = errors.New("bodystream: response already disturbed")

// sharedStream owns the single underlying reader for one response body.
// Exactly one consumer actually reads it (claims raw); every other
// consumer waits for that read to finish and then replays the result.
type sharedStream struct {
	mu   sync.Mutex
	raw  io.ReadCloser // nil once claimed or settled
	buf  []byte
	err  error
	done bool

	doneCh chan struct{}

	settleOnce sync.Once
	onSettle   func(err error) // called exactly once, when the stream reaches done
}

// New wraps raw (already decompressed, already integrity-teed if the
// request carried an `integrity` option) as a SharedStream backing one
// or more cloned Handles. onSettle fires exactly once, whether the
// stream settles via a full drain, a fully-read stream, or an abandoned
// discard; it is the hook the dispatcher uses to bump bodiesFinished
// and return/close the owning connection.
func New(raw io.ReadCloser, onSettle func(err error)) *Handle {
	return &Handle{shared: &sharedStream{
		raw:      raw,
		doneCh:   make(chan struct{}),
		onSettle: onSettle,
	}}
}

// NewEmpty returns a Handle already Settled with zero bytes, for HEAD
// responses and 204/304 (§4.8): accessing it never counts as a started
// body and never touches the network.
func NewEmpty() *Handle {
	ch := make(chan struct{})
	close(ch)
	return &Handle{
		state: Settled,
		shared: &sharedStream{
			done:   true,
			doneCh: ch,
		},
	}
}

// fill drains raw to completion (or waits for whoever already claimed
// it to finish), returning the full buffered body and any terminal
// error exactly once per SharedStream.
func (s *sharedStream) fill(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.done {
		buf, err := s.buf, s.err
		s.mu.Unlock()
		return buf, err
	}
	if s.raw == nil {
		// Another consumer already claimed raw; wait for it.
		s.mu.Unlock()
		select {
		case <-s.doneCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		buf, err := s.buf, s.err
		s.mu.Unlock()
		return buf, err
	}
	raw := s.raw
	s.raw = nil
	s.mu.Unlock()

	data, readErr := readAllPooled(raw)
	closeErr := raw.Close()
	if readErr == nil {
		readErr = closeErr
	}
	s.finish(data, readErr)
	return data, readErr
}

// readAllPooled drains r into a freshly-sized result, using a pooled
// scratch buffer for the copy loop instead of io.ReadAll's internal
// buffer (which it reallocates and discards every call).
func readAllPooled(r io.Reader) ([]byte, error) {
	scratch := scratchBuffers.Get().(*[]byte)
	defer scratchBuffers.Put(scratch)

	var out bytes.Buffer
	for {
		n, err := r.Read(*scratch)
		if n > 0 {
			out.Write((*scratch)[:n])
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return out.Bytes(), err
		}
	}
}

// finish records the terminal buffer/error and fires onSettle exactly
// once. Safe to call from either fill or a streamReader's EOF/Close.
func (s *sharedStream) finish(data []byte, err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.buf, s.err, s.done = data, err, true
	s.mu.Unlock()
	close(s.doneCh)
	s.settleOnce.Do(func() {
		if s.onSettle != nil {
			s.onSettle(err)
		}
	})
}

// openStream returns a reader over raw for a Stream() caller, claiming
// raw exclusively if no one has yet, or replaying the buffered result
// once the stream has settled.
func (s *sharedStream) openStream() io.ReadCloser {
	s.mu.Lock()
	if s.done {
		buf, err := s.buf, s.err
		s.mu.Unlock()
		return &errAtEOF{r: bytes.NewReader(buf), err: err}
	}
	if s.raw == nil {
		s.mu.Unlock()
		<-s.doneCh
		s.mu.Lock()
		buf, err := s.buf, s.err
		s.mu.Unlock()
		return &errAtEOF{r: bytes.NewReader(buf), err: err}
	}
	raw := s.raw
	s.raw = nil
	s.mu.Unlock()
	return &streamReader{shared: s, raw: raw}
}

// errAtEOF replays a buffered result, surfacing a stored terminal error
// in place of the plain io.EOF a bytes.Reader would otherwise give.
type errAtEOF struct {
	r   *bytes.Reader
	err error
}

func (e *errAtEOF) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF && e.err != nil {
		return n, e.err
	}
	return n, err
}

func (e *errAtEOF) Close() error { return nil }

// streamReader is the live, claimed reader returned from Stream(); it
// accumulates bytes as they're read so that, if the caller never reads
// it to EOF, whatever was read is still available to a later clone once
// finish fires (on Close or EOF).
type streamReader struct {
	shared *sharedStream
	raw    io.ReadCloser
	acc    []byte
	closed bool
}

func (r *streamReader) Read(p []byte) (int, error) {
	n, err := r.raw.Read(p)
	if n > 0 {
		r.acc = append(r.acc, p[:n]...)
	}
	if err != nil {
		terminal := err
		if terminal == io.EOF {
			terminal = nil
		}
		r.shared.finish(r.acc, terminal)
	}
	return n, err
}

func (r *streamReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.raw.Close()
	r.shared.finish(r.acc, err)
	return err
}

// Handle is one caller-visible view of a response body, with its own
// Fresh/Streaming/Settled state (§3 "Invariants": transitions occur at
// most once per handle, independent of sibling clones).
type Handle struct {
	mu     sync.Mutex
	state  State
	shared *sharedStream
}

// State reports the handle's current disturbance state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Drain consumes the entire body (or reuses an already-settled sibling
// clone's buffer) and transitions this handle to Settled.
func (h *Handle) Drain(ctx context.Context) ([]byte, error) {
	h.mu.Lock()
	if h.state != Fresh {
		h.mu.Unlock()
		return nil, ErrAlreadyDisturbed
	}
	h.state = Settled
	h.mu.Unlock()
	return h.shared.fill(ctx)
}

// Stream transitions this handle to Streaming and returns a reader tied
// to the shared stream; the handle settles when the reader hits EOF or
// is explicitly closed.
func (h *Handle) Stream() (io.ReadCloser, error) {
	h.mu.Lock()
	if h.state != Fresh {
		h.mu.Unlock()
		return nil, ErrAlreadyDisturbed
	}
	h.state = Streaming
	h.mu.Unlock()
	return &trackingReadCloser{ReadCloser: h.shared.openStream(), h: h}, nil
}

// Discard abandons the handle without the caller ever observing it:
// the body is drained in the background (up to the caller's ctx) so the
// connection can still be returned once Settled; if ctx expires first,
// the caller is expected to close the underlying connection instead of
// returning it (the dispatcher makes that call, not this package).
func (h *Handle) Discard(ctx context.Context) {
	h.mu.Lock()
	if h.state != Fresh {
		h.mu.Unlock()
		return
	}
	h.state = Settled
	h.mu.Unlock()
	go h.shared.fill(ctx)
}

// Clone duplicates the handle into a second, independently-tracked
// Fresh handle sharing the same underlying stream (§3 "Invariants":
// "Cloning produces two handles sharing one underlying byte buffer").
// The source handle is not disturbed by cloning.
func (h *Handle) Clone() (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Fresh {
		return nil, ErrAlreadyDisturbed
	}
	return &Handle{shared: h.shared}, nil
}

// trackingReadCloser settles its Handle on the first error (including
// io.EOF) or explicit Close.
type trackingReadCloser struct {
	io.ReadCloser
	h        *Handle
	finished bool
}

func (t *trackingReadCloser) Read(p []byte) (int, error) {
	n, err := t.ReadCloser.Read(p)
	if err != nil {
		t.settle()
	}
	return n, err
}

func (t *trackingReadCloser) Close() error {
	t.settle()
	return t.ReadCloser.Close()
}

func (t *trackingReadCloser) settle() {
	if t.finished {
		return
	}
	t.finished = true
	t.h.mu.Lock()
	t.h.state = Settled
	t.h.mu.Unlock()
}
