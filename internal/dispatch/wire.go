package dispatch

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/quic-go/quic-go/http3"
)

// wireConn is the protocol-agnostic interface the dispatcher sends a
// request over, whichever of h1/h2/h3 a connection negotiated.
type wireConn interface {
	RoundTrip(req *http.Request) (*http.Response, error)
}

// h1Conn is the raw HTTP/1.1 framer: there is no third-party h1 client
// library in the retrieval pack (golang.org/x/net only carries the h2
// framer), so this writes/reads wire frames with the standard library's
// own Request.Write/ReadResponse directly against the pooled net.Conn
// (see DESIGN.md for the stdlib justification).
type h1Conn struct {
	conn net.Conn
	br   *bufio.Reader
}

func newH1Conn(conn net.Conn) *h1Conn {
	return &h1Conn{conn: conn, br: bufio.NewReaderSize(conn, 4096)}
}

func (c *h1Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	stop := context.AfterFunc(req.Context(), func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()
	if err := req.Write(c.conn); err != nil {
		return nil, err
	}
	return http.ReadResponse(c.br, req)
}

func (c *h1Conn) Close() error { return c.conn.Close() }

// h2ConcurrencyLimit is the MaxStream value assigned to pooled h2
// connections. golang.org/x/net/http2.ClientConn enforces the peer's
// real SETTINGS_MAX_CONCURRENT_STREAMS itself; this cap only bounds how
// eagerly the pool hands the same connection out before dialing a
// second one for the same origin.
const h2ConcurrencyLimit = 100

// h2Conn wraps one golang.org/x/net/http2 ClientConn built over an
// already ALPN-negotiated net.Conn from our own transport+pool layer:
// h2 framing comes from the ecosystem library while connection
// lifecycle (dial, racing, idle reaping) stays ours.
type h2Conn struct {
	cc *http2.ClientConn
}

var h2Transport = &http2.Transport{} // stateless framer config shared by every ClientConn

func newH2Conn(conn net.Conn) (*h2Conn, error) {
	cc, err := h2Transport.NewClientConn(conn)
	if err != nil {
		return nil, err
	}
	return &h2Conn{cc: cc}, nil
}

func (c *h2Conn) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.cc.RoundTrip(req)
}

func (c *h2Conn) CanTakeNewRequest() bool { return c.cc.CanTakeNewRequest() }

func (c *h2Conn) Close() error { return c.cc.Close() }

// h3RoundTripper lazily builds one quic-go http3.Transport per
// Dispatcher. h3's connection/stream model doesn't map onto the TCP
// pool's checkout semantics (QUIC connections are 0-RTT-resumable and
// keyed by quic-go internally), so connection reuse for h3 is delegated
// to http3.Transport's own client cache rather than internal/pool; the
// Alt-Svc race in connect.go still uses our own transport.Dial to
// decide *whether* h3 is reachable before committing a request to it
// (see DESIGN.md).
type h3RoundTripper struct {
	mu        sync.Mutex
	rt        *http3.Transport
	tlsConfig *tls.Config
}

func newH3RoundTripper(tlsConfig *tls.Config) *h3RoundTripper {
	return &h3RoundTripper{tlsConfig: tlsConfig}
}

func (h *h3RoundTripper) transport() *http3.Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rt == nil {
		h.rt = &http3.Transport{TLSClientConfig: h.tlsConfig}
	}
	return h.rt
}

func (h *h3RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return h.transport().RoundTrip(req)
}

func (h *h3RoundTripper) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rt == nil {
		return nil
	}
	return h.rt.Close()
}
