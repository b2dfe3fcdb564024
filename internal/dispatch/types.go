// Package dispatch implements the request dispatcher (C7): the state
// machine that merges policy, consults the cache and cookie jar,
// connects through the resolver/pool/transport stack, sends one
// request, follows redirects, and wraps the response in a body handle
// (§4.7).
package dispatch

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jroosing/faith/internal/bodystream"
	"github.com/jroosing/faith/internal/httpcache"
)

// CredentialsMode mirrors the Fetch `credentials` request option (§6).
type CredentialsMode int

const (
	// CredentialsSameOrigin is treated identically to Include (§9 Open
	// Questions: "same-origin treated as include").
	CredentialsSameOrigin CredentialsMode = iota
	CredentialsInclude
	CredentialsOmit
)

// RedirectMode mirrors the Fetch `redirect` option (§6).
type RedirectMode int

const (
	RedirectFollow RedirectMode = iota
	RedirectStop
	RedirectError
)

// Timeouts is the connect/read/total timeout triple (§3, §4.7).
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Total   time.Duration
}

// Request is the dispatcher's fully policy-merged view of one fetch
// call (§3 "Request record").
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// Body is nil for no body. A 307/308 redirect that keeps the method
	// hands this same reader to the next hop (buildRedirectRequest); it
	// is not rewound, so bytes the first hop consumed are not resent.
	Body    io.Reader
	BodyLen int64 // -1 when unknown (chunked / a stream without a declared length)
	Duplex  bool  // caller declared duplex: "half" for a streamed body

	CacheMode    httpcache.Mode
	RedirectMode RedirectMode
	Credentials  CredentialsMode
	Integrity    string
	Timeouts     Timeouts

	// Trace receives optional low-level connect/redirect notifications
	// for this request; nil disables tracing entirely.
	Trace *Trace
}

// Trace is a narrow set of diagnostic hooks a caller can attach to one
// request, in place of the gnuplot/TUI event stream the original
// benchmarking tooling consumed (out of scope here, see Non-goals).
// Every field is optional; nil callbacks are simply skipped.
type Trace struct {
	// OnConnect fires once a connection is obtained, before the request
	// is sent: proto is "h1"/"h2"/"h3", reused reports pool reuse.
	OnConnect func(proto string, reused bool)

	// OnRedirect fires before following a redirect hop.
	OnRedirect func(statusCode int, location string)
}

// Clone returns a shallow copy of r suitable for mutating into the next
// hop of a redirect chain.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Header = r.Header.Clone()
	return &cp
}

// PeerInfo is the connection's TLS identity, or the zero value for
// plaintext connections (§3 "Response exposed to caller").
type PeerInfo struct {
	Address     string
	Certificate []byte // leaf certificate DER; nil for plaintext
}

// Result is what the dispatcher hands back for one fetch call, after
// any redirects have been followed.
type Result struct {
	StatusCode int
	Status     string
	Header     http.Header
	URL        *url.URL
	Redirected bool
	Proto      string // "HTTP/1.1" | "HTTP/2.0" | "HTTP/3.0"
	Body       *bodystream.Handle
	Peer       PeerInfo
}
