package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jroosing/faith/internal/altsvc"
	"github.com/jroosing/faith/internal/bodystream"
	"github.com/jroosing/faith/internal/cookiejar"
	"github.com/jroosing/faith/internal/decompress"
	"github.com/jroosing/faith/internal/errkind"
	"github.com/jroosing/faith/internal/httpcache"
	"github.com/jroosing/faith/internal/integrity"
	"github.com/jroosing/faith/internal/pool"
	"github.com/jroosing/faith/internal/resolver"
	"github.com/jroosing/faith/internal/stats"
	"github.com/jroosing/faith/internal/transport"
)

// Dispatcher is the core C7 state machine: one per Agent, composing
// every other component (§4.7).
type Dispatcher struct {
	Resolver *resolver.Resolver
	Pool     *pool.ConnPool
	AltSvc   *altsvc.Store
	Jar      *cookiejar.Jar
	Cache    httpcache.Store // nil disables the HTTP cache entirely

	Counters *stats.Counters
	Conns    *stats.Tracker

	TLSConfig    *tls.Config
	FamilyPref   resolver.FamilyPreference
	H3Enabled    bool
	MaxRedirects int

	// Logger receives diagnostic events; nil disables logging.
	Logger *slog.Logger

	h3Once sync.Once
	h3RT   *h3RoundTripper
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Do executes one fetch call end to end, following redirects per
// req.RedirectMode and returning the final Result (§4.7).
func (d *Dispatcher) Do(ctx context.Context, initial *Request) (*Result, error) {
	if initial.Timeouts.Total > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, initial.Timeouts.Total)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyAbort(ctx, err)
	}

	req := initial
	redirected := false
	maxRedirects := d.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	sent := false
	for hop := 0; ; hop++ {
		res, err := d.doOneHop(ctx, req, &sent)
		if err != nil {
			return nil, err
		}

		if !isRedirectStatus(res.StatusCode) || req.RedirectMode == RedirectStop {
			res.Redirected = redirected
			return res, nil
		}
		if req.RedirectMode == RedirectError {
			discardBody(ctx, res.Body)
			return nil, errkind.New(errkind.RedirectDisallowed, "redirect disallowed by request options", nil)
		}
		if hop+1 > maxRedirects {
			discardBody(ctx, res.Body)
			return nil, errkind.New(errkind.TooManyRedirects, "exceeded maximum redirect hops", nil)
		}

		next, ok := buildRedirectRequest(req, res)
		discardBody(ctx, res.Body)
		if !ok {
			res.Redirected = redirected
			return res, nil
		}
		d.logger().Debug("following redirect", "status", res.StatusCode, "from", req.URL.String(), "to", next.URL.String())
		if req.Trace != nil && req.Trace.OnRedirect != nil {
			req.Trace.OnRedirect(res.StatusCode, next.URL.String())
		}
		redirected = true
		req = next
	}
}

// doOneHop runs §4.7 steps 2-9 for a single request/response exchange
// (no redirect following — that's the caller's loop). *sent records
// whether an earlier hop of the same fetch already counted a request.
func (d *Dispatcher) doOneHop(ctx context.Context, req *Request, sent *bool) (*Result, error) {
	if req.Credentials == CredentialsOmit {
		req.URL.User = nil
	} else if req.URL.User != nil {
		// Credentials embedded in the URL are never sent as an
		// Authorization header automatically by this spec's surface;
		// only "omit" needs special handling (stripping).
		_ = req.URL.User
	}

	cacheable := d.Cache != nil && req.CacheMode != httpcache.ModeNoStore &&
		(req.Method == http.MethodGet || req.Method == http.MethodHead)

	var cacheKey string
	if cacheable {
		cacheKey = httpcache.Key(&http.Request{Method: req.Method, URL: req.URL})
		entry, found, _ := d.Cache.Get(cacheKey)
		decision := httpcache.Evaluate(req.CacheMode, entry, found, &http.Request{Method: req.Method, URL: req.URL, Header: req.Header})
		switch decision {
		case httpcache.DecisionUseCached:
			d.logger().Debug("serving cached response", "url", req.URL.String())
			return resultFromCacheEntry(req, entry), nil
		case httpcache.DecisionGatewayFault:
			return nil, errkind.New(errkind.NotCached, "only-if-cached: no stored entry", nil)
		case httpcache.DecisionRevalidate:
			d.logger().Debug("revalidating cached response", "url", req.URL.String())
			addValidators(req.Header, entry)
		}
	}

	if req.Credentials != CredentialsOmit {
		if cookie := d.Jar.CookieHeader(req.URL); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	} else {
		req.Header.Del("Cookie")
	}

	est, err := d.obtainConnection(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if req.Trace != nil && req.Trace.OnConnect != nil {
		req.Trace.OnConnect(string(est.proto), est.reused)
	}

	httpReq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		d.releaseOnSendFailure(est)
		return nil, err
	}

	if !*sent {
		d.Counters.RequestSent()
		*sent = true
	}
	httpResp, err := est.wire.RoundTrip(httpReq)
	if err != nil {
		d.releaseOnSendFailure(est)
		return nil, classifyNetworkError(ctx, err)
	}
	d.Counters.ResponseReceived()

	connRecordID := d.trackConnection(est)
	d.finalizeConnection(est)

	d.AltSvc.ObserveHeader(originOf(req.URL), httpResp.Header)

	storeToCache := cacheable && cacheStorable(req, httpResp)
	body, err := d.wrapBody(req, httpResp, est, connRecordID, cacheKey, storeToCache)
	if err != nil {
		return nil, err
	}

	if cacheable && httpResp.StatusCode == http.StatusNotModified && req.CacheMode != httpcache.ModeReload {
		return d.refreshCachedEntry(req, httpResp, cacheKey, body)
	}

	res := &Result{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		URL:        req.URL,
		Proto:      httpResp.Proto,
		Body:       body,
		Peer:       peerInfoFor(est),
	}

	if req.Credentials != CredentialsOmit {
		d.Jar.SetCookies(req.URL, httpResp.Header)
	}

	return res, nil
}

// wrapBody builds the body handle for httpResp: decompresses per
// Content-Encoding, ties settlement to the connection's release, and
// skips straight to an empty Settled handle for HEAD/204/304 (§4.8).
func (d *Dispatcher) wrapBody(req *Request, httpResp *http.Response, est *establishedConn, connID, cacheKey string, storeToCache bool) (*bodystream.Handle, error) {
	if req.Method == http.MethodHead || httpResp.StatusCode == http.StatusNoContent || httpResp.StatusCode == http.StatusNotModified || httpResp.Body == nil {
		d.releaseConnection(est, connID, nil)
		return bodystream.NewEmpty(), nil
	}

	decoded, err := decompress.NewReader(httpResp.Header.Get("Content-Encoding"), httpResp.Body)
	if err != nil {
		_ = httpResp.Body.Close()
		d.releaseConnection(est, connID, err)
		return nil, errkind.New(errkind.BodyStream, "decompressing response body", err)
	}

	var bodyReader io.Reader = decoded
	if req.Integrity != "" {
		entries, recognizedAny, perr := integrity.Parse(req.Integrity)
		if perr != nil || !recognizedAny {
			_ = decoded.Close()
			_ = httpResp.Body.Close()
			d.releaseConnection(est, connID, perr)
			return nil, errkind.New(errkind.InvalidIntegrity, "unrecognised integrity value", perr)
		}
		bodyReader = &integrityTeeReader{r: decoded, v: integrity.NewVerifier(entries)}
	}

	var cacheBuf *bytes.Buffer
	if storeToCache {
		cacheBuf = &bytes.Buffer{}
		bodyReader = io.TeeReader(bodyReader, cacheBuf)
	}

	d.Counters.BodyStarted()
	onSettle := func(settleErr error) {
		d.Counters.BodyFinished()
		d.releaseConnection(est, connID, settleErr)
		if cacheBuf != nil && settleErr == nil {
			d.storeCacheEntry(cacheKey, req, httpResp, cacheBuf.Bytes())
		}
	}
	return bodystream.New(chainedCloser{Reader: bodyReader, underlying: decoded, outer: httpResp.Body}, onSettle), nil
}

// chainedCloser closes both the decompression layer and the raw
// response body it wraps.
type chainedCloser struct {
	io.Reader
	underlying io.Closer
	outer      io.Closer
}

func (c chainedCloser) Close() error {
	err := c.underlying.Close()
	if cerr := c.outer.Close(); err == nil {
		err = cerr
	}
	return err
}

// integrityTeeReader feeds every byte read from the decompressed body
// into an SRI verifier and, once the body is fully read, surfaces a
// mismatch as a read error in place of the plain io.EOF bodystream
// would otherwise see — so a failed check lands on the same Drain/Stream
// call the caller is already waiting on (§4.8 "Integrity").
type integrityTeeReader struct {
	r io.Reader
	v *integrity.Verifier
}

func (t *integrityTeeReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		_, _ = t.v.Write(p[:n])
	}
	if err == io.EOF {
		if verr := t.v.Check(); verr != nil {
			return n, errkind.New(errkind.IntegrityMismatch, "response body failed integrity check", verr)
		}
	}
	return n, err
}

// discardBody abandons a response body the caller will never expose,
// e.g. the 3xx response body on a followed redirect.
func discardBody(ctx context.Context, h *bodystream.Handle) {
	if h == nil {
		return
	}
	h.Discard(ctx)
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func classifyAbort(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errkind.New(errkind.Timeout, "deadline exceeded before request started", err)
	}
	return errkind.New(errkind.Aborted, "request aborted before it started", err)
}

func classifyNetworkError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errkind.New(errkind.Timeout, "request timed out", err)
	}
	if ctx.Err() == context.Canceled {
		return errkind.New(errkind.Aborted, "request aborted", err)
	}
	return errkind.New(errkind.Network, "request failed", err)
}

func peerInfoFor(est *establishedConn) PeerInfo {
	if est.pooled != nil {
		return PeerInfo{Address: est.pooled.Conn.RemoteAddr().String()}
	}
	if est.fresh == nil {
		return PeerInfo{}
	}
	var cert []byte
	if len(est.fresh.PeerCertDER) > 0 {
		cert = est.fresh.PeerCertDER[0]
	}
	addr := ""
	if est.fresh.RemoteAddr != nil {
		addr = est.fresh.RemoteAddr.String()
	}
	return PeerInfo{Address: addr, Certificate: cert}
}

// trackConnection registers a fresh connection with the stats tracker
// and returns the ID future requests on this connection should report
// under (the pooled ID for reused connections).
func (d *Dispatcher) trackConnection(est *establishedConn) string {
	now := time.Now()
	if est.pooled != nil {
		id := est.pooled.ID
		var rtt, cwnd int64
		if r, c, ok := stats.ReadTCPInfo(est.pooled.Conn); ok {
			rtt, cwnd = r, c
		}
		d.Conns.Observe(stats.ConnectionRecord{
			ID: id, ConnectionType: connType(est.proto), LastSeen: now,
			RTTMicros: rtt, CongestionWindow: cwnd,
		})
		return id
	}

	id := est.fresh.ID
	var local, remote string
	var localPort, remotePort int
	if est.fresh.LocalAddr != nil {
		local, localPort = splitHostPort(est.fresh.LocalAddr.String())
	}
	if est.fresh.RemoteAddr != nil {
		remote, remotePort = splitHostPort(est.fresh.RemoteAddr.String())
	}
	d.Conns.Observe(stats.ConnectionRecord{
		ID: id, ConnectionType: connType(est.proto),
		LocalAddress: local, LocalPort: localPort,
		RemoteAddress: remote, RemotePort: remotePort,
		FirstSeen: now, LastSeen: now,
	})
	return id
}

func connType(proto transport.ALPNClass) string {
	if proto == transport.ALPNh3 {
		return "quic"
	}
	return "tcp"
}

func splitHostPort(s string) (string, int) {
	host, portStr, err := hostPortSplit(s)
	if err != nil {
		return s, 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port) //nolint:errcheck // best-effort telemetry
	return host, port
}

// finalizeConnection inserts a freshly dialed connection into the pool,
// already marked in-use for the request that just dialed it (h1/h2
// only; h3 connection reuse is delegated to the h3 RoundTripper itself,
// see wire.go).
func (d *Dispatcher) finalizeConnection(est *establishedConn) {
	if est.pooled != nil || est.fresh == nil {
		return
	}
	if est.proto == transport.ALPNh3 {
		return
	}
	pc := &pool.PooledConn{Conn: est.fresh.TCPConn, Proto: string(est.proto), ID: est.fresh.ID, Wire: est.wire}
	if est.proto == transport.ALPNh2 {
		pc.MaxStream = h2ConcurrencyLimit
	}
	d.Pool.InsertBusy(est.key, pc)
	est.pooled = pc
}

// releaseConnection returns or closes the connection per §4.4's
// correctness rule: a pool entry is returnable only once its prior
// response body has reached Settled.
func (d *Dispatcher) releaseConnection(est *establishedConn, connID string, err error) {
	if est.pooled != nil {
		if err != nil {
			d.Pool.Remove(est.key, est.pooled)
			d.Conns.Remove(connID)
			return
		}
		d.Pool.Return(est.pooled)
		return
	}
	if est.fresh != nil && est.proto == transport.ALPNh3 {
		if err != nil {
			d.Conns.Remove(connID)
		}
	}
}

// releaseOnSendFailure closes a connection that errored before a
// response was ever received (write failure, RoundTrip error before
// headers).
func (d *Dispatcher) releaseOnSendFailure(est *establishedConn) {
	if est.pooled != nil {
		d.Pool.Remove(est.key, est.pooled)
		return
	}
	if est.fresh != nil {
		_ = est.fresh.Close()
	}
}
