package resolver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/jroosing/faith/internal/dns"
)

// Recursive backend configuration defaults.
const (
	maxUpstreams             = 3
	upstreamRecoveryDuration = time.Hour

	DefaultCacheMaxEntries = 20000
	DefaultCacheMaxTTL     = 24 * time.Hour
	DefaultUDPPoolSize     = 64
	DefaultUDPTimeout      = 3 * time.Second
	DefaultTCPTimeout      = 5 * time.Second
	DefaultMaxRetries      = 2
)

// RecursiveBackend resolves hostnames by querying configured recursive
// DNS servers directly, in parallel for A and AAAA, rather than going
// through the platform resolver (§4.1).
//
// Features, carried over from a DNS-server-side forwarding resolver and
// repointed at client-side hostname resolution:
//   - positive-answer caching with TTL capped at a configurable ceiling
//   - singleflight deduplication of concurrent lookups for one host
//   - pooled UDP sockets per upstream, with TCP fallback on truncation
//   - upstream health tracking with automatic failover and recovery
//
// Unlike the server-side original, NXDOMAIN/SERVFAIL/NODATA responses
// are never cached: a miss simply isn't stored, so the next call retries
// the upstream.
type RecursiveBackend struct {
	upstreams []string

	udpTimeout time.Duration
	recvSize   int
	useTCP     bool
	tcpTimeout time.Duration
	maxRetries int

	cache *TTLCache[string, []Answer]

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall

	healthMu         sync.Mutex
	upstreamFailedAt map[string]time.Time

	poolMu   sync.Mutex
	udpPools map[string]chan *net.UDPConn
	poolSize int
}

type inflightCall struct {
	done chan struct{}
	resp []Answer
	err  error
}

// RecursiveOptions configures a RecursiveBackend.
type RecursiveOptions struct {
	Upstreams       []string      // Recursive server IPs (max 3 used)
	PoolSize        int           // UDP connections pooled per upstream
	CacheMaxEntries int           // Max cached hostnames
	CacheMaxTTL     time.Duration // TTL ceiling applied to cached answers
	UDPTimeout      time.Duration
	TCPTimeout      time.Duration
	MaxRetries      int
}

// NewRecursiveBackend builds a RecursiveBackend from opts, applying
// defaults for any zero-valued field.
func NewRecursiveBackend(opts RecursiveOptions) *RecursiveBackend {
	upstreams := opts.Upstreams
	if len(upstreams) == 0 {
		upstreams = []string{"1.1.1.1", "8.8.8.8"}
	}
	if len(upstreams) > maxUpstreams {
		upstreams = upstreams[:maxUpstreams]
	}
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultUDPPoolSize
	}
	cacheMaxEntries := opts.CacheMaxEntries
	if cacheMaxEntries <= 0 {
		cacheMaxEntries = DefaultCacheMaxEntries
	}
	cacheMaxTTL := opts.CacheMaxTTL
	if cacheMaxTTL <= 0 {
		cacheMaxTTL = DefaultCacheMaxTTL
	}
	udpTimeout := opts.UDPTimeout
	if udpTimeout <= 0 {
		udpTimeout = DefaultUDPTimeout
	}
	tcpTimeout := opts.TCPTimeout
	if tcpTimeout <= 0 {
		tcpTimeout = DefaultTCPTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RecursiveBackend{
		upstreams:        upstreams,
		udpTimeout:       udpTimeout,
		recvSize:         4096,
		useTCP:           true,
		tcpTimeout:       tcpTimeout,
		maxRetries:       maxRetries,
		cache:            NewTTLCache[string, []Answer](cacheMaxEntries, cacheMaxTTL),
		inflight:         map[string]*inflightCall{},
		upstreamFailedAt: map[string]time.Time{},
		udpPools:         map[string]chan *net.UDPConn{},
		poolSize:         poolSize,
	}
}

// Close releases all pooled UDP connections.
func (b *RecursiveBackend) Close() error {
	b.poolMu.Lock()
	defer b.poolMu.Unlock()
	for _, ch := range b.udpPools {
		close(ch)
		for c := range ch {
			_ = c.Close()
		}
	}
	b.udpPools = map[string]chan *net.UDPConn{}
	return nil
}

// Lookup resolves host against the configured recursive servers,
// querying A and AAAA in parallel and merging the results (§4.1 "Happy
// Eyeballs ordering" consumes the merged list).
func (b *RecursiveBackend) Lookup(ctx context.Context, host string) ([]Answer, error) {
	if v, age, ok := b.cache.GetWithAge(host); ok {
		return ageAdjust(v, age), nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	b.inflightMu.Lock()
	if call := b.inflight[host]; call != nil {
		b.inflightMu.Unlock()
		select {
		case <-call.done:
			return call.resp, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	b.inflight[host] = call
	b.inflightMu.Unlock()

	resp, ttl, err := b.queryBoth(ctx, host)
	call.resp = resp
	call.err = err
	close(call.done)

	b.inflightMu.Lock()
	delete(b.inflight, host)
	b.inflightMu.Unlock()

	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		b.cache.Set(host, resp, ttl)
	}
	return resp, nil
}

// queryBoth issues the A and AAAA queries concurrently and merges
// whichever succeed. It only fails if both queries fail.
func (b *RecursiveBackend) queryBoth(ctx context.Context, host string) ([]Answer, time.Duration, error) {
	type result struct {
		answers []Answer
		ttl     time.Duration
		err     error
	}
	results := make(chan result, 2)

	query := func(qtype dns.RecordType) {
		answers, ttl, err := b.queryAndCache(ctx, host, qtype)
		results <- result{answers: answers, ttl: ttl, err: err}
	}
	go query(dns.TypeAAAA)
	go query(dns.TypeA)

	var merged []Answer
	minTTL := time.Duration(0)
	var lastErr error
	for range 2 {
		r := <-results
		if r.err != nil {
			lastErr = r.err
			continue
		}
		merged = append(merged, r.answers...)
		if minTTL == 0 || (r.ttl > 0 && r.ttl < minTTL) {
			minTTL = r.ttl
		}
	}
	if len(merged) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("resolver: no addresses found for %q", host)
		}
		return nil, 0, lastErr
	}
	return merged, minTTL, nil
}

// queryAndCache performs one A or AAAA query with upstream failover.
func (b *RecursiveBackend) queryAndCache(ctx context.Context, host string, qtype dns.RecordType) ([]Answer, time.Duration, error) {
	txid, err := randomTxID()
	if err != nil {
		return nil, 0, err
	}
	req := dns.NewQuery(txid, host, qtype)
	reqBytes, err := req.Marshal()
	if err != nil {
		return nil, 0, err
	}

	startIdx := 0
	lastErr := error(nil)
	for j := range len(b.upstreams) {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		i := (startIdx + j) % len(b.upstreams)
		up := b.upstreams[i]
		if !b.canTryUpstream(up) {
			continue
		}

		respBytes, err := b.queryOne(ctx, up, reqBytes)
		if err != nil {
			lastErr = err
			b.markFailed(up)
			continue
		}
		b.markHealthy(up)

		resp, err := dns.ParsePacket(respBytes)
		if err != nil {
			lastErr = err
			continue
		}
		if dns.RCodeFromFlags(resp.Header.Flags) != dns.RCodeNoError {
			lastErr = fmt.Errorf("resolver: upstream %s returned rcode %d for %q", up, dns.RCodeFromFlags(resp.Header.Flags), host)
			continue
		}
		answers, ttl := extractAnswers(resp, qtype)
		return answers, ttl, nil
	}
	if lastErr != nil {
		return nil, 0, lastErr
	}
	return nil, 0, errors.New("resolver: no recursive servers available")
}

// extractAnswers pulls A/AAAA addresses and the minimum TTL out of a
// parsed response.
func extractAnswers(resp dns.Packet, qtype dns.RecordType) ([]Answer, time.Duration) {
	var out []Answer
	minTTL := uint32(0)
	for _, rr := range resp.Answers {
		switch qtype {
		case dns.TypeA:
			if s, ok := rr.IPv4(); ok {
				if addr, err := netip.ParseAddr(s); err == nil {
					out = append(out, Answer{Addr: addr, TTL: time.Duration(rr.TTL) * time.Second})
				}
			}
		case dns.TypeAAAA:
			if s, ok := rr.IPv6(); ok {
				if addr, err := netip.ParseAddr(s); err == nil {
					out = append(out, Answer{Addr: addr, TTL: time.Duration(rr.TTL) * time.Second})
				}
			}
		}
		if rr.TTL > 0 && (minTTL == 0 || rr.TTL < minTTL) {
			minTTL = rr.TTL
		}
	}
	return out, time.Duration(minTTL) * time.Second
}

func (b *RecursiveBackend) canTryUpstream(up string) bool {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	failedAt, ok := b.upstreamFailedAt[up]
	if !ok {
		return true
	}
	if time.Since(failedAt) >= upstreamRecoveryDuration {
		delete(b.upstreamFailedAt, up)
		return true
	}
	return false
}

func (b *RecursiveBackend) markFailed(up string) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	if _, ok := b.upstreamFailedAt[up]; !ok {
		b.upstreamFailedAt[up] = time.Now()
	}
}

func (b *RecursiveBackend) markHealthy(up string) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	delete(b.upstreamFailedAt, up)
}

// ensurePool returns or lazily creates the UDP connection pool for an
// upstream, pre-dialing up to poolSize connections.
func (b *RecursiveBackend) ensurePool(up string) (chan *net.UDPConn, error) {
	b.poolMu.Lock()
	if ch, ok := b.udpPools[up]; ok {
		b.poolMu.Unlock()
		return ch, nil
	}
	ch := make(chan *net.UDPConn, b.poolSize)
	b.udpPools[up] = ch
	b.poolMu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(up, "53"))
	if err != nil {
		return nil, err
	}
	for range b.poolSize {
		c, _ := net.DialUDP("udp", nil, addr)
		if c == nil {
			break
		}
		ch <- c
	}
	return ch, nil
}

// queryOne sends one query to up with retries on timeout, falling back
// to TCP when the UDP response is truncated.
func (b *RecursiveBackend) queryOne(ctx context.Context, up string, req []byte) ([]byte, error) {
	pool, err := b.ensurePool(up)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range b.maxRetries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := b.queryOneAttempt(ctx, pool, up, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTimeoutError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (b *RecursiveBackend) queryOneAttempt(ctx context.Context, pool chan *net.UDPConn, up string, req []byte) ([]byte, error) {
	c, fromPool, err := b.acquireConnection(ctx, pool, up)
	if err != nil {
		return nil, err
	}
	connOK := true
	defer func() { b.releaseConnection(c, pool, fromPool, connOK) }()

	deadline := time.Now().Add(b.udpTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = c.SetDeadline(deadline)

	if _, err := c.Write(req); err != nil {
		connOK = false
		return nil, err
	}

	buf := make([]byte, b.recvSize)
	n, err := c.Read(buf)
	if err != nil {
		connOK = false
		return nil, err
	}
	resp := buf[:n:n]

	if b.useTCP && dns.IsTruncated(resp) {
		return queryUpstreamTCP(ctx, req, up, b.tcpTimeout)
	}
	return resp, nil
}

func (b *RecursiveBackend) acquireConnection(ctx context.Context, pool chan *net.UDPConn, up string) (*net.UDPConn, bool, error) {
	select {
	case c := <-pool:
		return c, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(up, "53"))
		if err != nil {
			return nil, false, err
		}
		c, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			return nil, false, err
		}
		return c, false, nil
	}
}

func (b *RecursiveBackend) releaseConnection(c *net.UDPConn, pool chan *net.UDPConn, fromPool, connOK bool) {
	if !connOK || !fromPool {
		_ = c.Close()
		return
	}
	select {
	case pool <- c:
	default:
		_ = c.Close()
	}
}

// queryUpstreamTCP sends req over TCP with the 2-byte length-prefix
// framing DNS-over-TCP uses (RFC 1035 section 4.2.2).
func queryUpstreamTCP(ctx context.Context, req []byte, host string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, "53"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], messageLengthPrefix(len(req)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return nil, err
	}
	respLen := int(binary.BigEndian.Uint16(prefix[:]))
	if respLen <= 0 || respLen > 65535 {
		return nil, fmt.Errorf("resolver: TCP response length invalid: %d", respLen)
	}
	resp := make([]byte, respLen)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// messageLengthPrefix clamps n into the 2-byte length DNS-over-TCP's
// framing uses; n is always a just-marshaled dns.Packet so it never
// approaches math.MaxUint16, but the clamp keeps a pathological
// oversized query from wrapping into a bogus short length instead of
// failing loudly downstream.
func messageLengthPrefix(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(n) //nolint:gosec // clamped to valid range above
}

// ageAdjust shortens each answer's remaining TTL by age, leaving at
// least one second so an about-to-expire entry isn't handed out as
// permanent.
func ageAdjust(answers []Answer, age time.Duration) []Answer {
	if age <= 0 {
		return answers
	}
	out := make([]Answer, len(answers))
	for i, a := range answers {
		remaining := a.TTL - age
		if remaining < time.Second {
			remaining = time.Second
		}
		a.TTL = remaining
		out[i] = a
	}
	return out
}

// randomTxID generates a cryptographically random DNS transaction ID,
// so upstream responses can't be predicted and spoofed.
func randomTxID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("resolver: generating transaction id: %w", err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
