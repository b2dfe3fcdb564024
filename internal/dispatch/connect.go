package dispatch

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jroosing/faith/internal/errkind"
	"github.com/jroosing/faith/internal/pool"
	"github.com/jroosing/faith/internal/resolver"
	"github.com/jroosing/faith/internal/transport"
)

// happyEyeballsDelay is the RFC 8305 staggered-start interval between
// successive connection attempts (§4.1 uses 250ms).
const happyEyeballsDelay = 250 * time.Millisecond

// h3StartDelay is how long the TCP/h2 attempt waits before starting
// when an h3 race is underway (§4.3: "TCP starts after a 50-250ms delay").
const h3StartDelay = 100 * time.Millisecond

func originOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// establishedConn is the outcome of obtainConnection: either a reused
// pooled connection or a freshly dialed one the caller must Insert.
type establishedConn struct {
	wire   wireConn
	pooled *pool.PooledConn // non-nil for a reused connection
	fresh  *transport.Connection
	proto  transport.ALPNClass
	key    pool.Key
	reused bool
}

// obtainConnection implements §4.7 step 6: check AltSvc, try the pool,
// otherwise Happy-Eyeballs-dial (optionally racing h3).
func (d *Dispatcher) obtainConnection(ctx context.Context, u *url.URL) (*establishedConn, error) {
	origin := originOf(u)
	tlsHash := transport.HashTLSConfig(d.TLSConfig)

	h2Key := pool.Key{Origin: origin, ALPN: "h2", TLSHash: tlsHash}
	if pc := d.Pool.Checkout(h2Key, true); pc != nil {
		return &establishedConn{wire: pc.Wire.(wireConn), pooled: pc, proto: transport.ALPNh2, key: h2Key, reused: true}, nil
	}
	h1Key := pool.Key{Origin: origin, ALPN: "h1", TLSHash: tlsHash}
	if pc := d.Pool.Checkout(h1Key, false); pc != nil {
		return &establishedConn{wire: pc.Wire.(wireConn), pooled: pc, proto: transport.ALPNh1, key: h1Key, reused: true}, nil
	}

	useTLS := u.Scheme == "https"
	host := u.Hostname()
	port := portOf(u)

	attemptH3 := false
	h3Host, h3Port := host, port
	if useTLS && d.H3Enabled {
		if rec, ok := d.AltSvc.Lookup(origin); ok {
			attemptH3 = true
			if rec.Host != "" {
				h3Host = rec.Host
			}
			if rec.Port != 0 {
				h3Port = uint16(rec.Port)
			}
		}
	}

	candidates, err := d.resolveOrdered(ctx, host)
	if err != nil {
		return nil, err
	}

	if attemptH3 {
		h3Candidates := candidates
		if h3Host != host {
			h3Candidates, err = d.resolveOrdered(ctx, h3Host)
			if err != nil {
				h3Candidates = candidates
			}
		}
		if fresh, raceErr := d.raceH3(ctx, origin, h3Host, h3Port, h3Candidates, host, port, candidates, tlsHash); raceErr == nil {
			fresh.key.Origin = origin
			return fresh, nil
		}
		// h3 lost the race or failed outright; fall through to a
		// plain h2/h1 dial. raceH3 already cooled the AltSvc record
		// down on an outright QUIC dial failure.
	}

	est, err := d.dialHappyEyeballs(ctx, candidates, host, port, transport.ALPNh2, useTLS, tlsHash)
	if err != nil {
		return nil, err
	}
	est.key.Origin = origin
	return est, nil
}

func portOf(u *url.URL) uint16 {
	if p := u.Port(); p != "" {
		if n, err := strconv.ParseUint(p, 10, 16); err == nil {
			return uint16(n)
		}
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

// resolveOrdered resolves host and orders the answers for Happy
// Eyeballs (§4.1).
func (d *Dispatcher) resolveOrdered(ctx context.Context, host string) ([]resolver.Answer, error) {
	answers, err := d.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, classifyDNSError(err)
	}
	return resolver.Order(answers, d.FamilyPref), nil
}

// dialHappyEyeballs races candidates per RFC 8305: staggered starts,
// first handshake success wins, the rest are cancelled. host is the
// original requested hostname, always used as SNI regardless of which
// resolved literal wins (§4.2).
func (d *Dispatcher) dialHappyEyeballs(ctx context.Context, candidates []resolver.Answer, host string, defaultPort uint16, alpn transport.ALPNClass, useTLS bool, tlsHash string) (*establishedConn, error) {
	if len(candidates) == 0 {
		return nil, errkind.New(errkind.Network, "no addresses to dial", nil)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		conn *transport.Connection
		err  error
	}
	results := make(chan attempt, len(candidates))
	var wg sync.WaitGroup
	for i, a := range candidates {
		i, a := i, a
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i > 0 {
				select {
				case <-time.After(time.Duration(i) * happyEyeballsDelay):
				case <-raceCtx.Done():
					return
				}
			}
			if raceCtx.Err() != nil {
				return
			}
			port := a.Port
			if port == 0 {
				port = defaultPort
			}
			candidate := transport.Candidate{Addr: a.Addr, Port: port, Host: host}
			conn, err := transport.Dial(raceCtx, candidate, transport.Config{ALPN: alpn, UseTLS: useTLS, TLSConfig: d.TLSConfig})
			select {
			case results <- attempt{conn, err}:
			default:
			}
		}()
	}
	go func() { wg.Wait(); close(results) }()

	var lastErr error
	for r := range results {
		if r.err == nil {
			cancel()
			return d.wrapFresh(r.conn, tlsHash), nil
		}
		lastErr = r.err
	}
	if lastErr == nil {
		lastErr = errkind.New(errkind.Network, "every candidate failed to connect", nil)
	}
	return nil, errkind.New(errkind.Network, "connect failed", lastErr)
}

// raceH3 races a QUIC dial against an h2/h1 dial per §4.3: QUIC starts
// immediately, TCP starts after h3StartDelay.
func (d *Dispatcher) raceH3(ctx context.Context, origin, h3Host string, h3Port uint16, h3Candidates []resolver.Answer, h2Host string, h2Port uint16, h2Candidates []resolver.Answer, tlsHash string) (*establishedConn, error) {
	if len(h3Candidates) == 0 {
		return nil, errkind.New(errkind.Network, "no address for h3 dial", nil)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type attempt struct {
		conn *transport.Connection
		err  error
	}
	results := make(chan attempt, 2)

	go func() {
		candidate := transport.Candidate{Addr: h3Candidates[0].Addr, Port: h3Port, Host: h3Host}
		conn, err := transport.Dial(raceCtx, candidate, transport.Config{ALPN: transport.ALPNh3, UseTLS: true, TLSConfig: d.TLSConfig})
		if err != nil {
			d.logger().Debug("h3 dial failed, cooling alt-svc record", "origin", origin, "error", err)
			d.AltSvc.MarkFailed(origin)
		}
		results <- attempt{conn, err}
	}()
	go func() {
		select {
		case <-time.After(h3StartDelay):
		case <-raceCtx.Done():
			return
		}
		est, err := d.dialHappyEyeballs(raceCtx, h2Candidates, h2Host, h2Port, transport.ALPNh2, true, tlsHash)
		if err != nil {
			results <- attempt{nil, err}
			return
		}
		results <- attempt{est.fresh, nil}
	}()

	var lastErr error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == nil && r.conn != nil {
			cancel()
			return d.wrapFresh(r.conn, tlsHash), nil
		}
		if r.err != nil {
			lastErr = r.err
		}
	}
	return nil, lastErr
}

// wrapFresh builds the protocol-specific wire wrapper for a freshly
// dialed transport.Connection. The returned key carries the ALPN class
// and TLS hash; obtainConnection fills in its Origin, and
// finalizeConnection inserts it into the pool (h1/h2) once response
// headers arrive.
func (d *Dispatcher) wrapFresh(conn *transport.Connection, tlsHash string) *establishedConn {
	key := pool.Key{ALPN: string(conn.Proto), TLSHash: tlsHash}

	switch conn.Proto {
	case transport.ALPNh2:
		h2c, err := newH2Conn(conn.TCPConn)
		if err != nil {
			// ALPN negotiated h2 but the preface failed; still return
			// a usable wireConn so the caller surfaces a RoundTrip
			// error instead of a nil dereference.
			return &establishedConn{wire: newH1Conn(conn.TCPConn), fresh: conn, proto: transport.ALPNh1, key: key}
		}
		return &establishedConn{wire: h2c, fresh: conn, proto: transport.ALPNh2, key: key}
	case transport.ALPNh3:
		return &establishedConn{wire: d.h3Transport(), fresh: conn, proto: transport.ALPNh3, key: key}
	default:
		return &establishedConn{wire: newH1Conn(conn.TCPConn), fresh: conn, proto: transport.ALPNh1, key: key}
	}
}

// h3Transport returns the Dispatcher's lazily built h3 RoundTripper.
func (d *Dispatcher) h3Transport() *h3RoundTripper {
	d.h3Once.Do(func() {
		d.h3RT = newH3RoundTripper(d.TLSConfig)
	})
	return d.h3RT
}

// classifyDNSError maps a raw resolver error to a stable Kind (§4.1 "Failure").
func classifyDNSError(err error) error {
	switch {
	case err == resolver.ErrDNSBlocked:
		return errkind.New(errkind.DnsBlocked, "host blocked by dns override", err)
	case err == context.DeadlineExceeded:
		return errkind.New(errkind.DnsTimeout, "dns lookup timed out", err)
	default:
		return errkind.New(errkind.DnsNotFound, "dns lookup failed", err)
	}
}
