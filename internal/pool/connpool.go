package pool

import (
	"net"
	"sync"
	"time"
)

// Key identifies a pool bucket: the origin (scheme+host+port), the ALPN
// protocol class negotiated, and a hash of the TLS config used to dial,
// so two requests to the same host under different client certs or
// cipher policy never share a socket.
type Key struct {
	Origin  string
	ALPN    string
	TLSHash string
}

// PooledConn wraps a dialed connection with the bookkeeping the pool
// needs to decide whether it can be handed out again.
type PooledConn struct {
	Conn      net.Conn
	Proto     string // "h1", "h2", "h3"
	MaxStream int    // peer-advertised concurrent stream limit; 1 for h1
	ID        string // opaque id surfaced by agent.connections()

	// Wire is the protocol-level sender the dispatcher built over Conn
	// (an h1 framer, an *http2.ClientConn, ...). The pool never looks
	// inside it; it only carries it between checkouts so the dispatcher
	// doesn't re-wrap the same socket on every reuse.
	Wire any

	mu          sync.Mutex
	idleSince   time.Time
	liveStreams int
}

// acquire marks one more live stream/request on this connection. For h1
// this is always the 0->1 transition; for h2/h3 it may be called
// repeatedly up to MaxStream.
func (c *PooledConn) acquire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveStreams++
	c.idleSince = time.Time{}
}

// release marks a stream/request done. A connection becomes idle again
// once liveStreams returns to 0.
func (c *PooledConn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveStreams--
	if c.liveStreams <= 0 {
		c.liveStreams = 0
		c.idleSince = time.Now()
	}
}

func (c *PooledConn) canShare() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Proto != "h1" && c.liveStreams < c.MaxStream
}

func (c *PooledConn) isIdleFor(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveStreams == 0 && !c.idleSince.IsZero() && time.Since(c.idleSince) >= d
}

// ConnPool is a keyed cache of connections the dispatcher checks out
// before dialing a fresh one, generalizing the UDP-socket pooling the
// teacher's recursive-resolver forwarder used (one channel of sockets
// per upstream) into a per-origin bucket of live h1/h2/h3 connections
// with LRU eviction and idle reaping.
type ConnPool struct {
	mu             sync.Mutex
	buckets        map[Key][]*PooledConn
	maxPerKey      int
	maxTotal       int
	total          int
	idleTimeout    time.Duration
	onEvictedClose func(*PooledConn)
}

// NewConnPool builds a ConnPool. maxPerKey and maxTotal <= 0 mean
// unlimited; idleTimeout <= 0 uses the spec default of 90s.
func NewConnPool(maxPerKey, maxTotal int, idleTimeout time.Duration) *ConnPool {
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}
	return &ConnPool{
		buckets:     map[Key][]*PooledConn{},
		maxPerKey:   maxPerKey,
		maxTotal:    maxTotal,
		idleTimeout: idleTimeout,
	}
}

// Checkout returns an idle h1 connection exclusively, or an h2/h3
// connection with spare stream capacity, for key. Returns nil if none
// qualifies; the caller dials a fresh connection and calls Insert.
func (p *ConnPool) Checkout(key Key, canMultiplex bool) *PooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.buckets[key]
	for i := len(conns) - 1; i >= 0; i-- {
		c := conns[i]
		if c.Proto == "h1" {
			if c.isIdleFor(0) {
				c.acquire()
				p.buckets[key] = moveToFront(conns, i)
				return c
			}
			continue
		}
		if canMultiplex && c.canShare() {
			c.acquire()
			p.buckets[key] = moveToFront(conns, i)
			return c
		}
	}
	return nil
}

// moveToFront moves conns[i] to the front, preserving the rest of the
// LRU order (front = most recently used).
func moveToFront(conns []*PooledConn, i int) []*PooledConn {
	c := conns[i]
	out := make([]*PooledConn, 0, len(conns))
	out = append(out, c)
	out = append(out, conns[:i]...)
	out = append(out, conns[i+1:]...)
	return out
}

// Insert adds a freshly dialed connection to key's bucket, evicting the
// least-recently-used entry if the per-key or total cap is exceeded.
func (p *ConnPool) Insert(key Key, c *PooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	maxStream := c.MaxStream
	if c.Proto == "h1" || maxStream <= 0 {
		maxStream = 1
	}
	c.MaxStream = maxStream
	c.idleSince = time.Now()

	p.buckets[key] = append([]*PooledConn{c}, p.buckets[key]...)
	p.total++

	p.evictOverflow(key)
}

// InsertBusy adds a freshly dialed connection already marked in-use for
// the request that triggered the dial, so the caller can Return/Remove
// it exactly like a checked-out connection instead of racing a
// concurrent Checkout for the socket it just opened.
func (p *ConnPool) InsertBusy(key Key, c *PooledConn) {
	p.mu.Lock()
	maxStream := c.MaxStream
	if c.Proto == "h1" || maxStream <= 0 {
		maxStream = 1
	}
	c.MaxStream = maxStream
	p.buckets[key] = append([]*PooledConn{c}, p.buckets[key]...)
	p.total++
	p.evictOverflow(key)
	p.mu.Unlock()
	c.acquire()
}

// Return signals that conn's current stream/request has finished. Per
// §4.4, a connection is only returnable once its response body has
// reached Settled (the dispatcher/body engine enforce that ordering;
// this method only updates idle bookkeeping).
func (p *ConnPool) Return(conn *PooledConn) {
	conn.release()
}

// Remove drops conn from the pool and closes it, e.g. after a protocol
// error or reset.
func (p *ConnPool) Remove(key Key, conn *PooledConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conns := p.buckets[key]
	for i, c := range conns {
		if c == conn {
			p.buckets[key] = append(conns[:i], conns[i+1:]...)
			p.total--
			break
		}
	}
	_ = conn.Conn.Close()
}

// evictOverflow drops the least-recently-used idle connections in key's
// bucket (and, if still over maxTotal, anywhere) until within caps.
// Must be called with p.mu held.
func (p *ConnPool) evictOverflow(key Key) {
	if p.maxPerKey > 0 {
		for len(p.buckets[key]) > p.maxPerKey {
			p.evictOneFrom(key)
		}
	}
	if p.maxTotal > 0 {
		for p.total > p.maxTotal {
			evicted := false
			for k := range p.buckets {
				if p.evictOneFrom(k) {
					evicted = true
					break
				}
			}
			if !evicted {
				break
			}
		}
	}
}

// evictOneFrom closes and removes the oldest idle connection in key's
// bucket. Returns false if every connection in the bucket is in use.
func (p *ConnPool) evictOneFrom(key Key) bool {
	conns := p.buckets[key]
	for i := len(conns) - 1; i >= 0; i-- {
		c := conns[i]
		if c.isIdleFor(0) {
			p.buckets[key] = append(conns[:i], conns[i+1:]...)
			p.total--
			_ = c.Conn.Close()
			if p.onEvictedClose != nil {
				p.onEvictedClose(c)
			}
			return true
		}
	}
	return false
}

// CloseIdle closes every connection that has been idle for at least
// threshold, across all keys. threshold <= 0 closes everything
// currently idle, regardless of age; the background sweep passes the
// pool's configured idle timeout explicitly.
func (p *ConnPool) CloseIdle(threshold time.Duration) int {
	if threshold < 0 {
		threshold = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := 0
	for key, conns := range p.buckets {
		kept := conns[:0:0]
		for _, c := range conns {
			if c.isIdleFor(threshold) {
				_ = c.Conn.Close()
				p.total--
				closed++
				continue
			}
			kept = append(kept, c)
		}
		p.buckets[key] = kept
	}
	return closed
}

// StartSweeper launches the background idle sweep (§4.4): every half
// idle-timeout it closes connections idle past the full timeout. The
// returned stop func terminates the sweep; safe to call once.
func (p *ConnPool) StartSweeper() (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.idleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.CloseIdle(p.idleTimeout)
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// CloseAll closes every pooled connection, idle or not, and empties the
// pool. Used on Agent teardown.
func (p *ConnPool) CloseAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	closed := 0
	for key, conns := range p.buckets {
		for _, c := range conns {
			_ = c.Conn.Close()
			closed++
		}
		delete(p.buckets, key)
	}
	p.total = 0
	return closed
}

// Len returns the total number of pooled connections across all keys.
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
