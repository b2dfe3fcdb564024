// Package stats implements the Agent's observability surface (C10):
// lock-free atomic counters for the four Fetch-level tallies, and a
// per-connection record tracker backing agent.connections() (§4.10).
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counters are the four monotonically-increasing Agent counters (§4.10,
// §3 "Invariants": "Agent counters only ever monotonically increase").
type Counters struct {
	requestsSent      atomic.Int64
	responsesReceived atomic.Int64
	bodiesStarted     atomic.Int64
	bodiesFinished    atomic.Int64
}

// RequestSent increments once per wire send; redirect hops on one
// user-level fetch count as a single request per §4.10.
func (c *Counters) RequestSent() { c.requestsSent.Add(1) }

// ResponseReceived increments once response headers parse successfully.
func (c *Counters) ResponseReceived() { c.responsesReceived.Add(1) }

// BodyStarted increments when a non-empty body handle is created.
func (c *Counters) BodyStarted() { c.bodiesStarted.Add(1) }

// BodyFinished increments when a body handle's shared stream settles.
func (c *Counters) BodyFinished() { c.bodiesFinished.Add(1) }

// Snapshot is a point-in-time, consistent-enough read of the counters
// (each field is read atomically; the four reads are not a single
// atomic transaction, matching the "observed monotonically" guarantee
// rather than a stronger linearizability claim).
type Snapshot struct {
	RequestsSent      int64
	ResponsesReceived int64
	BodiesStarted     int64
	BodiesFinished    int64
}

// Snapshot reads all four counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RequestsSent:      c.requestsSent.Load(),
		ResponsesReceived: c.responsesReceived.Load(),
		BodiesStarted:     c.bodiesStarted.Load(),
		BodiesFinished:    c.bodiesFinished.Load(),
	}
}

// ConnectionRecord is one entry of agent.connections() (§4.10, §3
// "Connection record").
type ConnectionRecord struct {
	ID             string
	ConnectionType string // "tcp" | "quic"
	LocalAddress   string
	LocalPort      int
	RemoteAddress  string
	RemotePort     int
	FirstSeen      time.Time
	LastSeen       time.Time
	ResponseCount  int

	// Best-effort TCP telemetry; zero when unavailable (non-Linux, QUIC,
	// or a transient syscall failure).
	RTTMicros        int64
	CongestionWindow int64
}

// Tracker holds the live connection records an Agent exposes, mutated
// by the dispatcher on every request. A record is removed when a
// request on its connection ends with an error; connections the pool
// closes by eviction, idle sweep or CloseAll keep their record. The
// connections() snapshot may
// briefly lock the tracker, per §9 "Observability".
type Tracker struct {
	mu      sync.Mutex
	records map[string]*ConnectionRecord
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{records: map[string]*ConnectionRecord{}}
}

// Observe registers a new connection (first call for an ID) or bumps an
// existing one's LastSeen/ResponseCount/telemetry (subsequent calls).
func (t *Tracker) Observe(rec ConnectionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.records[rec.ID]
	if !ok {
		cp := rec
		if cp.ResponseCount == 0 {
			cp.ResponseCount = 1
		}
		t.records[rec.ID] = &cp
		return
	}
	existing.LastSeen = rec.LastSeen
	existing.ResponseCount++
	if rec.RTTMicros > 0 {
		existing.RTTMicros = rec.RTTMicros
	}
	if rec.CongestionWindow > 0 {
		existing.CongestionWindow = rec.CongestionWindow
	}
}

// Remove drops a connection record once its connection is closed.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// Snapshot returns a copy of every tracked connection record.
func (t *Tracker) Snapshot() []ConnectionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ConnectionRecord, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}
