// Package altsvc tracks per-origin HTTP/3 upgrade hints (§4.3): records
// parsed from response Alt-Svc headers, or pre-seeded by caller hints,
// that tell the dispatcher an origin is worth racing a QUIC dial
// against.
package altsvc

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one origin's current h3 upgrade hint.
type Record struct {
	Host      string
	Port      int
	ExpiresAt time.Time
	// CoolingDown marks a record whose h3 dial recently failed; the
	// dispatcher should not retry h3 for this origin until CoolDownUntil.
	CoolingDown   bool
	CoolDownUntil time.Time
}

const defaultCoolDown = 10 * time.Minute

// Store is a thread-safe, origin-keyed table of Records.
type Store struct {
	mu      sync.Mutex
	records map[string]Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: map[string]Record{}}
}

// Seed pre-populates origin with a long-lived, forced-trial record from
// an explicit caller hint (§4.3 "Explicit user hints").
func (s *Store) Seed(origin, host string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[origin] = Record{Host: host, Port: port, ExpiresAt: time.Now().Add(365 * 24 * time.Hour)}
}

// ObserveHeader parses an Alt-Svc response header for origin and
// records an h3 hint if one was advertised.
func (s *Store) ObserveHeader(origin string, header http.Header) {
	raw := header.Get("Alt-Svc")
	if raw == "" {
		return
	}
	host, port, maxAge, ok := parseH3AltSvc(raw)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[origin] = Record{
		Host:      host,
		Port:      port,
		ExpiresAt: time.Now().Add(maxAge),
	}
}

// Lookup returns the live h3 hint for origin, if any. A record that is
// expired or cooling down is not returned.
func (s *Store) Lookup(origin string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[origin]
	if !ok {
		return Record{}, false
	}
	now := time.Now()
	if r.CoolingDown && now.Before(r.CoolDownUntil) {
		return Record{}, false
	}
	if r.CoolingDown {
		r.CoolingDown = false
	}
	if !now.Before(r.ExpiresAt) {
		delete(s.records, origin)
		return Record{}, false
	}
	return r, true
}

// MarkFailed evicts origin's record for a cool-down period after a
// failed h3 dial, per §4.3.
func (s *Store) MarkFailed(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[origin]
	if !ok {
		return
	}
	r.CoolingDown = true
	r.CoolDownUntil = time.Now().Add(defaultCoolDown)
	s.records[origin] = r
}

// parseH3AltSvc extracts the first h3 entry from an Alt-Svc header
// value, e.g. `h3=":443"; ma=86400, h3-29=":443"; ma=3600`.
func parseH3AltSvc(raw string) (host string, port int, maxAge time.Duration, ok bool) {
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(entry, ";")
		if len(parts) == 0 {
			continue
		}
		kv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
		if len(kv) != 2 || kv[0] != "h3" {
			continue
		}
		authority := strings.Trim(kv[1], `"`)
		h, p := splitAuthority(authority)

		ma := 24 * time.Hour
		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			pk := strings.SplitN(param, "=", 2)
			if len(pk) == 2 && pk[0] == "ma" {
				if secs, err := strconv.Atoi(strings.TrimSpace(pk[1])); err == nil {
					ma = time.Duration(secs) * time.Second
				}
			}
		}
		return h, p, ma, true
	}
	return "", 0, 0, false
}

// splitAuthority splits ":443" or "host:443" into host (possibly empty,
// meaning "same as origin") and port.
func splitAuthority(authority string) (string, int) {
	idx := strings.LastIndexByte(authority, ':')
	if idx < 0 {
		return authority, 0
	}
	host := authority[:idx]
	port, err := strconv.Atoi(authority[idx+1:])
	if err != nil {
		return authority, 0
	}
	return host, port
}
