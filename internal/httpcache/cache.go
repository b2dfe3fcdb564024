// Package httpcache implements the Agent's HTTP cache (C6): an
// RFC 9111-ish, private (single-client) cache keyed by method+URL, with
// pluggable memory or on-disk storage.
//
// Architecture mirrors the teacher's layered resolver/cache split: a
// Store holds raw entries (headers, status, body, timing), and Evaluate
// applies the freshness/validation rules a Dispatcher needs before it
// decides to serve, revalidate, or bypass the cache.
package httpcache

import (
	"net/http"
	"strings"
	"time"
)

// Entry is a stored response, enough to reconstruct an http.Response and
// to recompute freshness without re-fetching.
type Entry struct {
	Status        int
	Header        http.Header
	Body          []byte
	RequestTime   time.Time // when the original request was sent
	ResponseTime  time.Time // when the original response was received
	VaryOnHeaders map[string]string
}

// Store persists Entries keyed by a caller-computed cache key (see Key).
type Store interface {
	Get(key string) (Entry, bool, error)
	Set(key string, e Entry) error
	Delete(key string) error
	Close() error
}

// Key computes the cache key for req: method-qualified except for GET,
// matching the teacher-grounded convention that GET is the common case
// and everything else is method-distinguished to avoid cross-method
// collisions (a cached GET must never answer a POST).
func Key(req *http.Request) string {
	if req.Method == http.MethodGet || req.Method == "" {
		return req.URL.String()
	}
	return req.Method + " " + req.URL.String()
}

// VaryMatches reports whether the headers req sent for this lookup match
// the ones the cached entry varied on when it was stored.
func VaryMatches(e Entry, req *http.Request) bool {
	varyHeaders := headerAllCommaSepValues(e.Header, "vary")
	for _, h := range varyHeaders {
		h = http.CanonicalHeaderKey(h)
		if h == "" {
			continue
		}
		if req.Header.Get(h) != e.VaryOnHeaders[h] {
			return false
		}
	}
	return true
}

// VaryFields captures the request header values a stored entry needs to
// remember, for every header name the response's Vary lists.
func VaryFields(respHeader http.Header, reqHeader http.Header) map[string]string {
	out := map[string]string{}
	for _, h := range headerAllCommaSepValues(respHeader, "vary") {
		h = http.CanonicalHeaderKey(h)
		if h == "" {
			continue
		}
		if v := reqHeader.Get(h); v != "" {
			out[h] = v
		}
	}
	return out
}

func headerAllCommaSepValues(headers http.Header, name string) []string {
	var vals []string
	for _, val := range headers[http.CanonicalHeaderKey(name)] {
		for _, f := range strings.Split(val, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				vals = append(vals, f)
			}
		}
	}
	return vals
}
