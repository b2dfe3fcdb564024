package httpcache

import (
	"net/http"
	"strings"
	"time"
)

// Mode is the per-request/per-agent cache mode (§4.6 / §5 "cache" field).
type Mode int

const (
	// ModeDefault follows standard HTTP freshness/validation rules.
	ModeDefault Mode = iota
	// ModeNoStore never reads or writes the cache.
	ModeNoStore
	// ModeReload bypasses any cached entry but still stores the new response.
	ModeReload
	// ModeNoCache always revalidates a stored entry before using it.
	ModeNoCache
	// ModeForceCache serves a stored entry regardless of staleness,
	// fetching only on a full miss.
	ModeForceCache
	// ModeOnlyIfCached never touches the network; a miss fails with
	// NotCached rather than connecting.
	ModeOnlyIfCached
	// ModeIgnoreRules serves any stored entry regardless of
	// Cache-Control/Vary, a deliberate spec deviation for callers who
	// want a dumb key-value response cache. Storing still follows the
	// default rules: a response the default mode would not store (e.g.
	// no-store) is not written.
	ModeIgnoreRules
)

// Freshness describes how usable a stored entry is without talking to
// the server.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
	Transparent // the entry must not be used for this request at all
)

// Decision is what the dispatcher should do after consulting the cache
// for one request.
type Decision int

const (
	DecisionFetch        Decision = iota // no usable entry; go to the network
	DecisionUseCached                    // serve the stored entry as-is
	DecisionRevalidate                   // fetch with conditional headers, may get 304
	DecisionGatewayFault                 // only-if-cached with no entry: fail without connecting
)

// Evaluate decides what to do with a (possibly absent) cached entry for
// a request under the given Mode.
func Evaluate(mode Mode, entry Entry, found bool, req *http.Request) Decision {
	switch mode {
	case ModeNoStore, ModeReload:
		if mode == ModeReload && found {
			return DecisionFetch
		}
		return DecisionFetch
	case ModeOnlyIfCached:
		if !found {
			return DecisionGatewayFault
		}
		return DecisionUseCached
	case ModeForceCache:
		if !found {
			return DecisionFetch
		}
		return DecisionUseCached
	case ModeIgnoreRules:
		if !found {
			return DecisionFetch
		}
		return DecisionUseCached
	}

	if !found {
		return DecisionFetch
	}
	if !VaryMatches(entry, req) {
		return DecisionFetch
	}
	if mode == ModeNoCache {
		return DecisionRevalidate
	}

	switch freshness(entry, req.Header) {
	case Fresh:
		return DecisionUseCached
	case Stale:
		return DecisionRevalidate
	default: // Transparent
		return DecisionFetch
	}
}

// freshness determines whether entry can satisfy reqHeader without
// revalidation, following the request/response Cache-Control
// interaction an RFC 9111 private cache implements.
func freshness(entry Entry, reqHeader http.Header) Freshness {
	respCC := parseCacheControl(entry.Header)
	reqCC := parseCacheControl(reqHeader)

	if _, ok := reqCC["no-cache"]; ok {
		return Transparent
	}
	if _, ok := respCC["no-cache"]; ok {
		return Stale
	}

	currentAge := time.Since(entry.ResponseTime)

	var lifetime time.Duration
	if maxAge, ok := respCC["max-age"]; ok {
		lifetime = parseSeconds(maxAge)
	} else if expiresHeader := entry.Header.Get("Expires"); expiresHeader != "" {
		if expires, err := http.ParseTime(expiresHeader); err == nil {
			lifetime = expires.Sub(entry.ResponseTime)
		}
	}

	if maxAge, ok := reqCC["max-age"]; ok {
		lifetime = parseSeconds(maxAge)
	}
	if minFresh, ok := reqCC["min-fresh"]; ok {
		currentAge += parseSeconds(minFresh)
	}
	if maxStale, rawOK := reqCC["max-stale"]; rawOK {
		if maxStale == "" {
			return Fresh
		}
		currentAge -= parseSeconds(maxStale)
	}

	if lifetime > currentAge {
		return Fresh
	}
	return Stale
}

// CanStore reports whether resp may be written to the cache at all,
// given the request and response Cache-Control directives.
func CanStore(req *http.Request, resp *http.Response) bool {
	respCC := parseCacheControl(resp.Header)
	reqCC := parseCacheControl(req.Header)
	if _, ok := respCC["no-store"]; ok {
		return false
	}
	if _, ok := reqCC["no-store"]; ok {
		return false
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return true
}

type cacheControl map[string]string

func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{}
	for _, part := range strings.Split(headers.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			cc[strings.TrimSpace(k)] = strings.Trim(v, `" `)
		} else {
			cc[part] = ""
		}
	}
	return cc
}

func parseSeconds(s string) time.Duration {
	d, err := time.ParseDuration(s + "s")
	if err != nil {
		return 0
	}
	return d
}
