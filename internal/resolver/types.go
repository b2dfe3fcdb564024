// Package resolver provides the name resolution strategies for an Agent.
//
// Architecture:
//
// A Resolver is built by composing backends in priority order:
//
//  1. Overrides - answers from a caller-configured {domain, addresses[]} list
//  2. System or Recursive - the platform resolver, or a resolver that
//     queries configured recursive servers directly
//
// Overrides always take precedence; an override entry with an empty
// address list fails resolution deliberately (DnsBlocked), which lets
// callers use overrides to sinkhole a host.
//
// Caching strategy:
//
// The recursive backend caches positive answers only, honouring the
// minimum TTL across the answer set. NXDOMAIN and other failures are
// never cached, so a transient upstream failure cannot wedge a host.
//
// Singleflight deduplication:
//
// Concurrent lookups for the same hostname share a single upstream
// query pair (A + AAAA), preventing thundering-herd amplification
// during cache misses.
package resolver

import (
	"context"
	"errors"
	"net/netip"
	"time"
)

// ErrDNSBlocked is returned when an override matches a host but carries
// no addresses, deliberately failing resolution.
var ErrDNSBlocked = errors.New("resolver: host blocked by dns override")

// ErrNoBackend is returned when no backend in a Resolver answered.
var ErrNoBackend = errors.New("resolver: no backend could answer")

// Answer is a single resolved address with the TTL it was learned with.
// TTL is zero for answers that did not come with a TTL (system resolver,
// overrides).
type Answer struct {
	Addr netip.Addr
	Port uint16 // non-zero when an override address specified ":port"
	TTL  time.Duration
}

// Override is a single caller-configured DNS override entry. An Override
// whose Addresses is empty blocks resolution of Domain entirely.
type Override struct {
	Domain    string
	Addresses []string
}

// Backend is a single resolution strategy. Resolver composes one or more
// Backends in priority order.
type Backend interface {
	// Lookup resolves host to a set of addresses. Implementations that
	// have no opinion about host return ErrNoBackend so the caller can
	// fall through to the next backend.
	Lookup(ctx context.Context, host string) ([]Answer, error)

	// Close releases resources held by the backend (connection pools,
	// caches). It is safe to call once, at Agent teardown.
	Close() error
}

// Resolver is the composed backend chain an Agent uses for name
// resolution: overrides first, then the configured system or recursive
// backend.
type Resolver struct {
	overrides *OverrideBackend
	primary   Backend
}

// New builds a Resolver from an ordered override list and a primary
// backend (system or recursive).
func New(overrides []Override, primary Backend) (*Resolver, error) {
	ob, err := NewOverrideBackend(overrides)
	if err != nil {
		return nil, err
	}
	return &Resolver{overrides: ob, primary: primary}, nil
}

// Resolve resolves host, trying overrides before the primary backend.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]Answer, error) {
	if r.overrides != nil && r.overrides.ContainsDomain(host) {
		return r.overrides.Lookup(ctx, host)
	}
	if r.primary == nil {
		return nil, ErrNoBackend
	}
	return r.primary.Lookup(ctx, host)
}

// Close tears down the primary backend's resources (overrides hold none).
func (r *Resolver) Close() error {
	if r.primary != nil {
		return r.primary.Close()
	}
	return nil
}
