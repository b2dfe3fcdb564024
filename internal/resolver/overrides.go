package resolver

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// OverrideBackend answers lookups from a caller-configured ordered list
// of {domain, addresses[]} entries (§4.1). Matching is case-sensitive
// exact on the host; callers are expected to present normalised hosts.
//
// An address may carry an optional ":port" suffix (including a
// bracketed IPv6 literal, e.g. "[::1]:8443"); when present it replaces
// the URL's port at connect time.
type OverrideBackend struct {
	entries map[string][]Answer // domain -> addresses (nil/empty => blocked)
}

// NewOverrideBackend builds an OverrideBackend from an ordered override
// list. Later entries for the same domain replace earlier ones, so
// callers can shadow a broad override with a more specific one placed
// later in the list.
func NewOverrideBackend(overrides []Override) (*OverrideBackend, error) {
	b := &OverrideBackend{entries: make(map[string][]Answer, len(overrides))}
	for _, o := range overrides {
		domain := o.Domain
		if len(o.Addresses) == 0 {
			b.entries[domain] = nil
			continue
		}
		answers := make([]Answer, 0, len(o.Addresses))
		for _, raw := range o.Addresses {
			a, err := parseOverrideAddress(raw)
			if err != nil {
				return nil, fmt.Errorf("resolver: override %q: %w", domain, err)
			}
			answers = append(answers, a)
		}
		b.entries[domain] = answers
	}
	return b, nil
}

// parseOverrideAddress parses a host[:port] override address, accepting
// bracketed IPv6 literals ("[::1]:8443") and bare IPv6 literals without
// a port ("::1").
func parseOverrideAddress(raw string) (Answer, error) {
	raw = strings.TrimSpace(raw)

	if host, portStr, err := splitHostPort(raw); err == nil {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return Answer{}, fmt.Errorf("invalid address %q: %w", raw, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Answer{}, fmt.Errorf("invalid port in %q: %w", raw, err)
		}
		return Answer{Addr: addr, Port: uint16(port)}, nil
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return Answer{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return Answer{Addr: addr}, nil
}

// splitHostPort splits "host:port" or "[ipv6]:port", returning an error
// (not panicking) for inputs with no port suffix so the caller can fall
// back to parsing the whole string as a bare address.
func splitHostPort(raw string) (host, port string, err error) {
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated IPv6 literal in %q", raw)
		}
		host = raw[1:end]
		rest := raw[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return "", "", fmt.Errorf("no port suffix in %q", raw)
		}
		return host, rest[1:], nil
	}
	idx := strings.LastIndexByte(raw, ':')
	if idx < 0 || strings.Count(raw, ":") > 1 {
		// Bare IPv6 literal without brackets has multiple colons and no
		// port; treat as "no port suffix" rather than misparsing it.
		return "", "", fmt.Errorf("no port suffix in %q", raw)
	}
	return raw[:idx], raw[idx+1:], nil
}

// ContainsDomain reports whether an override entry exists for host.
func (b *OverrideBackend) ContainsDomain(host string) bool {
	_, ok := b.entries[host]
	return ok
}

// IsEmpty reports whether no override entries are configured.
func (b *OverrideBackend) IsEmpty() bool {
	return len(b.entries) == 0
}

// Lookup answers host from the configured overrides. A matched entry
// with no addresses fails with ErrDNSBlocked.
func (b *OverrideBackend) Lookup(_ context.Context, host string) ([]Answer, error) {
	answers, ok := b.entries[host]
	if !ok {
		return nil, ErrNoBackend
	}
	if len(answers) == 0 {
		return nil, ErrDNSBlocked
	}
	out := make([]Answer, len(answers))
	copy(out, answers)
	return out, nil
}

// Close is a no-op; overrides hold no resources.
func (b *OverrideBackend) Close() error { return nil }
