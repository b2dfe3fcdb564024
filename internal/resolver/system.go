package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// SystemBackend delegates resolution to the platform's getaddrinfo
// equivalent via net.Resolver. It performs no caching of its own: the
// platform resolver (and, on most systems, nscd/systemd-resolved) is
// assumed to already cache.
type SystemBackend struct {
	resolver *net.Resolver
}

// NewSystemBackend returns a SystemBackend using the default net.Resolver.
func NewSystemBackend() *SystemBackend {
	return &SystemBackend{resolver: net.DefaultResolver}
}

// Lookup resolves host via the platform resolver, returning both address
// families it reports.
func (b *SystemBackend) Lookup(ctx context.Context, host string) ([]Answer, error) {
	var ipAddrs []netip.Addr
	ipAddrs, err := b.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolver: system lookup of %q: %w", host, err)
	}
	answers := make([]Answer, 0, len(ipAddrs))
	for _, a := range ipAddrs {
		answers = append(answers, Answer{Addr: a.Unmap()})
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("resolver: system lookup of %q: %w", host, net.ErrClosed)
	}
	return answers, nil
}

// Close is a no-op; the system resolver owns no Agent-scoped resources.
func (b *SystemBackend) Close() error { return nil }
