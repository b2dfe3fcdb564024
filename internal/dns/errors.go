// Package dns implements the minimal outbound DNS message codec the
// resolver backend (internal/resolver) needs to drive its own
// recursive A/AAAA queries over UDP and TCP (RFC 1035 Section 4,
// RFC 3596 for AAAA): building a Question, marshaling a query Packet,
// and parsing back a server's response.
//
// This is a client-side slice of the protocol, not a zone-management
// or authoritative-server codec: there is no record marshaling for
// anything but what a resolver sends (Questions) and reads back
// (A/AAAA answers), and no DNSSEC, EDNS, or server-only RR types.
package dns

import "errors"

// ErrDNSError is the sentinel wrapped by every decode/encode failure in
// this package; wrap it with fmt.Errorf("context: %w", ErrDNSError) to
// add detail while keeping errors.Is(err, ErrDNSError) true.
var ErrDNSError = errors.New("dns wire error")
