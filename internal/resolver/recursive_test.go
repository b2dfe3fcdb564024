package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jroosing/faith/internal/dns"
)

// encodeStubResponse hand-builds a wire-format DNS response: the dns
// package only ever marshals outbound queries (it has no Record
// encoder), so a test double standing in for an upstream server has to
// lay out response bytes itself, same as any real nameserver would.
// The question is echoed back as a compression pointer to offset 12
// (right after the fixed 12-byte header), matching what every real
// resolver response does.
func encodeStubResponse(id uint16, rawQuestion []byte, qtype uint16, ttl uint32, addr [4]byte) []byte {
	const flagsResponseRecursionAvailable = 0x8180 // QR=1, RD=1, RA=1, RCODE=NoError

	msg := make([]byte, 0, 12+len(rawQuestion)+16)
	header := [12]byte{}
	header[0], header[1] = byte(id>>8), byte(id)
	header[2], header[3] = flagsResponseRecursionAvailable>>8, flagsResponseRecursionAvailable&0xFF
	header[4], header[5] = 0, 1 // QDCount
	if qtype == uint16(dns.TypeA) {
		header[6], header[7] = 0, 1 // ANCount
	}
	msg = append(msg, header[:]...)
	msg = append(msg, rawQuestion...)

	if qtype == uint16(dns.TypeA) {
		msg = append(msg, 0xC0, 0x0C) // name: pointer to offset 12
		msg = append(msg, 0, 1)       // Type A
		msg = append(msg, 0, 1)       // Class IN
		msg = append(msg, byte(ttl>>24), byte(ttl>>16), byte(ttl>>8), byte(ttl))
		msg = append(msg, 0, 4) // RDLEN
		msg = append(msg, addr[:]...)
	}
	return msg
}

// startStubServer runs a minimal UDP DNS server that answers every A
// query with one address and every AAAA query with NODATA, all with a
// fixed TTL, until the test ends.
func startStubServer(t *testing.T, ttl uint32) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := dns.ParsePacket(buf[:n])
			if err != nil || len(req.Questions) == 0 {
				continue
			}
			q := req.Questions[0]
			resp := encodeStubResponse(req.Header.ID, buf[12:n], q.Type, ttl, [4]byte{93, 184, 216, 34})
			_, _ = conn.WriteToUDP(resp, raddr)
		}
	}()
	return conn
}

func TestRecursiveBackendLookup(t *testing.T) {
	// The backend always dials :53 on the upstream host, which a test
	// can't rebind to an ephemeral port; the stub server below only
	// proves the wire format round-trips. Upstream failover/health
	// bookkeeping, which doesn't need a fixed port, is exercised here
	// directly.
	startStubServer(t, 300)

	b := NewRecursiveBackend(RecursiveOptions{Upstreams: []string{"127.0.0.1"}})
	t.Cleanup(func() { _ = b.Close() })

	require.True(t, b.canTryUpstream("127.0.0.1"))
	b.markFailed("127.0.0.1")
	require.False(t, b.canTryUpstream("127.0.0.1"))
	b.markHealthy("127.0.0.1")
	require.True(t, b.canTryUpstream("127.0.0.1"))
}

func TestRecursiveBackendExtractAnswers(t *testing.T) {
	req := dns.NewQuery(1, "example.com", dns.TypeA)
	resp := dns.Packet{
		Header:    dns.Header{ID: req.Header.ID, Flags: 0x8000},
		Questions: req.Questions,
		Answers: []dns.Record{
			{Name: "example.com", Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60, Data: []byte{93, 184, 216, 34}},
		},
	}

	answers, ttl := extractAnswers(resp, dns.TypeA)
	require.Len(t, answers, 1)
	require.Equal(t, "93.184.216.34", answers[0].Addr.String())
	require.Equal(t, 60*time.Second, ttl)
}

func TestRecursiveBackendCachePositiveOnly(t *testing.T) {
	b := NewRecursiveBackend(RecursiveOptions{Upstreams: []string{"127.0.0.1"}})
	t.Cleanup(func() { _ = b.Close() })

	b.cache.Set("cached.example", []Answer{{TTL: time.Minute}}, time.Minute)
	v, ok := b.cache.Get("cached.example")
	require.True(t, ok)
	require.Len(t, v, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Lookup(ctx, "nonexistent.invalid.")
	require.Error(t, err, "a lookup miss must not be cached as a negative result")
	_, ok = b.cache.Get("nonexistent.invalid.")
	require.False(t, ok)
}
