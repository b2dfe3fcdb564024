package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Record is one resource record parsed out of a response. The
// resolver never asks for anything but A/AAAA, so Data is always the
// raw rdata bytes (4 for A, 16 for AAAA); any other RR type a server
// happens to return (e.g. a CNAME chain entry) still parses cleanly,
// just with Data left as opaque bytes nothing here interprets.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// ParseRecord reads one resource record from msg at *off, advancing
// *off past it. rdata is always taken as raw bytes: this package never
// needs to interpret name-based rdata (CNAME/NS/PTR/MX), since
// extractAnswers (internal/resolver) only ever looks at A and AAAA
// records.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	if *off+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	data := make([]byte, rdlen)
	copy(data, msg[*off:*off+int(rdlen)])
	*off += int(rdlen)

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

// IPv4 returns the dotted-quad address carried by an A record, or
// ("", false) for anything else.
func (rr Record) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA || len(rr.Data) != 4 {
		return "", false
	}
	return net.IPv4(rr.Data[0], rr.Data[1], rr.Data[2], rr.Data[3]).String(), true
}

// IPv6 returns the address carried by an AAAA record, or ("", false)
// for anything else.
func (rr Record) IPv6() (string, bool) {
	if RecordType(rr.Type) != TypeAAAA || len(rr.Data) != 16 {
		return "", false
	}
	return net.IP(rr.Data).String(), true
}
