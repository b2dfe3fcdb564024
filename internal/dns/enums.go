package dns

// Header flags this client actually sets or inspects (RFC 1035 Section
// 4.1.1). RD is set on every outbound query (recursion is the whole
// point of talking to an upstream recursive server); TC is read back
// off a response to decide whether to retry over TCP; RCodeMask pulls
// the 4-bit response code out of the same field.
const (
	RDFlag    uint16 = 0x0100 // Recursion Desired (set on every outbound query)
	TCFlag    uint16 = 0x0200 // Truncation: response didn't fit in the UDP datagram
	RCodeMask uint16 = 0x000F // Bits 3-0: response code
)

// RecordType identifies a DNS resource record type. Only the types the
// resolver actually queries for are defined; a value outside this set
// still round-trips through ParseRecord as raw rdata bytes.
type RecordType uint16

const (
	TypeA    RecordType = 1  // IPv4 address
	TypeAAAA RecordType = 28 // IPv6 address (RFC 3596)
)

// RecordClass represents DNS resource record classes (RFC 1035).
type RecordClass uint16

const (
	ClassIN RecordClass = 1 // Internet class
)

// RCode represents DNS response codes (RFC 1035).
type RCode uint16

const (
	RCodeNoError  RCode = 0 // No error
	RCodeFormErr  RCode = 1 // Format error: query malformed
	RCodeServFail RCode = 2 // Server failure: internal error
	RCodeNXDomain RCode = 3 // Non-existent domain
	RCodeNotImp   RCode = 4 // Not implemented: unsupported query type
	RCodeRefused  RCode = 5 // Query refused by policy
)

// RCodeFromFlags extracts the response code from the DNS header flags.
func RCodeFromFlags(flags uint16) RCode {
	return RCode(flags & RCodeMask)
}
