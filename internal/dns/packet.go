package dns

// Limits applied when decoding a message received from an upstream
// recursive server, so that a hostile or buggy resolver answer can't
// force unbounded allocation.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of an accepted response
	MaxQuestions              = 4    // Maximum questions echoed back by a resolver
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// Packet represents a complete DNS message (RFC 1035 Section 4): a
// header plus the four sections. Answers/Authorities/Additionals are
// only ever populated by ParsePacket on a received response — every
// outbound query this package builds (via NewQuery) carries exactly
// one Question and nothing else, so Marshal only serializes the
// header and the question section.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Marshal serializes an outbound query to DNS wire format (big-endian).
// It does not serialize Answers/Authorities/Additionals: a query this
// package builds never carries any, and there is no Record.Marshal
// here to serialize them with if it did.
func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
	}

	hb, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, HeaderSize+len(p.Questions)*32)
	out = append(out, hb...)
	for _, q := range p.Questions {
		qb, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, qb...)
	}
	return out, nil
}

// ParsePacket decodes a complete response message, including the
// Answers/Authorities/Additionals sections the server attaches even
// though the resolver only reads Answers back out (extractAnswers in
// internal/resolver); the other two sections still have to be parsed
// to correctly consume the message, and a buggy or hostile reply
// can't be allowed to claim more records than MaxRRPerSection/
// MaxTotalRR permit.
func ParsePacket(msg []byte) (Packet, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{Header: h}

	limitCount := func(count uint16, limit int) int {
		if int(count) > limit {
			return limit
		}
		return int(count)
	}

	p.Questions = make([]Question, 0, limitCount(h.QDCount, MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}

	total := 0
	parseSection := func(count uint16) ([]Record, error) {
		n := limitCount(count, MaxRRPerSection)
		rrs := make([]Record, 0, n)
		for range count {
			if total >= MaxTotalRR {
				break
			}
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return nil, err
			}
			total++
			if len(rrs) < n {
				rrs = append(rrs, rr)
			}
		}
		return rrs, nil
	}

	if p.Answers, err = parseSection(h.ANCount); err != nil {
		return Packet{}, err
	}
	if p.Authorities, err = parseSection(h.NSCount); err != nil {
		return Packet{}, err
	}
	if p.Additionals, err = parseSection(h.ARCount); err != nil {
		return Packet{}, err
	}
	return p, nil
}
