package dns

import "encoding/binary"

// NewQuery builds a minimal recursive query packet for a single question.
func NewQuery(id uint16, name string, qtype RecordType) Packet {
	return Packet{
		Header: Header{ID: id, Flags: RDFlag, QDCount: 1},
		Questions: []Question{
			{Name: name, Type: uint16(qtype), Class: uint16(ClassIN)},
		},
	}
}

// IsTruncated reports whether a wire-format message has the TC bit set,
// without fully parsing the message.
func IsTruncated(msg []byte) bool {
	if len(msg) < HeaderSize {
		return false
	}
	flags := binary.BigEndian.Uint16(msg[2:4])
	return flags&TCFlag != 0
}
