package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryShape(t *testing.T) {
	pkt := NewQuery(0xABCD, "example.com", TypeAAAA)

	assert.Equal(t, uint16(0xABCD), pkt.Header.ID)
	assert.Equal(t, RDFlag, pkt.Header.Flags)
	assert.Equal(t, uint16(1), pkt.Header.QDCount)
	require.Len(t, pkt.Questions, 1)
	assert.Equal(t, "example.com", pkt.Questions[0].Name)
	assert.Equal(t, uint16(TypeAAAA), pkt.Questions[0].Type)
	assert.Equal(t, uint16(ClassIN), pkt.Questions[0].Class)
}

func TestNewQueryRoundTrips(t *testing.T) {
	pkt := NewQuery(42, "test.example.com", TypeA)

	b, err := pkt.Marshal()
	require.NoError(t, err)

	parsed, err := ParsePacket(b)
	require.NoError(t, err)
	assert.Equal(t, pkt.Header.ID, parsed.Header.ID)
	require.Len(t, parsed.Questions, 1)
	assert.Equal(t, "test.example.com", parsed.Questions[0].Name)
}

func TestIsTruncated(t *testing.T) {
	notTruncated := []byte{0, 1, 0x81, 0x80, 0, 0, 0, 0, 0, 0, 0, 0}
	truncated := []byte{0, 1, 0x83, 0x80, 0, 0, 0, 0, 0, 0, 0, 0}

	assert.False(t, IsTruncated(notTruncated))
	assert.True(t, IsTruncated(truncated))
}

func TestIsTruncatedShortMessage(t *testing.T) {
	assert.False(t, IsTruncated([]byte{1, 2, 3}))
}
