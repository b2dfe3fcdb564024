package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digestOf(t *testing.T, algo string, body []byte) string {
	t.Helper()
	switch algo {
	case "sha256":
		sum := sha256.Sum256(body)
		return base64.StdEncoding.EncodeToString(sum[:])
	case "sha384":
		sum := sha512.Sum384(body)
		return base64.StdEncoding.EncodeToString(sum[:])
	case "sha512":
		sum := sha512.Sum512(body)
		return base64.StdEncoding.EncodeToString(sum[:])
	}
	t.Fatalf("unknown algo %q", algo)
	return ""
}

func TestParseRecognizesKnownAlgorithms(t *testing.T) {
	value := "sha256-" + digestOf(t, "sha256", []byte("x")) +
		" sha384-" + digestOf(t, "sha384", []byte("x")) +
		" sha512-" + digestOf(t, "sha512", []byte("x"))

	entries, recognized, err := Parse(value)
	require.NoError(t, err)
	assert.True(t, recognized)
	require.Len(t, entries, 3)
	assert.Equal(t, "sha256", entries[0].Algorithm)
	assert.Equal(t, "sha384", entries[1].Algorithm)
	assert.Equal(t, "sha512", entries[2].Algorithm)
}

func TestParseSkipsUnknownAlgorithms(t *testing.T) {
	entries, recognized, err := Parse("md5-AAAA sha1-BBBB")
	require.NoError(t, err)
	assert.False(t, recognized)
	assert.Empty(t, entries)
}

func TestParseMixedKeepsOnlyRecognized(t *testing.T) {
	value := "md5-AAAA sha256-" + digestOf(t, "sha256", nil)
	entries, recognized, err := Parse(value)
	require.NoError(t, err)
	assert.True(t, recognized)
	require.Len(t, entries, 1)
	assert.Equal(t, "sha256", entries[0].Algorithm)
}

func TestParseCaseInsensitiveAlgorithm(t *testing.T) {
	entries, recognized, err := Parse("SHA256-" + digestOf(t, "sha256", nil))
	require.NoError(t, err)
	assert.True(t, recognized)
	require.Len(t, entries, 1)
}

func TestParseBadBase64Fails(t *testing.T) {
	_, _, err := Parse("sha256-!!notbase64!!")
	require.Error(t, err)
}

func TestVerifierAnyMatchPasses(t *testing.T) {
	body := []byte("the quick brown fox")
	value := "sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA= sha256-" + digestOf(t, "sha256", body)

	entries, _, err := Parse(value)
	require.NoError(t, err)

	v := NewVerifier(entries)
	_, err = v.Write(body)
	require.NoError(t, err)
	assert.NoError(t, v.Check())
}

func TestVerifierAllMismatchFails(t *testing.T) {
	entries, _, err := Parse("sha256-" + digestOf(t, "sha256", []byte("other")))
	require.NoError(t, err)

	v := NewVerifier(entries)
	_, err = v.Write([]byte("actual body"))
	require.NoError(t, err)
	assert.ErrorIs(t, v.Check(), ErrMismatch)
}

func TestVerifierEmptyBodyZeroDigest(t *testing.T) {
	entries, _, err := Parse("sha256-" + digestOf(t, "sha256", nil))
	require.NoError(t, err)

	v := NewVerifier(entries)
	assert.NoError(t, v.Check())
}

func TestVerifierIncrementalWrites(t *testing.T) {
	body := []byte("split across several writes")
	entries, _, err := Parse("sha512-" + digestOf(t, "sha512", body))
	require.NoError(t, err)

	v := NewVerifier(entries)
	for _, chunk := range [][]byte{body[:5], body[5:12], body[12:]} {
		_, err = v.Write(chunk)
		require.NoError(t, err)
	}
	assert.NoError(t, v.Check())
}

func TestVerifierNoEntriesAlwaysPasses(t *testing.T) {
	v := NewVerifier(nil)
	_, err := v.Write([]byte("anything"))
	require.NoError(t, err)
	assert.NoError(t, v.Check())
}
