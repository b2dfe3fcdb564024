// Package integrity checks Subresource Integrity (SRI) digests against
// a drained response body (§4.8 "Integrity"): sha256/384/512 hashes,
// base64-encoded, any-of-N matching, grounded on the stdlib crypto
// packages (no third-party hashing library in the retrieval pack beats
// crypto/sha256+sha512 for this, see DESIGN.md).
package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// ErrNoRecognizedAlgorithm is returned when an integrity list contains
// entries but none uses a recognised algorithm prefix.
var ErrNoRecognizedAlgorithm = errors.New("integrity: no recognised algorithm in list")

// ErrMismatch is returned when every recognised digest in the list
// fails to match the drained body.
var ErrMismatch = errors.New("integrity: digest mismatch")

// Entry is one parsed "algorithm-base64digest" token.
type Entry struct {
	Algorithm string // "sha256", "sha384", "sha512"
	Digest    []byte
}

// Parse splits a space-separated SRI attribute value ("sha256-... sha384-...")
// into its entries, skipping unrecognised algorithms but keeping track
// of whether any entry at all was recognised.
func Parse(value string) (entries []Entry, recognizedAny bool, err error) {
	for _, tok := range strings.Fields(value) {
		algo, b64, ok := strings.Cut(tok, "-")
		if !ok {
			continue
		}
		algo = strings.ToLower(algo)
		if newHash(algo) == nil {
			continue
		}
		digest, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			return nil, true, fmt.Errorf("integrity: decoding digest for %s: %w", algo, decErr)
		}
		entries = append(entries, Entry{Algorithm: algo, Digest: digest})
		recognizedAny = true
	}
	return entries, recognizedAny, nil
}

// newHash returns a fresh hash.Hash for a recognised SRI algorithm
// name, or nil if algo isn't one of sha256/sha384/sha512.
func newHash(algo string) hash.Hash {
	switch algo {
	case "sha256":
		return sha256.New()
	case "sha384":
		return sha512.New384()
	case "sha512":
		return sha512.New()
	default:
		return nil
	}
}

// Verifier accumulates one or more hashes over a plaintext body stream
// as bytes arrive, so integrity checking never requires buffering the
// whole body a second time.
type Verifier struct {
	entries []Entry
	hashes  map[string]hash.Hash
}

// NewVerifier builds a Verifier for the given parsed entries. Multiple
// entries sharing an algorithm reuse one running hash.
func NewVerifier(entries []Entry) *Verifier {
	v := &Verifier{entries: entries, hashes: map[string]hash.Hash{}}
	for _, e := range entries {
		if _, ok := v.hashes[e.Algorithm]; !ok {
			v.hashes[e.Algorithm] = newHash(e.Algorithm)
		}
	}
	return v
}

// Write feeds plaintext bytes into every running hash. Verifier
// implements io.Writer so it can sit in a TeeReader/MultiWriter chain.
func (v *Verifier) Write(p []byte) (int, error) {
	for _, h := range v.hashes {
		h.Write(p) //nolint:errcheck // hash.Hash.Write never errors
	}
	return len(p), nil
}

// Check compares the accumulated hashes against every entry; it passes
// (nil error) if any single entry matches, per SRI's any-match rule.
func (v *Verifier) Check() error {
	if len(v.entries) == 0 {
		return nil
	}
	for _, e := range v.entries {
		h, ok := v.hashes[e.Algorithm]
		if !ok {
			continue
		}
		if subtleEqual(h.Sum(nil), e.Digest) {
			return nil
		}
	}
	return ErrMismatch
}

func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	diff := byte(0)
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
