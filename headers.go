package faith

import "strings"

// Headers is an ordered (name, value) multimap: ASCII case-insensitive
// name comparison, insertion order preserved for duplicates, and
// `Set-Cookie` entries are never collapsed into one value (§3 "Header
// multimap").
type Headers struct {
	pairs []headerPair
}

type headerPair struct {
	name  string // as originally supplied, for Entries/display
	value string
}

// NewHeaders returns an empty Headers multimap.
func NewHeaders() *Headers {
	return &Headers{}
}

// Add appends one (name, value) pair without removing any existing
// entry for name.
func (h *Headers) Add(name, value string) {
	h.pairs = append(h.pairs, headerPair{name: name, value: value})
}

// Set replaces every existing entry for name with a single (name,
// value) pair, except for Set-Cookie, which Add-only semantics apply to
// even through Set (§3: "Set-Cookie never collapsed").
func (h *Headers) Set(name, value string) {
	if strings.EqualFold(name, "Set-Cookie") {
		h.Add(name, value)
		return
	}
	h.Delete(name)
	h.Add(name, value)
}

// Get returns the first value stored for name, or "" if absent.
func (h *Headers) Get(name string) string {
	for _, p := range h.pairs {
		if strings.EqualFold(p.name, name) {
			return p.value
		}
	}
	return ""
}

// Values returns every value stored for name, in insertion order.
func (h *Headers) Values(name string) []string {
	var out []string
	for _, p := range h.pairs {
		if strings.EqualFold(p.name, name) {
			out = append(out, p.value)
		}
	}
	return out
}

// Has reports whether any entry exists for name.
func (h *Headers) Has(name string) bool {
	for _, p := range h.pairs {
		if strings.EqualFold(p.name, name) {
			return true
		}
	}
	return false
}

// Delete removes every entry for name.
func (h *Headers) Delete(name string) {
	out := h.pairs[:0:0]
	for _, p := range h.pairs {
		if !strings.EqualFold(p.name, name) {
			out = append(out, p)
		}
	}
	h.pairs = out
}

// Entries returns every (name, value) pair in insertion order.
func (h *Headers) Entries() [][2]string {
	out := make([][2]string, len(h.pairs))
	for i, p := range h.pairs {
		out[i] = [2]string{p.name, p.value}
	}
	return out
}

// Clone returns an independent copy of h.
func (h *Headers) Clone() *Headers {
	cp := &Headers{pairs: make([]headerPair, len(h.pairs))}
	copy(cp.pairs, h.pairs)
	return cp
}
