package faith

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersCaseInsensitiveMatchPreservesOrder(t *testing.T) {
	h := NewHeaders()
	h.Add("Accept", "text/html")
	h.Add("accept", "application/json")

	assert.Equal(t, "text/html", h.Get("ACCEPT"))
	assert.Equal(t, []string{"text/html", "application/json"}, h.Values("Accept"))
	assert.True(t, h.Has("aCCePt"))
}

func TestHeadersSetReplacesAllValues(t *testing.T) {
	h := NewHeaders()
	h.Add("X-Trace", "a")
	h.Add("X-Trace", "b")
	h.Set("x-trace", "c")

	assert.Equal(t, []string{"c"}, h.Values("X-Trace"))
}

func TestHeadersSetCookieNeverCollapses(t *testing.T) {
	h := NewHeaders()
	h.Set("Set-Cookie", "a=1")
	h.Set("set-cookie", "b=2")

	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}

func TestHeadersDeleteRemovesEveryEntry(t *testing.T) {
	h := NewHeaders()
	h.Add("X-A", "1")
	h.Add("x-a", "2")
	h.Add("X-B", "3")
	h.Delete("X-A")

	assert.False(t, h.Has("X-A"))
	assert.Equal(t, "3", h.Get("X-B"))
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	h := NewHeaders()
	h.Add("X-A", "1")
	cp := h.Clone()
	cp.Add("X-A", "2")

	assert.Equal(t, []string{"1"}, h.Values("X-A"))
	assert.Equal(t, []string{"1", "2"}, cp.Values("X-A"))
}
