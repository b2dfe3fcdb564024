package httpcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateNoStoreAlwaysFetches(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	d := Evaluate(ModeNoStore, Entry{}, true, req)
	assert.Equal(t, DecisionFetch, d)
}

func TestEvaluateOnlyIfCachedMissFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	d := Evaluate(ModeOnlyIfCached, Entry{}, false, req)
	assert.Equal(t, DecisionGatewayFault, d)
}

func TestEvaluateOnlyIfCachedHit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	d := Evaluate(ModeOnlyIfCached, Entry{}, true, req)
	assert.Equal(t, DecisionUseCached, d)
}

func TestEvaluateForceCacheServesStale(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	entry := Entry{
		Header:       http.Header{"Cache-Control": {"max-age=0"}},
		ResponseTime: time.Now().Add(-time.Hour),
	}
	d := Evaluate(ModeForceCache, entry, true, req)
	assert.Equal(t, DecisionUseCached, d)
}

func TestEvaluateDefaultFreshServesCached(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	entry := Entry{
		Header:       http.Header{"Cache-Control": {"max-age=3600"}},
		ResponseTime: time.Now(),
	}
	d := Evaluate(ModeDefault, entry, true, req)
	assert.Equal(t, DecisionUseCached, d)
}

func TestEvaluateDefaultStaleRevalidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	entry := Entry{
		Header:       http.Header{"Cache-Control": {"max-age=10"}},
		ResponseTime: time.Now().Add(-time.Hour),
	}
	d := Evaluate(ModeDefault, entry, true, req)
	assert.Equal(t, DecisionRevalidate, d)
}

func TestEvaluateNoCacheAlwaysRevalidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	entry := Entry{
		Header:       http.Header{"Cache-Control": {"max-age=3600"}},
		ResponseTime: time.Now(),
	}
	d := Evaluate(ModeNoCache, entry, true, req)
	assert.Equal(t, DecisionRevalidate, d)
}

func TestEvaluateVaryMismatchFetches(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set("Accept-Encoding", "br")
	entry := Entry{
		Header:        http.Header{"Cache-Control": {"max-age=3600"}, "Vary": {"Accept-Encoding"}},
		ResponseTime:  time.Now(),
		VaryOnHeaders: map[string]string{"Accept-Encoding": "gzip"},
	}
	d := Evaluate(ModeDefault, entry, true, req)
	assert.Equal(t, DecisionFetch, d)
}

func TestCanStoreRejectsNoStore(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp := &http.Response{Header: http.Header{"Cache-Control": {"no-store"}}}
	assert.False(t, CanStore(req, resp))
}

func TestCanStoreRejectsNonGetHead(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/", nil)
	resp := &http.Response{Header: http.Header{}}
	assert.False(t, CanStore(req, resp))
}

func TestCanStoreAllowsPlainGet(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp := &http.Response{Header: http.Header{"Cache-Control": {"max-age=60"}}}
	assert.True(t, CanStore(req, resp))
}
