package dispatch

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/jroosing/faith/internal/bodystream"
	"github.com/jroosing/faith/internal/httpcache"
)

// resultFromCacheEntry builds a Result directly from a stored cache
// entry, never touching the network (§4.6 "force-cache"/"only-if-cached").
func resultFromCacheEntry(req *Request, entry httpcache.Entry) *Result {
	body := bodystream.New(io.NopCloser(bytes.NewReader(entry.Body)), nil)
	return &Result{
		StatusCode: entry.Status,
		Status:     http.StatusText(entry.Status),
		Header:     entry.Header,
		URL:        req.URL,
		Proto:      "HTTP/1.1",
		Body:       body,
	}
}

// addValidators attaches If-None-Match/If-Modified-Since to a revalidation
// request built from a stale cached entry (§4.6 "revalidate").
func addValidators(header http.Header, entry httpcache.Entry) {
	if etag := entry.Header.Get("ETag"); etag != "" {
		header.Set("If-None-Match", etag)
	}
	if lm := entry.Header.Get("Last-Modified"); lm != "" {
		header.Set("If-Modified-Since", lm)
	}
}

// cacheStorable reports whether httpResp is eligible for storage under
// req's cache policy, per RFC 9111 store rules (§4.6).
func cacheStorable(req *Request, httpResp *http.Response) bool {
	fakeReq := &http.Request{Method: req.Method, URL: req.URL, Header: req.Header}
	return httpcache.CanStore(fakeReq, httpResp)
}

// storeCacheEntry writes httpResp's full (already drained) body into the
// cache. Called from the body handle's onSettle hook, once body bytes
// are actually known, rather than eagerly at header-receive time.
func (d *Dispatcher) storeCacheEntry(cacheKey string, req *Request, httpResp *http.Response, body []byte) {
	now := time.Now()
	_ = d.Cache.Set(cacheKey, httpcache.Entry{
		Status:        httpResp.StatusCode,
		Header:        httpResp.Header,
		Body:          body,
		RequestTime:   now,
		ResponseTime:  now,
		VaryOnHeaders: httpcache.VaryFields(httpResp.Header, req.Header),
	})
}

// refreshCachedEntry handles a 304 Not Modified revalidation response:
// the stored entry's headers are refreshed from the 304 and its cached
// body is served in place of the (always-empty) 304 body.
func (d *Dispatcher) refreshCachedEntry(req *Request, httpResp *http.Response, cacheKey string, _ *bodystream.Handle) (*Result, error) {
	entry, found, err := d.Cache.Get(cacheKey)
	if err != nil || !found {
		return &Result{StatusCode: httpResp.StatusCode, Status: httpResp.Status, Header: httpResp.Header, URL: req.URL, Proto: httpResp.Proto, Body: bodystream.NewEmpty()}, nil
	}
	for k, v := range httpResp.Header {
		entry.Header[k] = v
	}
	entry.ResponseTime = time.Now()
	_ = d.Cache.Set(cacheKey, entry)

	return &Result{
		StatusCode: entry.Status,
		Status:     http.StatusText(entry.Status),
		Header:     entry.Header,
		URL:        req.URL,
		Proto:      httpResp.Proto,
		Body:       bodystream.New(io.NopCloser(bytes.NewReader(entry.Body)), nil),
	}, nil
}
