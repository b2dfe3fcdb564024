package dispatch

import (
	"net/http"
)

// buildRedirectRequest implements Fetch's redirect-follow semantics
// (§4.7 step 9): resolve Location against the current URL and, for
// 301/302/303, switch POST-like methods to GET and drop the body. A
// false second return means the redirect cannot be followed (missing or
// unparsable Location) and the 3xx response should be returned as-is.
func buildRedirectRequest(req *Request, res *Result) (*Request, bool) {
	loc := res.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	target, err := req.URL.Parse(loc)
	if err != nil {
		return nil, false
	}

	next := req.Clone()
	next.URL = target
	next.Header.Del("Cookie")

	switch res.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound:
		if next.Method == http.MethodPost {
			next.Method = http.MethodGet
			next.Body = nil
			next.BodyLen = 0
			next.Header.Del("Content-Type")
			next.Header.Del("Content-Length")
		}
	case http.StatusSeeOther:
		if next.Method != http.MethodGet && next.Method != http.MethodHead {
			next.Method = http.MethodGet
		}
		next.Body = nil
		next.BodyLen = 0
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Length")
	}
	// 307/308 preserve method and body unchanged.

	return next, true
}
