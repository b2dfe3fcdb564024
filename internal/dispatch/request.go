package dispatch

import (
	"context"
	"net"
	"net/http"

	"github.com/jroosing/faith/internal/errkind"
)

// buildHTTPRequest adapts the dispatcher's policy-merged Request into a
// stdlib *http.Request the wireConn framers (h1Conn/h2Conn/h3RoundTripper)
// can all send, validating the method along the way (§4.7 step 1/7).
func buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	if !validMethod(req.Method) {
		return nil, errkind.New(errkind.InvalidMethod, "method not allowed: "+req.Method, nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, errkind.New(errkind.InvalidURL, "building request", err)
	}
	httpReq.Header = req.Header
	if req.BodyLen >= 0 {
		httpReq.ContentLength = req.BodyLen
	} else {
		httpReq.ContentLength = -1
	}
	return httpReq, nil
}

// validMethod rejects the methods Fetch forbids a caller from issuing
// directly (§4.7 step 1, § GLOSSARY "forbidden method").
func validMethod(method string) bool {
	switch method {
	case "CONNECT", "TRACE", "TRACK":
		return false
	case "":
		return false
	default:
		return true
	}
}

// hostPortSplit is net.SplitHostPort, named locally so dispatch.go's
// telemetry helpers read as one vocabulary.
func hostPortSplit(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}
