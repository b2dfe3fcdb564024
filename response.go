package faith

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"unicode/utf8"

	"github.com/jroosing/faith/internal/bodystream"
	"github.com/jroosing/faith/internal/dispatch"
)

// Response is the value a Fetch call resolves to (§3 "Response exposed
// to caller", §6 "Response properties").
type Response struct {
	Status      int
	StatusText  string
	Header      http.Header
	URL         *url.URL
	Redirected  bool
	Version     string // "HTTP/1.1" | "HTTP/2.0" | "HTTP/3.0"
	Peer        PeerInfo
	Type        string // always "basic" (§6)

	body *bodystream.Handle
}

// PeerInfo carries the connection's TLS identity, or the zero value for
// plaintext connections (§3 "Response exposed to caller").
type PeerInfo struct {
	Address     string
	Certificate []byte // leaf certificate DER; nil for plaintext
}

func newResponse(r *dispatch.Result) *Response {
	return &Response{
		Status:     r.StatusCode,
		StatusText: r.Status,
		Header:     r.Header,
		URL:        r.URL,
		Redirected: r.Redirected,
		Version:    r.Proto,
		Peer:       PeerInfo{Address: r.Peer.Address, Certificate: r.Peer.Certificate},
		Type:       "basic",
		body:       r.Body,
	}
}

// OK reports whether Status is in [200, 300) (§6 "ok").
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// BodyUsed reports whether the body has left the Fresh state (§6
// "bodyUsed").
func (r *Response) BodyUsed() bool {
	return r.body.State() != bodystream.Fresh
}

// Bytes drains the full body and returns the raw (decompressed,
// integrity-checked) bytes (§6 "bytes()").
func (r *Response) Bytes(ctx context.Context) ([]byte, error) {
	data, err := r.body.Drain(ctx)
	if err != nil {
		return nil, bodyError(err)
	}
	return data, nil
}

// Text drains the body and decodes it as UTF-8 (§6 "text()"). A body
// that is not valid UTF-8 fails with UTF8Parse.
func (r *Response) Text(ctx context.Context) (string, error) {
	data, err := r.Bytes(ctx)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", NewError(UTF8Parse, "response body is not valid UTF-8", nil)
	}
	return string(data), nil
}

// JSON drains the body and unmarshals it into v (§6 "json()").
func (r *Response) JSON(ctx context.Context, v any) error {
	data, err := r.Bytes(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewError(JSONParse, "response body is not valid JSON", err)
	}
	return nil
}

// ArrayBuffer is an alias for Bytes, named to mirror the Fetch standard
// method the spec names alongside bytes() (§6 "arrayBuffer()").
func (r *Response) ArrayBuffer(ctx context.Context) ([]byte, error) {
	return r.Bytes(ctx)
}

// Blob drains the body and returns it alongside its declared MIME type,
// mirroring the Fetch standard's Blob view over a response body (§6
// "blob()").
func (r *Response) Blob(ctx context.Context) (Blob, error) {
	data, err := r.Bytes(ctx)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Data: data, Type: r.Header.Get("Content-Type")}, nil
}

// Blob is a drained body paired with its content type.
type Blob struct {
	Data []byte
	Type string
}

// Stream transitions the body to Streaming and returns a reader tied to
// its SharedStream (§4.8 "Stream access").
func (r *Response) Stream() (io.ReadCloser, error) {
	rc, err := r.body.Stream()
	if err != nil {
		return nil, bodyError(err)
	}
	return rc, nil
}

// Clone duplicates the Response, including an independent Fresh handle
// over the same underlying body stream; only legal while the original
// is still Fresh (§4.8 "Clone semantics").
func (r *Response) Clone() (*Response, error) {
	cloned, err := r.body.Clone()
	if err != nil {
		return nil, bodyError(err)
	}
	cp := *r
	cp.body = cloned
	return &cp, nil
}

// WebResponse produces a platform-standard *http.Response view over the
// same body, for callers that want to hand the Response to code written
// against net/http (§6 "webResponse()"). The returned Response's body
// settles this Response's body handle when read or closed, so only one
// of the two views should be drained.
func (r *Response) WebResponse() (*http.Response, error) {
	rc, err := r.Stream()
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: r.Status,
		Status:     r.StatusText,
		Header:     r.Header,
		Proto:      r.Version,
		Body:       rc,
	}, nil
}

// bodyError maps bodystream's sentinel into a stable faith Kind (§7).
func bodyError(err error) error {
	if err == bodystream.ErrAlreadyDisturbed {
		return NewError(ResponseAlreadyDisturbed, "response body already disturbed", err)
	}
	if fe, ok := err.(*Error); ok {
		return fe
	}
	return NewError(BodyStream, "reading response body", err)
}
