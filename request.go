package faith

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jroosing/faith/internal/dispatch"
	"github.com/jroosing/faith/internal/httpcache"
)

// Credentials mirrors the Fetch `credentials` request option (§6).
type Credentials int

const (
	// CredentialsSameOrigin is treated identically to Include (§9 Open
	// Questions: "same-origin treated as include").
	CredentialsSameOrigin Credentials = iota
	CredentialsInclude
	CredentialsOmit
)

// Redirect mirrors the Fetch `redirect` option (§6).
type Redirect int

const (
	RedirectFollow Redirect = iota
	RedirectStop
	RedirectError
)

// CacheMode mirrors the Fetch `cache` request option (§4.6, §6).
type CacheMode = httpcache.Mode

const (
	CacheDefault      = httpcache.ModeDefault
	CacheNoStore      = httpcache.ModeNoStore
	CacheReload       = httpcache.ModeReload
	CacheNoCache      = httpcache.ModeNoCache
	CacheForceCache   = httpcache.ModeForceCache
	CacheOnlyIfCached = httpcache.ModeOnlyIfCached
	CacheIgnoreRules  = httpcache.ModeIgnoreRules
)

// Timeouts is the connect/read/total timeout triple (§3, §6).
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Total   time.Duration
}

// Trace is a narrow set of optional low-level connect/redirect
// notification hooks a caller can attach to one request (§12 "WithTrace-
// style low-level connect/TLS/redirect event hooks").
type Trace = dispatch.Trace

// RequestOptions is the public surface for one fetch call's per-request
// overrides (§6 "Request options"), applied on top of the owning
// Agent's defaults.
type RequestOptions struct {
	Method      string
	Headers     *Headers
	Body        io.Reader
	BodyLen     int64 // -1 when unknown; required alongside Duplex for a streamed body
	Duplex      bool  // caller declared duplex: "half" for a streamed Body
	Timeouts    Timeouts
	Credentials Credentials
	Integrity   string
	Cache       CacheMode
	Redirect    Redirect
	Context     context.Context // nil means context.Background()
	Trace       *Trace
}

// forbiddenMethods are never sent directly by a caller (§4.7 step 2).
var forbiddenMethods = map[string]bool{"CONNECT": true, "TRACE": true, "TRACK": true}

// normalize validates and merges opts over the Agent's defaults,
// producing the internal dispatcher request (§4.7 steps 1-2).
func (a *Agent) normalize(rawURL string, opts RequestOptions) (*dispatch.Request, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	if forbiddenMethods[method] {
		return nil, NewError(InvalidMethod, "forbidden method: "+method, nil)
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, NewError(InvalidURL, "invalid request URL: "+rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewError(InvalidURL, "unsupported URL scheme: "+u.Scheme, nil)
	}

	if opts.Body != nil && opts.BodyLen < 0 && !opts.Duplex {
		return nil, NewError(InvalidHeader, "a streamed body requires duplex: \"half\"", nil)
	}

	header := a.defaultHeader()
	if opts.Headers != nil {
		for _, kv := range opts.Headers.Entries() {
			header.Add(kv[0], kv[1])
		}
	}

	credentials := dispatch.CredentialsMode(opts.Credentials)
	if credentials == dispatch.CredentialsOmit {
		u.User = nil
		header.Del("Cookie")
	}

	timeouts := a.mergeTimeouts(opts.Timeouts)

	redirectMode := dispatch.RedirectMode(opts.Redirect)
	if opts.Redirect == 0 && a.redirectDefault != dispatch.RedirectFollow {
		redirectMode = a.redirectDefault
	}

	bodyLen := opts.BodyLen
	if opts.Body == nil {
		bodyLen = 0
	}

	return &dispatch.Request{
		Method:       method,
		URL:          u,
		Header:       header,
		Body:         opts.Body,
		BodyLen:      bodyLen,
		Duplex:       opts.Duplex,
		CacheMode:    mergeCacheMode(opts.Cache, a.cacheDefault),
		RedirectMode: redirectMode,
		Credentials:  credentials,
		Integrity:    opts.Integrity,
		Timeouts:     timeouts,
		Trace:        opts.Trace,
	}, nil
}

func mergeCacheMode(requested, agentDefault CacheMode) CacheMode {
	if requested != CacheDefault {
		return requested
	}
	return agentDefault
}
