package cookiejar

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// key identifies one stored cookie, matching §4.5's "keyed by (domain,
// path, name)".
type key struct {
	Domain string
	Path   string
	Name   string
}

// Jar is a thread-safe cookie store scoped per Agent. A nil *Jar (or one
// built with Disabled) makes every read return "" and every write a
// no-op, matching the Agent "cookies: false" behaviour.
type Jar struct {
	mu       sync.Mutex
	cookies  map[key]Cookie
	disabled bool
}

// New returns an empty, enabled Jar.
func New() *Jar {
	return &Jar{cookies: map[key]Cookie{}}
}

// Disabled returns a Jar that never stores or returns cookies.
func Disabled() *Jar {
	return &Jar{disabled: true}
}

// AddCookie parses one Cookie-header-style pair (with optional
// attributes after ';') and stores it scoped to u's origin. This is the
// jar-level equivalent of a caller manually calling addCookie(url, raw).
func (j *Jar) AddCookie(u *url.URL, raw string) error {
	if j == nil || j.disabled {
		return nil
	}
	c, err := parseSetCookie(raw, u.Hostname(), u.Path)
	if err != nil {
		return err
	}
	if !j.acceptDomain(c.Domain, u.Hostname()) {
		return nil
	}
	j.store(c)
	return nil
}

// SetCookies parses every Set-Cookie header in resp for requests to u
// and inserts the ones that pass domain/secure checks.
func (j *Jar) SetCookies(u *url.URL, header http.Header) {
	if j == nil || j.disabled {
		return
	}
	for _, raw := range header.Values("Set-Cookie") {
		c, err := parseSetCookie(raw, u.Hostname(), u.Path)
		if err != nil {
			continue
		}
		if !j.acceptDomain(c.Domain, u.Hostname()) {
			continue
		}
		j.store(c)
	}
}

// acceptDomain refuses a Domain attribute that crosses the public
// suffix boundary (e.g. Set-Cookie: Domain=com) and that is not a
// suffix-match of the requesting host.
func (j *Jar) acceptDomain(cookieDomain, requestHost string) bool {
	if cookieDomain == "" {
		return false
	}
	if !domainMatches(cookieDomain, requestHost) {
		return false
	}
	if suffix, icann := publicsuffix.PublicSuffix(cookieDomain); icann && cookieDomain == suffix {
		return false
	}
	return true
}

func (j *Jar) store(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := key{Domain: c.Domain, Path: c.Path, Name: c.Name}
	if c.expired(time.Now()) {
		delete(j.cookies, k)
		return
	}
	j.cookies[k] = c
}

// Cookies returns the cookies that match u, sorted longest-path first.
// Callers that need the serialized Cookie header should use
// CookieHeader instead.
func (j *Jar) Cookies(u *url.URL) []Cookie {
	if j == nil || j.disabled {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	var matches []Cookie
	for k, c := range j.cookies {
		if c.expired(now) {
			delete(j.cookies, k)
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !domainMatches(c.Domain, u.Hostname()) {
			continue
		}
		if !pathMatches(c.Path, u.Path) {
			continue
		}
		matches = append(matches, c)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i].Path) > len(matches[j].Path)
	})
	return matches
}

// CookieHeader returns the serialized "name=value; name=value" string
// for u, or "" if no cookie matches (or the jar is disabled).
func (j *Jar) CookieHeader(u *url.URL) string {
	matches := j.Cookies(u)
	if len(matches) == 0 {
		return ""
	}
	parts := make([]string, len(matches))
	for i, c := range matches {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// Enabled reports whether the jar stores and returns cookies.
func (j *Jar) Enabled() bool {
	return j != nil && !j.disabled
}
