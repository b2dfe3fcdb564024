// Package cookiejar implements the Agent's cookie store (§4.5): parsing
// Set-Cookie headers, scoping by domain/path, and serializing the
// Cookie header for outgoing requests.
package cookiejar

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cookie is one stored name/value pair plus its matching attributes.
type Cookie struct {
	Name     string
	Value    string
	Domain   string // stored without a leading dot; matches domain and subdomains
	Path     string
	Expires  time.Time // zero means session cookie, never expires on its own
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && now.After(c.Expires)
}

// parseSetCookie parses one Set-Cookie header value, scoping it to
// requestHost/requestPath for any attribute it omits.
func parseSetCookie(raw, requestHost, requestPath string) (Cookie, error) {
	parts := strings.Split(raw, ";")
	nv := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nv) != 2 || nv[0] == "" {
		return Cookie{}, fmt.Errorf("cookiejar: malformed Set-Cookie %q", raw)
	}

	c := Cookie{
		Name:   strings.TrimSpace(nv[0]),
		Value:  strings.TrimSpace(nv[1]),
		Domain: requestHost,
		Path:   defaultPath(requestPath),
	}

	var maxAge *int
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := ""
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}
		switch key {
		case "domain":
			if val != "" {
				c.Domain = strings.TrimPrefix(strings.ToLower(val), ".")
			}
		case "path":
			if strings.HasPrefix(val, "/") {
				c.Path = val
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "samesite":
			c.SameSite = parseSameSite(val)
		case "max-age":
			if n, err := strconv.Atoi(val); err == nil {
				maxAge = &n
			}
		case "expires":
			if t, err := http.ParseTime(val); err == nil {
				c.Expires = t
			}
		}
	}
	// Max-Age takes priority over Expires per RFC 6265bis.
	if maxAge != nil {
		if *maxAge <= 0 {
			c.Expires = time.Unix(0, 0)
		} else {
			c.Expires = time.Now().Add(time.Duration(*maxAge) * time.Second)
		}
	}
	return c, nil
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

// defaultPath derives the default cookie path from a request path, per
// RFC 6265bis §5.1.4: everything up to, but not including, the last '/', or
// "/" if that would be empty or there's no '/' at all.
func defaultPath(reqPath string) string {
	if reqPath == "" || reqPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(reqPath, '/')
	if i == 0 {
		return "/"
	}
	return reqPath[:i]
}

func domainMatches(cookieDomain, host string) bool {
	host = strings.ToLower(host)
	if cookieDomain == host {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

func pathMatches(cookiePath, reqPath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if cookiePath == reqPath {
		return true
	}
	if strings.HasPrefix(reqPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		return len(reqPath) > len(cookiePath) && reqPath[len(cookiePath)] == '/'
	}
	return false
}
