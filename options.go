package faith

import (
	"log/slog"
	"time"

	"github.com/jroosing/faith/internal/resolver"
)

// DNSOptions configures an Agent's name resolution (§6 "dns").
type DNSOptions struct {
	System    bool // use the OS resolver instead of the recursive backend
	Overrides []resolver.Override

	// Family steers Happy Eyeballs candidate ordering (§4.1). Zero value
	// is resolver.PreferAuto (IPv6-first whenever an AAAA answer exists).
	Family resolver.FamilyPreference

	// Upstreams/PoolSize/UDPTimeout/TCPTimeout/MaxRetries configure the
	// recursive backend; ignored when System is true.
	Upstreams  []string
	PoolSize   int
	UDPTimeout time.Duration
	TCPTimeout time.Duration
	MaxRetries int
}

// HTTP3Options configures an Agent's HTTP/3 upgrade behavior (§6 "http3").
type HTTP3Options struct {
	UpgradeEnabled bool
	Congestion     string // "cubic" | "bbr1"; advisory, see DESIGN.md
	Hints          []AltSvcHint
}

// AltSvcHint is an explicit caller-supplied h3 upgrade hint, seeded into
// the AltSvc store before the first request to origin (§4.3 "Explicit
// user hints").
type AltSvcHint struct {
	Origin string
	Host   string
	Port   int
}

// CacheStoreKind selects the HTTP cache backend (§6 "cache").
type CacheStoreKind int

const (
	CacheStoreNone CacheStoreKind = iota
	CacheStoreMemory
	CacheStoreDisk
)

// CacheOptions configures an Agent's HTTP cache (§6 "cache").
type CacheOptions struct {
	Store    CacheStoreKind
	Path     string // required for CacheStoreDisk
	Capacity int
	Mode     CacheMode // default mode new requests inherit
}

// HeaderOption is one Agent-default header, with an opt-out of the
// logging/redaction surface for sensitive values (§6 "headers").
type HeaderOption struct {
	Name      string
	Value     string
	Sensitive bool
}

// AgentOptions configures a new Agent (§6 "Agent constructor options").
type AgentOptions struct {
	UserAgent string
	Headers   []HeaderOption
	Cookies   bool
	Timeouts  Timeouts
	DNS       DNSOptions
	HTTP3     HTTP3Options
	Cache     CacheOptions
	Redirect  Redirect

	// MaxRedirects overrides the implementation-defined redirect cap
	// (§4.7 step 9 names 10 as the example default).
	MaxRedirects int

	// PoolMaxPerOrigin/PoolMaxTotal/PoolIdleTimeout tune the connection
	// pool (§4.4); zero values fall back to its own defaults.
	PoolMaxPerOrigin int
	PoolMaxTotal     int
	PoolIdleTimeout  time.Duration

	// Logger receives the Agent's structured diagnostic events (dial
	// failures, AltSvc upgrades, cache decisions). Nil disables logging.
	Logger *slog.Logger
}
