package faith

import (
	"time"

	"github.com/jroosing/faith/internal/config"
	"github.com/jroosing/faith/internal/logging"
	"github.com/jroosing/faith/internal/resolver"
)

// AgentFromConfig builds an Agent from a YAML config file (plus FAITH_*
// environment overrides), in place of hand-assembling AgentOptions (§6
// "Agent constructor options" can equally be supplied out of process
// config). path may be "" to load purely from defaults/environment.
func AgentFromConfig(path string) (*Agent, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewError(InvalidHeader, "loading agent configuration", err)
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		Component:        "faith",
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	opts := AgentOptions{
		UserAgent: cfg.Policy.UserAgent,
		Cookies:   cfg.Policy.Cookies,
		Logger:    logger,
		DNS: DNSOptions{
			System:     cfg.Resolver.Mode == "system",
			Upstreams:  cfg.Resolver.Upstreams,
			UDPTimeout: parseDurationOr(cfg.Resolver.UDPTimeout, 2*time.Second),
			TCPTimeout: parseDurationOr(cfg.Resolver.TCPTimeout, 5*time.Second),
			MaxRetries: cfg.Resolver.MaxRetries,
			Family:     resolverFamily(cfg.Resolver.Family),
		},
		Cache: CacheOptions{
			Store:    cacheStoreKind(cfg.Cache.Backend),
			Path:     cfg.Cache.Directory,
			Capacity: cfg.Cache.MaxEntries,
			Mode:     cacheModeFromString(cfg.Cache.Mode),
		},
		MaxRedirects:    cfg.Policy.MaxRedirects,
		PoolMaxPerOrigin: cfg.Pool.MaxPerKey,
		PoolMaxTotal:     cfg.Pool.MaxTotal,
		PoolIdleTimeout:  parseDurationOr(cfg.Pool.IdleTimeout, 0),
		Timeouts: Timeouts{
			Total: parseDurationOr(cfg.Policy.RequestTimeout, 0),
		},
	}
	for _, o := range cfg.Resolver.Overrides {
		opts.DNS.Overrides = append(opts.DNS.Overrides, resolver.Override{
			Domain: o.Domain, Addresses: o.Addresses,
		})
	}

	return NewAgent(opts), nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func resolverFamily(f config.FamilyPreference) resolver.FamilyPreference {
	switch f {
	case config.FamilyPreferIPv4:
		return resolver.PreferIPv4
	case config.FamilyPreferIPv6:
		return resolver.PreferIPv6
	default:
		return resolver.PreferAuto
	}
}

func cacheStoreKind(backend string) CacheStoreKind {
	if backend == "disk" {
		return CacheStoreDisk
	}
	return CacheStoreMemory
}

func cacheModeFromString(mode string) CacheMode {
	switch mode {
	case "no-store":
		return CacheNoStore
	case "reload":
		return CacheReload
	case "no-cache":
		return CacheNoCache
	case "force-cache":
		return CacheForceCache
	case "only-if-cached":
		return CacheOnlyIfCached
	case "ignore-rules":
		return CacheIgnoreRules
	default:
		return CacheDefault
	}
}
