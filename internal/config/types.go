// Package config provides configuration loading for the Agent using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the FAITH_ prefix and underscore-separated keys:
//   - FAITH_RESOLVER_UPSTREAMS -> resolver.upstreams
//   - FAITH_POOL_MAX_PER_KEY -> pool.max_per_key
//   - FAITH_CACHE_MODE -> cache.mode
package config

import (
	"os"
	"strings"
)

// FamilyPreference mirrors resolver.FamilyPreference without importing
// it, so config stays independent of the resolver package.
type FamilyPreference int

const (
	// FamilyAuto lets Happy Eyeballs decide (IPv6-first if any AAAA exists).
	FamilyAuto FamilyPreference = iota
	FamilyPreferIPv4
	FamilyPreferIPv6
)

// String returns the YAML/env spelling of the family preference.
func (f FamilyPreference) String() string {
	switch f {
	case FamilyPreferIPv4:
		return "ipv4"
	case FamilyPreferIPv6:
		return "ipv6"
	default:
		return "auto"
	}
}

// OverrideConfig is one entry of an ordered DNS override list (§4.1).
type OverrideConfig struct {
	Domain    string   `yaml:"domain"    mapstructure:"domain"    json:"domain"`
	Addresses []string `yaml:"addresses" mapstructure:"addresses" json:"addresses"`
}

// ResolverConfig contains DNS resolution settings.
type ResolverConfig struct {
	Mode       string           `yaml:"mode"       mapstructure:"mode"       json:"mode"` // "system" or "recursive"
	Upstreams  []string         `yaml:"upstreams"  mapstructure:"upstreams"  json:"upstreams"`
	UDPTimeout string           `yaml:"udp_timeout" mapstructure:"udp_timeout" json:"udp_timeout"`
	TCPTimeout string           `yaml:"tcp_timeout" mapstructure:"tcp_timeout" json:"tcp_timeout"`
	MaxRetries int              `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
	Family     FamilyPreference `yaml:"-"          mapstructure:"-"          json:"-"`
	FamilyRaw  string           `yaml:"family"     mapstructure:"family"     json:"family"`
	Overrides  []OverrideConfig `yaml:"overrides"  mapstructure:"overrides"  json:"overrides,omitempty"`
}

// PoolConfig contains connection pool settings (C4).
type PoolConfig struct {
	MaxPerKey   int    `yaml:"max_per_key"   mapstructure:"max_per_key"   json:"max_per_key"`
	MaxTotal    int    `yaml:"max_total"     mapstructure:"max_total"     json:"max_total"`
	IdleTimeout string `yaml:"idle_timeout"  mapstructure:"idle_timeout"  json:"idle_timeout"`
}

// CacheConfig contains HTTP cache settings (C6).
type CacheConfig struct {
	Mode       string `yaml:"mode"        mapstructure:"mode"        json:"mode"` // default/no-store/reload/no-cache/force-cache/only-if-cached/ignore-rules
	Backend    string `yaml:"backend"     mapstructure:"backend"     json:"backend"` // "memory" or "disk"
	Directory  string `yaml:"directory"   mapstructure:"directory"   json:"directory,omitempty"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries" json:"max_entries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// PolicyConfig contains Agent-wide fetch defaults.
type PolicyConfig struct {
	Cookies        bool   `yaml:"cookies"         mapstructure:"cookies"         json:"cookies"`
	UserAgent      string `yaml:"user_agent"      mapstructure:"user_agent"      json:"user_agent"`
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`
	MaxRedirects   int    `yaml:"max_redirects"   mapstructure:"max_redirects"   json:"max_redirects"`
}

// Config is the root configuration structure for an Agent.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Pool     PoolConfig     `yaml:"pool"     mapstructure:"pool"`
	Cache    CacheConfig    `yaml:"cache"    mapstructure:"cache"`
	Logging  LoggingConfig  `yaml:"logging"  mapstructure:"logging"`
	Policy   PolicyConfig   `yaml:"policy"   mapstructure:"policy"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("FAITH_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (FAITH_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}

// parseFamily converts the family string to a FamilyPreference.
func parseFamily(raw string) FamilyPreference {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ipv4":
		return FamilyPreferIPv4
	case "ipv6":
		return FamilyPreferIPv6
	default:
		return FamilyAuto
	}
}
