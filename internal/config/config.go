// Package config provides configuration loading and validation for the Agent.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (FAITH_* prefix)
//  2. YAML config file (if specified)
//  3. Hardcoded defaults
//
// Environment variables are mapped from FAITH_CATEGORY_SETTING format,
// e.g., FAITH_RESOLVER_UPSTREAMS maps to resolver.upstreams in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding
	// Uses FAITH_ prefix: FAITH_RESOLVER_UPSTREAMS -> resolver.upstreams
	v.SetEnvPrefix("FAITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Resolver defaults
	v.SetDefault("resolver.mode", "system")
	v.SetDefault("resolver.upstreams", []string{"8.8.8.8", "1.1.1.1"})
	v.SetDefault("resolver.udp_timeout", "3s")
	v.SetDefault("resolver.tcp_timeout", "5s")
	v.SetDefault("resolver.max_retries", 2)
	v.SetDefault("resolver.family", "auto")
	v.SetDefault("resolver.overrides", []OverrideConfig{})

	// Connection pool defaults
	v.SetDefault("pool.max_per_key", 6)
	v.SetDefault("pool.max_total", 256)
	v.SetDefault("pool.idle_timeout", "90s")

	// HTTP cache defaults
	v.SetDefault("cache.mode", "default")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.directory", "")
	v.SetDefault("cache.max_entries", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Fetch policy defaults
	v.SetDefault("policy.cookies", true)
	v.SetDefault("policy.user_agent", "faith/1")
	v.SetDefault("policy.request_timeout", "30s")
	v.SetDefault("policy.max_redirects", 10)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadResolverConfig(v, cfg)
	loadPoolConfig(v, cfg)
	loadCacheConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadPolicyConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadResolverConfig(v *viper.Viper, cfg *Config) {
	cfg.Resolver.Mode = strings.ToLower(v.GetString("resolver.mode"))
	cfg.Resolver.Upstreams = getStringSliceOrSplit(v, "resolver.upstreams")
	cfg.Resolver.UDPTimeout = v.GetString("resolver.udp_timeout")
	cfg.Resolver.TCPTimeout = v.GetString("resolver.tcp_timeout")
	cfg.Resolver.MaxRetries = v.GetInt("resolver.max_retries")
	cfg.Resolver.FamilyRaw = v.GetString("resolver.family")
	cfg.Resolver.Family = parseFamily(cfg.Resolver.FamilyRaw)

	if err := v.UnmarshalKey("resolver.overrides", &cfg.Resolver.Overrides); err != nil {
		cfg.Resolver.Overrides = nil
	}
}

func loadPoolConfig(v *viper.Viper, cfg *Config) {
	cfg.Pool.MaxPerKey = v.GetInt("pool.max_per_key")
	cfg.Pool.MaxTotal = v.GetInt("pool.max_total")
	cfg.Pool.IdleTimeout = v.GetString("pool.idle_timeout")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.Mode = strings.ToLower(v.GetString("cache.mode"))
	cfg.Cache.Backend = strings.ToLower(v.GetString("cache.backend"))
	cfg.Cache.Directory = v.GetString("cache.directory")
	cfg.Cache.MaxEntries = v.GetInt("cache.max_entries")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadPolicyConfig(v *viper.Viper, cfg *Config) {
	cfg.Policy.Cookies = v.GetBool("policy.cookies")
	cfg.Policy.UserAgent = v.GetString("policy.user_agent")
	cfg.Policy.RequestTimeout = v.GetString("policy.request_timeout")
	cfg.Policy.MaxRedirects = v.GetInt("policy.max_redirects")
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

var validCacheModes = map[string]bool{
	"default": true, "no-store": true, "reload": true, "no-cache": true,
	"force-cache": true, "only-if-cached": true, "ignore-rules": true,
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Resolver.Mode != "system" && cfg.Resolver.Mode != "recursive" {
		return fmt.Errorf("resolver.mode must be \"system\" or \"recursive\", got %q", cfg.Resolver.Mode)
	}
	if cfg.Resolver.Mode == "recursive" && len(cfg.Resolver.Upstreams) == 0 {
		return errors.New("resolver.upstreams must be non-empty in recursive mode")
	}
	if len(cfg.Resolver.Upstreams) > 3 {
		cfg.Resolver.Upstreams = cfg.Resolver.Upstreams[:3]
	}

	if cfg.Cache.Backend != "memory" && cfg.Cache.Backend != "disk" {
		return fmt.Errorf("cache.backend must be \"memory\" or \"disk\", got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "disk" && cfg.Cache.Directory == "" {
		return errors.New("cache.directory is required when cache.backend is \"disk\"")
	}
	if !validCacheModes[cfg.Cache.Mode] {
		return fmt.Errorf("cache.mode %q is not a recognized mode", cfg.Cache.Mode)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Policy.UserAgent == "" {
		cfg.Policy.UserAgent = "faith/1"
	}
	if cfg.Policy.MaxRedirects < 0 {
		return errors.New("policy.max_redirects must be >= 0")
	}

	return nil
}
