package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Validate checks ranges and enum constraints. Every error starts with
// CONFIG_INVALID and names the offending key.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("CONFIG_INVALID: nil config")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return fmt.Errorf("CONFIG_INVALID: limits: %w", err)
	}
	if len(splitTypes(cfg.Documents.Types)) == 0 {
		return fmt.Errorf("CONFIG_INVALID: documents.types must list at least one suffix")
	}
	if strings.TrimSpace(cfg.State.Dir) == "" && cfg.State.History {
		return fmt.Errorf("CONFIG_INVALID: state.dir is required when state.history is enabled")
	}
	if _, _, err := net.SplitHostPort(cfg.Server.Listen); err != nil {
		return fmt.Errorf("CONFIG_INVALID: server.listen=%q: %v", cfg.Server.Listen, err)
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("CONFIG_INVALID: server.max_upload_bytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Server.RateLimitRPS < 0 {
		return fmt.Errorf("CONFIG_INVALID: server.rate_limit_rps must not be negative, got %v", cfg.Server.RateLimitRPS)
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return fmt.Errorf("CONFIG_INVALID: server.rate_limit_burst must be at least 1 when rate limiting is enabled")
	}
	for _, proxy := range cfg.Server.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("CONFIG_INVALID: server.trusted_proxies entry %q is not an IP or CIDR", proxy)
		}
	}
	if cfg.Text.Workers < 1 {
		return fmt.Errorf("CONFIG_INVALID: text.workers must be at least 1, got %d", cfg.Text.Workers)
	}
	if cfg.Text.MaxBytes <= 0 {
		return fmt.Errorf("CONFIG_INVALID: text.max_bytes must be positive, got %d", cfg.Text.MaxBytes)
	}
	if !slices.Contains(LogLevels, cfg.Log.Level) {
		return fmt.Errorf("CONFIG_INVALID: log.level=%q; allowed: %s", cfg.Log.Level, strings.Join(LogLevels, ", "))
	}
	if !slices.Contains(LogFormats, cfg.Log.Format) {
		return fmt.Errorf("CONFIG_INVALID: log.format=%q; allowed: %s", cfg.Log.Format, strings.Join(LogFormats, ", "))
	}
	return nil
}

func splitTypes(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), ".")); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func validProxy(value string) bool {
	if strings.Contains(value, "/") {
		_, _, err := net.ParseCIDR(value)
		return err == nil
	}
	return net.ParseIP(value) != nil
}
