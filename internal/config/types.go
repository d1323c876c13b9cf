package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or
// numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits
// human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and
// environment variables.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Logging   LoggingConfig          `yaml:"logging"`
	X402      X402Config             `yaml:"x402"`
	Proxy     ProxyConfig            `yaml:"proxy"`
	Cache     CacheConfig            `yaml:"cache"`
	Discovery DiscoveryConfig        `yaml:"discovery"`
	Routes    map[string]RouteConfig `yaml:"routes"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// X402Config holds payment protocol configuration.
type X402Config struct {
	Network        string `yaml:"network"`          // CAIP-2-style chain identifier
	FacilitatorURL string `yaml:"facilitator_url"`  // base URL for /verify and /settle
	PayTo          string `yaml:"pay_to"`           // recipient address (required in live mode)
	DefaultAmount  string `yaml:"default_amount"`   // default route price in microSTX (required in live mode)
	Asset          string `yaml:"asset"`            // asset symbol, default STX
	MockPayments   bool   `yaml:"mock_payments"`    // bypass the facilitator and synthesize receipts
	BaseURL        string `yaml:"base_url"`         // canonical base for 402 resource URLs
	PublicBaseURL  string `yaml:"public_base_url"`  // HTTPS base for discovery resource fields
}

// ProxyConfig holds upstream forwarding configuration.
type ProxyConfig struct {
	UpstreamURL   string   `yaml:"upstream_url"`
	Prefix        string   `yaml:"prefix"` // reserved proxy subtree, default /proxy/
	Timeout       Duration `yaml:"timeout"`
	RequirePolicy bool     `yaml:"require_policy"` // 404 unpriced proxy paths instead of free forwarding
}

// CacheConfig holds TTL cache tuning.
type CacheConfig struct {
	IdempotencyTTL Duration `yaml:"idempotency_ttl"` // default 10m
	NonceTTL       Duration `yaml:"nonce_ttl"`       // default 5m
	SweepInterval  Duration `yaml:"sweep_interval"`  // default 1m
}

// DiscoveryConfig holds /.well-known/x402 document metadata.
type DiscoveryConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
}

// RouteConfig declares one priced route in YAML. Amounts use the asset's
// smallest unit as a decimal integer string, same as the wire format.
type RouteConfig struct {
	Path           string            `yaml:"path"`
	Method         string            `yaml:"method"`
	Amount         string            `yaml:"amount"`
	Asset          string            `yaml:"asset"`
	Description    string            `yaml:"description"`
	MimeType       string            `yaml:"mime_type"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Extra          map[string]string `yaml:"extra"`
}
