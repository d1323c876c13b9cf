package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultConfig returns the configuration used when no file or environment
// overrides are present. The defaults form a working mock-mode gateway on
// localhost so `MOCK_PAYMENTS=true go run ./cmd/gateway` just works.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:            ":3000",
			ReadTimeout:        Duration{15 * time.Second},
			WriteTimeout:       Duration{60 * time.Second},
			IdleTimeout:        Duration{120 * time.Second},
			CORSAllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "development",
		},
		X402: X402Config{
			Network:        "stacks:2147483648",
			FacilitatorURL: "https://facilitator.stacksx402.com",
			Asset:          "STX",
			MockPayments:   false,
			BaseURL:        "http://localhost:3000",
		},
		Proxy: ProxyConfig{
			UpstreamURL:   "http://localhost:4000",
			Prefix:        "/proxy/",
			Timeout:       Duration{30 * time.Second},
			RequirePolicy: false,
		},
		Cache: CacheConfig{
			IdempotencyTTL: Duration{10 * time.Minute},
			NonceTTL:       Duration{5 * time.Minute},
			SweepInterval:  Duration{time.Minute},
		},
		Discovery: DiscoveryConfig{
			Name:        "x402 Payment Gateway",
			Description: "Pay-per-call API gateway settling over the x402 protocol",
		},
		Routes: map[string]RouteConfig{},
	}
}

// Load builds the effective configuration: defaults, then the optional YAML
// file at path, then environment variables, then validation. An empty path
// skips the file stage entirely.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PublicBase returns the base URL used for discovery resource fields,
// preferring the public HTTPS base when one is configured.
func (c *Config) PublicBase() string {
	if c.X402.PublicBaseURL != "" {
		return c.X402.PublicBaseURL
	}
	return c.X402.BaseURL
}
