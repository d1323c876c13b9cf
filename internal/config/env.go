package config

import (
	"os"
	"strings"
)

// applyEnv overlays environment variables onto the configuration. Environment
// always wins over file values so containerized deployments can override a
// baked-in config without editing it.
func applyEnv(cfg *Config) {
	setString(&cfg.X402.Network, "NETWORK")
	setString(&cfg.X402.FacilitatorURL, "FACILITATOR_URL")
	setString(&cfg.X402.PayTo, "PAY_TO")
	setString(&cfg.X402.DefaultAmount, "AMOUNT_MICROSTX")
	setString(&cfg.X402.BaseURL, "BASE_URL")
	setString(&cfg.X402.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&cfg.Proxy.UpstreamURL, "UPSTREAM_URL")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Environment, "ENVIRONMENT")

	if v, ok := lookup("MOCK_PAYMENTS"); ok {
		cfg.X402.MockPayments = isTruthy(v)
	}
	if v, ok := lookup("PORT"); ok {
		cfg.Server.Address = ":" + v
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func setString(dst *string, name string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

// isTruthy accepts the usual boolean spellings; anything else is false.
func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
