package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/stacksx402/gateway/pkg/x402"
)

// Validate checks the configuration for startup-blocking problems. Live mode
// (mock payments off) requires a recipient and a price; mock mode synthesizes
// receipts and needs neither.
func (c *Config) Validate() error {
	var problems []string

	if !c.X402.MockPayments {
		if c.X402.PayTo == "" {
			problems = append(problems, "PAY_TO is required when MOCK_PAYMENTS is not enabled")
		}
		if c.X402.DefaultAmount == "" {
			problems = append(problems, "AMOUNT_MICROSTX is required when MOCK_PAYMENTS is not enabled")
		}
		if c.X402.FacilitatorURL == "" {
			problems = append(problems, "FACILITATOR_URL must not be empty")
		}
	}

	if c.X402.DefaultAmount != "" {
		if _, err := x402.ParseAmount(c.X402.DefaultAmount); err != nil {
			problems = append(problems, fmt.Sprintf("AMOUNT_MICROSTX %q is not a decimal integer", c.X402.DefaultAmount))
		}
	}

	if c.X402.Network == "" {
		problems = append(problems, "NETWORK must not be empty")
	}

	for _, name := range []struct {
		label string
		value string
	}{
		{"FACILITATOR_URL", c.X402.FacilitatorURL},
		{"UPSTREAM_URL", c.Proxy.UpstreamURL},
		{"BASE_URL", c.X402.BaseURL},
		{"PUBLIC_BASE_URL", c.X402.PublicBaseURL},
	} {
		if name.value == "" {
			continue
		}
		if err := validateURL(name.value); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name.label, err))
		}
	}

	if !strings.HasPrefix(c.Proxy.Prefix, "/") || !strings.HasSuffix(c.Proxy.Prefix, "/") {
		problems = append(problems, fmt.Sprintf("proxy prefix %q must start and end with a slash", c.Proxy.Prefix))
	}

	for name, route := range c.Routes {
		if route.Path == "" {
			problems = append(problems, fmt.Sprintf("route %s: path is required", name))
		}
		if route.Amount != "" {
			if _, err := x402.ParseAmount(route.Amount); err != nil {
				problems = append(problems, fmt.Sprintf("route %s: amount %q is not a decimal integer", name, route.Amount))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q is missing a host", raw)
	}
	return nil
}
