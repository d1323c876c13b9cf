package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"NETWORK", "FACILITATOR_URL", "PAY_TO", "AMOUNT_MICROSTX",
		"MOCK_PAYMENTS", "PORT", "UPSTREAM_URL", "BASE_URL",
		"PUBLIC_BASE_URL", "LOG_LEVEL", "LOG_FORMAT", "ENVIRONMENT",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestDefaults_MockMode(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("MOCK_PAYMENTS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":3000" {
		t.Errorf("address = %q, want :3000", cfg.Server.Address)
	}
	if cfg.X402.Network != "stacks:2147483648" {
		t.Errorf("network = %q", cfg.X402.Network)
	}
	if cfg.X402.FacilitatorURL != "https://facilitator.stacksx402.com" {
		t.Errorf("facilitator = %q", cfg.X402.FacilitatorURL)
	}
	if cfg.Proxy.UpstreamURL != "http://localhost:4000" {
		t.Errorf("upstream = %q", cfg.Proxy.UpstreamURL)
	}
	if !cfg.X402.MockPayments {
		t.Error("mock payments should be enabled")
	}
	if cfg.Cache.IdempotencyTTL.Duration != 10*time.Minute {
		t.Errorf("idempotency ttl = %v", cfg.Cache.IdempotencyTTL.Duration)
	}
	if cfg.Cache.NonceTTL.Duration != 5*time.Minute {
		t.Errorf("nonce ttl = %v", cfg.Cache.NonceTTL.Duration)
	}
}

func TestLiveMode_RequiresPayToAndAmount(t *testing.T) {
	clearGatewayEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error in live mode without PAY_TO and AMOUNT_MICROSTX")
	}
	if !strings.Contains(err.Error(), "PAY_TO") {
		t.Errorf("error should name PAY_TO: %v", err)
	}
	if !strings.Contains(err.Error(), "AMOUNT_MICROSTX") {
		t.Errorf("error should name AMOUNT_MICROSTX: %v", err)
	}
}

func TestLiveMode_ValidEnv(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("PAY_TO", "ST2EXAMPLEADDRESS")
	t.Setenv("AMOUNT_MICROSTX", "10000")
	t.Setenv("PORT", "8080")
	t.Setenv("NETWORK", "stacks:1")
	t.Setenv("UPSTREAM_URL", "http://internal-api:9000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q, want :8080", cfg.Server.Address)
	}
	if cfg.X402.PayTo != "ST2EXAMPLEADDRESS" {
		t.Errorf("payTo = %q", cfg.X402.PayTo)
	}
	if cfg.X402.DefaultAmount != "10000" {
		t.Errorf("amount = %q", cfg.X402.DefaultAmount)
	}
	if cfg.X402.Network != "stacks:1" {
		t.Errorf("network = %q", cfg.X402.Network)
	}
	if cfg.Proxy.UpstreamURL != "http://internal-api:9000" {
		t.Errorf("upstream = %q", cfg.Proxy.UpstreamURL)
	}
}

func TestNonIntegerAmount_Rejected(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("PAY_TO", "ST2EXAMPLEADDRESS")
	t.Setenv("AMOUNT_MICROSTX", "10.5")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for fractional amount")
	}
	if !strings.Contains(err.Error(), "AMOUNT_MICROSTX") {
		t.Errorf("error should name AMOUNT_MICROSTX: %v", err)
	}
}

func TestYAMLFile_EnvOverrides(t *testing.T) {
	clearGatewayEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
server:
  address: ":5000"
  read_timeout: 5s
x402:
  mock_payments: true
  network: "stacks:99"
proxy:
  upstream_url: "http://file-upstream:4000"
  timeout: 45s
cache:
  idempotency_ttl: 2m
routes:
  premium_report:
    path: /v1/reports/premium
    method: GET
    amount: "250000"
    description: Premium analytics report
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("UPSTREAM_URL", "http://env-upstream:4000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":5000" {
		t.Errorf("address = %q, want :5000", cfg.Server.Address)
	}
	if cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout.Duration)
	}
	if cfg.X402.Network != "stacks:99" {
		t.Errorf("network = %q", cfg.X402.Network)
	}
	if cfg.Proxy.UpstreamURL != "http://env-upstream:4000" {
		t.Errorf("env should override file: upstream = %q", cfg.Proxy.UpstreamURL)
	}
	if cfg.Cache.IdempotencyTTL.Duration != 2*time.Minute {
		t.Errorf("idempotency ttl = %v", cfg.Cache.IdempotencyTTL.Duration)
	}

	route, ok := cfg.Routes["premium_report"]
	if !ok {
		t.Fatal("route premium_report missing")
	}
	if route.Path != "/v1/reports/premium" || route.Amount != "250000" {
		t.Errorf("route = %+v", route)
	}
}

func TestMissingFile_UsesDefaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("MOCK_PAYMENTS", "yes")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if !cfg.X402.MockPayments {
		t.Error("MOCK_PAYMENTS=yes should enable mock mode")
	}
}

func TestPublicBase(t *testing.T) {
	cfg := defaultConfig()
	cfg.X402.BaseURL = "http://localhost:3000"
	if got := cfg.PublicBase(); got != "http://localhost:3000" {
		t.Errorf("PublicBase = %q", got)
	}
	cfg.X402.PublicBaseURL = "https://api.example.com"
	if got := cfg.PublicBase(); got != "https://api.example.com" {
		t.Errorf("PublicBase = %q", got)
	}
}

func TestValidate_BadURLs(t *testing.T) {
	cfg := defaultConfig()
	cfg.X402.MockPayments = true
	cfg.Proxy.UpstreamURL = "ftp://nope"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-http upstream URL")
	}

	cfg = defaultConfig()
	cfg.X402.MockPayments = true
	cfg.Proxy.Prefix = "proxy"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for malformed proxy prefix")
	}
}
