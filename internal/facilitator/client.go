// Package facilitator talks to the external x402 facilitator service, which
// owns all chain interaction. The gateway never validates signatures or
// inspects transactions itself; it asks /verify and /settle and trusts the
// answers.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/stacksx402/gateway/internal/httputil"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/pkg/x402"
)

const defaultTimeout = 30 * time.Second

// Client calls the facilitator's verify and settle endpoints. A circuit
// breaker guards the facilitator so a dead settlement service fails fast
// instead of stacking up blocked requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
}

// request is the body POSTed to both /verify and /settle. The facilitator
// receives the raw signature header untouched plus the offer it must be
// checked against.
type request struct {
	PaymentSignature string             `json:"paymentSignature"`
	Requirements     x402.PaymentAccept `json:"requirements"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMetrics attaches latency instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a facilitator client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httputil.NewClient(defaultTimeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "facilitator",
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("facilitator.breaker_state_changed")
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify asks the facilitator whether the signed payment is valid for the
// given offer. A reachable facilitator that rejects the payment is not an
// error; the result carries Valid=false.
func (c *Client) Verify(ctx context.Context, paymentSignature string, offer x402.PaymentAccept) (x402.VerifyResult, error) {
	var result x402.VerifyResult
	err := c.post(ctx, "verify", paymentSignature, offer, &result)
	if err != nil {
		return x402.VerifyResult{}, err
	}
	return result, nil
}

// Settle asks the facilitator to broadcast the payment transaction.
func (c *Client) Settle(ctx context.Context, paymentSignature string, offer x402.PaymentAccept) (x402.SettleResult, error) {
	var result x402.SettleResult
	err := c.post(ctx, "settle", paymentSignature, offer, &result)
	if err != nil {
		return x402.SettleResult{}, err
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, operation, paymentSignature string, offer x402.PaymentAccept, out any) error {
	body, err := json.Marshal(request{
		PaymentSignature: paymentSignature,
		Requirements:     offer,
	})
	if err != nil {
		return fmt.Errorf("facilitator %s: encode request: %w", operation, err)
	}

	start := time.Now()
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doPost(ctx, operation, body, out)
	})
	if c.metrics != nil {
		c.metrics.ObserveFacilitator(operation, start)
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("operation", operation).
			Msg("facilitator.request_failed")
		return err
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, operation string, body []byte, out any) error {
	url := c.baseURL + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("facilitator %s: build request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator %s: %w", operation, err)
	}
	defer resp.Body.Close()

	// Cap error-body reads; the facilitator should never send much.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("facilitator %s: read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator %s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("facilitator %s: decode response: %w", operation, err)
	}
	return nil
}
