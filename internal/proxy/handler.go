// Package proxy forwards paid requests to the upstream service. The upstream
// never sees x402: every payment header is stripped on the way in, and the
// receipt is re-applied by the gateway on the way out.
package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	gwerrors "github.com/stacksx402/gateway/internal/errors"
	"github.com/stacksx402/gateway/internal/httputil"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/paywall"
	"github.com/stacksx402/gateway/pkg/x402"
)

const defaultTimeout = 30 * time.Second

// hopByHopHeaders never cross the proxy boundary in either direction.
// Content-Length is dropped because bodies are re-serialized.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

var paymentHeaders = []string{
	x402.HeaderPaymentRequired,
	x402.HeaderPaymentSignature,
	x402.HeaderPaymentResponse,
}

// Envelope is the gateway's JSON response wrapper for proxied routes.
type Envelope struct {
	Success bool                 `json:"success"`
	Data    json.RawMessage      `json:"data"`
	Receipt *x402.PaymentReceipt `json:"receipt,omitempty"`
}

// Handler forwards requests under the proxy prefix to the upstream base URL.
type Handler struct {
	upstreamURL   string
	prefix        string
	httpClient    *http.Client
	requirePolicy bool
	hasPolicy     func(path, method string) bool
	metrics       *metrics.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient overrides the default HTTP client, used by tests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.httpClient = c }
}

// WithMetrics attaches latency instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithPolicyRequirement makes the proxy refuse paths that carry no route
// policy instead of forwarding them unpaid. hasPolicy answers whether a
// (path, method) pair is priced.
func WithPolicyRequirement(hasPolicy func(path, method string) bool) Option {
	return func(h *Handler) {
		h.requirePolicy = true
		h.hasPolicy = hasPolicy
	}
}

// NewHandler creates a proxy handler. prefix must start and end with a slash.
func NewHandler(upstreamURL, prefix string, timeout time.Duration, opts ...Option) *Handler {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	h := &Handler{
		upstreamURL: strings.TrimSuffix(upstreamURL, "/"),
		prefix:      prefix,
		httpClient:  httputil.NewClient(timeout),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP rewrites and forwards the request, then wraps the upstream
// response in the gateway envelope.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if h.requirePolicy && !h.hasPolicy(r.URL.Path, r.Method) {
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeRouteNotFound,
			"no route policy for "+r.Method+" "+r.URL.Path)
		return
	}

	target := h.upstreamURL + "/" + strings.TrimPrefix(r.URL.Path, h.prefix)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeUpstreamError, err.Error())
		return
	}
	copyRequestHeaders(upstreamReq, r)

	start := time.Now()
	resp, err := h.httpClient.Do(upstreamReq)
	if err != nil {
		log.Error().Err(err).Str("target", target).Msg("proxy.upstream_failed")
		if h.metrics != nil {
			h.metrics.ObserveUpstream("error", start)
		}
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeUpstreamError, err.Error())
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("target", target).Msg("proxy.upstream_body_failed")
		if h.metrics != nil {
			h.metrics.ObserveUpstream("error", start)
		}
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeUpstreamError, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveUpstream(metrics.StatusClass(resp.StatusCode), start)
	}

	copyResponseHeaders(w, resp)

	// The gate set payment-response before the handler ran; copying the
	// upstream response must not clobber it, and the upstream must never
	// be able to forge one.
	receipt, hasReceipt := paywall.ReceiptFromContext(r.Context())
	if hasReceipt {
		if encoded, err := x402.EncodeHeader(receipt); err == nil {
			w.Header().Set(x402.HeaderPaymentResponse, encoded)
		}
	}

	if hasReceipt && isJSON(resp.Header.Get("Content-Type")) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		json.NewEncoder(w).Encode(Envelope{
			Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
			Data:    json.RawMessage(body),
			Receipt: &receipt,
		})
		return
	}

	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

// copyRequestHeaders forwards client headers to the upstream, dropping
// hop-by-hop and payment headers and joining multi-value headers.
func copyRequestHeaders(dst *http.Request, src *http.Request) {
	for name, values := range src.Header {
		if isHopByHop(name) || isPaymentHeader(name) {
			continue
		}
		dst.Header.Set(name, strings.Join(values, ", "))
	}
	if src.Body != nil && src.ContentLength != 0 && dst.Header.Get("Content-Type") == "" {
		dst.Header.Set("Content-Type", "application/json")
	}
}

// copyResponseHeaders forwards upstream headers to the client, dropping
// hop-by-hop and payment headers.
func copyResponseHeaders(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		if isHopByHop(name) || isPaymentHeader(name) {
			continue
		}
		w.Header().Set(name, strings.Join(values, ", "))
	}
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

func isPaymentHeader(name string) bool {
	for _, h := range paymentHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "application/json") || strings.HasSuffix(ct, "+json")
}
