// Package idempotency replays cached responses for repeated requests that
// carry the same idempotency-key token. A client that retries after a network
// hiccup gets back the byte-identical response from the first attempt instead
// of paying twice.
package idempotency

import (
	"bytes"
	"net/http"
	"time"

	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/ttlcache"
	"github.com/stacksx402/gateway/pkg/x402"
)

// DefaultTTL matches the facilitator's settlement visibility window; a retry
// arriving later than this is treated as a fresh request.
const DefaultTTL = 10 * time.Minute

// cachedHeaders are the only response headers worth replaying. Everything
// else (request IDs, dates) is minted per response.
var cachedHeaders = []string{
	"Content-Type",
	x402.HeaderPaymentResponse,
}

// Response is a captured response eligible for replay.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// responseWriter captures status and body while passing them through.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Middleware replays cached responses keyed by (method, path, token).
// Scoping the token by route prevents a key minted for one endpoint from
// short-circuiting another. Only 2xx responses are cached; errors must stay
// retryable.
func Middleware(cache *ttlcache.Cache[Response], m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(x402.HeaderIdempotencyKey)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Method + "|" + r.URL.Path + "|" + token

			if cached, found := cache.Get(key); found {
				log := logger.FromContext(r.Context())
				log.Info().
					Str("idempotency_key", logger.TruncateNonce(token)).
					Msg("idempotency.replayed")
				if m != nil {
					m.IdempotentReplays.Inc()
				}
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 200 && rw.statusCode < 300 {
				headers := make(map[string]string, len(cachedHeaders))
				for _, name := range cachedHeaders {
					if v := rw.Header().Get(name); v != "" {
						headers[name] = v
					}
				}
				cache.Set(key, Response{
					StatusCode: rw.statusCode,
					Headers:    headers,
					Body:       rw.body.Bytes(),
				})
			}
		})
	}
}
