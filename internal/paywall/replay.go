package paywall

import (
	"net/http"

	gwerrors "github.com/stacksx402/gateway/internal/errors"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/ttlcache"
	"github.com/stacksx402/gateway/pkg/x402"
)

// ReplayGuard rejects reuse of a (nonce, memo) pair within the cache TTL.
// The nonce is recorded before settlement runs, so a concurrent retry cannot
// slip through while the facilitator call is in flight; if settlement then
// fails, the nonce stays consumed and the client must pay with a fresh one.
func ReplayGuard(nonces *ttlcache.Cache[struct{}], m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(x402.HeaderPaymentSignature) == "" {
				next.ServeHTTP(w, r)
				return
			}

			payload, ok := PayloadFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			// SetIfAbsent is the linearization point: exactly one of any
			// set of concurrent requests with the same key wins.
			if !nonces.SetIfAbsent(payload.NonceKey(), struct{}{}) {
				log := logger.FromContext(r.Context())
				log.Warn().
					Str("nonce", logger.TruncateNonce(payload.Nonce)).
					Msg("paywall.replay_rejected")
				if m != nil {
					m.ReplaysRejected.Inc()
				}
				gwerrors.WriteSimpleError(w, gwerrors.ErrCodeReplayDetected,
					"replay detected: nonce already used")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
