package paywall

import (
	"fmt"
	"net/http"
	"strings"

	gwerrors "github.com/stacksx402/gateway/internal/errors"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/policy"
	"github.com/stacksx402/gateway/pkg/x402"
)

// ValidateSignature structurally validates the payment-signature header and
// cross-references it against the route's offer. It never talks to the
// facilitator; failing fast here keeps ill-formed payloads off the wire.
// Requests without the header pass through so the payment gate can issue
// the 402.
func ValidateSignature(registry *policy.Registry, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(x402.HeaderPaymentSignature)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.FromContext(r.Context())

			payload, err := x402.DecodePayload(header)
			if err != nil {
				log.Warn().Err(err).Msg("paywall.signature_undecodable")
				reject(w, m, gwerrors.ErrCodeInvalidPaymentSignature,
					"payment-signature is not valid base64-encoded JSON", nil)
				return
			}

			if missing := payload.MissingFields(); len(missing) > 0 {
				log.Warn().Strs("missing", missing).Msg("paywall.payload_incomplete")
				reject(w, m, gwerrors.ErrCodeInvalidPaymentSignature,
					fmt.Sprintf("payment payload missing required fields: %s", strings.Join(missing, ", ")),
					map[string]any{"missing": missing})
				return
			}

			if payload.X402Version != x402.ProtocolVersion {
				reject(w, m, gwerrors.ErrCodeUnsupportedVersion,
					fmt.Sprintf("unsupported x402Version: %d", payload.X402Version), nil)
				return
			}

			if p, ok := registry.Match(r.URL.Path, r.Method); ok {
				if mismatches := crossReference(payload, p); len(mismatches) > 0 {
					log.Warn().Strs("mismatches", mismatches).Msg("paywall.offer_mismatch")
					reject(w, m, gwerrors.ErrCodeOfferMismatch,
						fmt.Sprintf("payment payload does not match offer: %s", strings.Join(mismatches, "; ")),
						map[string]any{"mismatches": mismatches})
					return
				}

				submitted, err := x402.ParseAmount(payload.Amount)
				if err != nil {
					reject(w, m, gwerrors.ErrCodeInvalidAmount,
						fmt.Sprintf("amount %q is not a decimal integer", payload.Amount), nil)
					return
				}
				required, err := x402.ParseAmount(p.Amount)
				if err != nil {
					// Policies validate amounts at build time; this is a bug.
					gwerrors.WriteSimpleError(w, gwerrors.ErrCodeInternalError, "route policy has an invalid amount")
					return
				}
				if submitted.Cmp(required) < 0 {
					log.Warn().
						Str("required", p.Amount).
						Str("provided", payload.Amount).
						Msg("paywall.underpayment")
					reject(w, m, gwerrors.ErrCodeInsufficientAmount,
						fmt.Sprintf("insufficient payment amount: required %s, provided %s", p.Amount, payload.Amount),
						map[string]any{"required": p.Amount, "provided": payload.Amount})
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), payload)))
		})
	}
}

// crossReference compares the payload against the offer on the four fields
// the gateway owns. All mismatches are collected so the client can fix the
// payload in one round trip.
func crossReference(payload x402.PaymentPayload, p policy.RoutePolicy) []string {
	var mismatches []string
	if payload.Scheme != p.Scheme {
		mismatches = append(mismatches, fmt.Sprintf("scheme: want %q, got %q", p.Scheme, payload.Scheme))
	}
	if payload.Network != p.Network {
		mismatches = append(mismatches, fmt.Sprintf("network: want %q, got %q", p.Network, payload.Network))
	}
	if payload.Asset != p.Asset {
		mismatches = append(mismatches, fmt.Sprintf("asset: want %q, got %q", p.Asset, payload.Asset))
	}
	if payload.PayTo != p.PayTo {
		mismatches = append(mismatches, fmt.Sprintf("payTo: want %q, got %q", p.PayTo, payload.PayTo))
	}
	return mismatches
}

func reject(w http.ResponseWriter, m *metrics.Metrics, code gwerrors.ErrorCode, message string, details map[string]any) {
	if m != nil {
		m.PaymentsFailed.WithLabelValues(string(code)).Inc()
	}
	gwerrors.WriteError(w, code, message, details)
}
