package paywall

import (
	"context"
	"net/http"
	"time"

	gwerrors "github.com/stacksx402/gateway/internal/errors"
	"github.com/stacksx402/gateway/internal/logger"
	"github.com/stacksx402/gateway/internal/metrics"
	"github.com/stacksx402/gateway/internal/policy"
	"github.com/stacksx402/gateway/pkg/responders"
	"github.com/stacksx402/gateway/pkg/x402"
)

// Facilitator is the slice of the facilitator client the gate needs.
type Facilitator interface {
	Verify(ctx context.Context, paymentSignature string, offer x402.PaymentAccept) (x402.VerifyResult, error)
	Settle(ctx context.Context, paymentSignature string, offer x402.PaymentAccept) (x402.SettleResult, error)
}

// Placeholder identities used by mock receipts. Real values only ever come
// from the facilitator.
const (
	mockTxHash = "0xmock0000000000000000000000000000000000000000000000000000000000"
	mockPayer  = "ST1MOCKPAYERADDRESS0000000000000000000"
)

// GateConfig parameterizes the payment gate.
type GateConfig struct {
	// BaseURL is the canonical base used in 402 resource URLs.
	BaseURL string
	// Network is the configured chain identifier, stamped into mock receipts.
	Network string
	// MockPayments bypasses the facilitator and synthesizes receipts.
	MockPayments bool
}

// Gate enforces payment on priced routes. Routes without a policy pass
// through untouched, which lets unpriced upstream paths coexist under the
// proxy prefix.
func Gate(registry *policy.Registry, facilitator Facilitator, cfg GateConfig, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := registry.Match(r.URL.Path, r.Method)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			payload, paid := PayloadFromContext(r.Context())
			if !paid {
				writePaymentRequired(w, r, p, cfg.BaseURL, m)
				return
			}

			var receipt x402.PaymentReceipt
			if cfg.MockPayments {
				receipt = mockReceipt(payload, cfg.Network)
				if m != nil {
					m.PaymentsSettled.WithLabelValues(receipt.Network, "mock").Inc()
				}
			} else {
				var ok bool
				receipt, ok = settlePayment(w, r, p, facilitator, cfg, m)
				if !ok {
					return
				}
			}

			encoded, err := x402.EncodeHeader(receipt)
			if err != nil {
				gwerrors.WriteSimpleError(w, gwerrors.ErrCodeInternalError, "failed to encode payment receipt")
				return
			}
			w.Header().Set(x402.HeaderPaymentResponse, encoded)

			next.ServeHTTP(w, r.WithContext(WithReceipt(r.Context(), receipt)))
		})
	}
}

// writePaymentRequired issues the 402 challenge: the offer goes out both as
// the payment-required header and as the JSON body, byte-equal in content.
func writePaymentRequired(w http.ResponseWriter, r *http.Request, p policy.RoutePolicy, baseURL string, m *metrics.Metrics) {
	requirements := p.Requirements(baseURL)

	encoded, err := x402.EncodeHeader(requirements)
	if err != nil {
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeInternalError, "failed to encode payment requirements")
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Str("route", p.Method+" "+p.Path).
		Str("amount", p.Amount).
		Msg("paywall.payment_required")
	if m != nil {
		m.PaymentsRequired.WithLabelValues(p.Path).Inc()
	}

	w.Header().Set(x402.HeaderPaymentRequired, encoded)
	responders.JSON(w, http.StatusPaymentRequired, requirements)
}

// mockReceipt synthesizes a settled receipt without touching the facilitator.
func mockReceipt(payload x402.PaymentPayload, network string) x402.PaymentReceipt {
	return x402.PaymentReceipt{
		TxHash:    mockTxHash,
		Network:   network,
		Payer:     mockPayer,
		Amount:    payload.Amount,
		Timestamp: time.Now().UnixMilli(),
		Settled:   true,
	}
}

// settlePayment runs the live verify-then-settle flow. The receipt unions
// the two answers: payer and amount from verify, txHash, timestamp, network
// and settled from settle. When the two disagree on network, settle wins.
func settlePayment(w http.ResponseWriter, r *http.Request, p policy.RoutePolicy, facilitator Facilitator, cfg GateConfig, m *metrics.Metrics) (x402.PaymentReceipt, bool) {
	log := logger.FromContext(r.Context())
	rawSignature := r.Header.Get(x402.HeaderPaymentSignature)
	offer := p.Accept(policy.ResourceURL(cfg.BaseURL, p.Path))

	ctx := r.Context()
	if p.MaxTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.MaxTimeoutSeconds)*time.Second)
		defer cancel()
	}

	verification, err := facilitator.Verify(ctx, rawSignature, offer)
	if err != nil {
		if m != nil {
			m.PaymentsFailed.WithLabelValues(string(gwerrors.ErrCodeFacilitatorError)).Inc()
		}
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeFacilitatorError, err.Error())
		return x402.PaymentReceipt{}, false
	}
	if !verification.Valid {
		log.Warn().Msg("paywall.verification_rejected")
		if m != nil {
			m.PaymentsFailed.WithLabelValues(string(gwerrors.ErrCodeVerificationFailed)).Inc()
		}
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeVerificationFailed,
			"payment signature verification failed")
		return x402.PaymentReceipt{}, false
	}
	if m != nil {
		m.PaymentsVerified.WithLabelValues(verification.Network).Inc()
	}

	settlement, err := facilitator.Settle(ctx, rawSignature, offer)
	if err != nil {
		if m != nil {
			m.PaymentsFailed.WithLabelValues(string(gwerrors.ErrCodeFacilitatorError)).Inc()
		}
		gwerrors.WriteSimpleError(w, gwerrors.ErrCodeFacilitatorError, err.Error())
		return x402.PaymentReceipt{}, false
	}

	log.Info().
		Str("tx_hash", settlement.TxHash).
		Str("payer", verification.Payer).
		Str("amount", verification.Amount).
		Msg("paywall.payment_settled")
	if m != nil {
		m.PaymentsSettled.WithLabelValues(settlement.Network, "live").Inc()
	}

	return x402.PaymentReceipt{
		TxHash:    settlement.TxHash,
		Network:   settlement.Network,
		Payer:     verification.Payer,
		Amount:    verification.Amount,
		Timestamp: settlement.Timestamp,
		Settled:   settlement.Settled,
	}, true
}
