// Package paywall implements the x402 enforcement pipeline: signature
// validation, replay protection, and the payment gate. Stages communicate
// through the request context: validation attaches the decoded payload, the
// gate attaches the receipt, and handlers read both.
package paywall

import (
	"context"

	"github.com/stacksx402/gateway/pkg/x402"
)

type contextKey string

const (
	payloadKey contextKey = "x402_payload"
	receiptKey contextKey = "x402_receipt"
)

// WithPayload attaches a validated payment payload to the context.
func WithPayload(ctx context.Context, payload x402.PaymentPayload) context.Context {
	return context.WithValue(ctx, payloadKey, payload)
}

// PayloadFromContext returns the validated payment payload, if any.
func PayloadFromContext(ctx context.Context) (x402.PaymentPayload, bool) {
	payload, ok := ctx.Value(payloadKey).(x402.PaymentPayload)
	return payload, ok
}

// WithReceipt attaches a settlement receipt to the context.
func WithReceipt(ctx context.Context, receipt x402.PaymentReceipt) context.Context {
	return context.WithValue(ctx, receiptKey, receipt)
}

// ReceiptFromContext returns the settlement receipt, if any.
func ReceiptFromContext(ctx context.Context) (x402.PaymentReceipt, bool) {
	receipt, ok := ctx.Value(receiptKey).(x402.PaymentReceipt)
	return receipt, ok
}
