package x402

// ProtocolVersion is the x402 protocol version this gateway speaks.
const ProtocolVersion = 2

// SchemeExact is the default settlement scheme: the submitted amount must
// meet or exceed the offer's maxAmountRequired.
const SchemeExact = "exact"

// x402 v2 headers. Matching on input is case-insensitive (net/http
// canonicalizes header names); output always uses the lowercase form below.
const (
	HeaderPaymentRequired  = "payment-required"
	HeaderPaymentSignature = "payment-signature"
	HeaderPaymentResponse  = "payment-response"
	HeaderIdempotencyKey   = "idempotency-key"
)
