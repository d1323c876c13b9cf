package errors

// ErrorCode is a machine-readable error identifier for client error handling.
type ErrorCode string

// Payment signature validation errors (structural, resolved without the
// facilitator).
const (
	ErrCodeInvalidPaymentSignature ErrorCode = "invalid_payment_signature"
	ErrCodeUnsupportedVersion      ErrorCode = "unsupported_x402_version"
	ErrCodeOfferMismatch           ErrorCode = "offer_mismatch"
	ErrCodeInvalidAmount           ErrorCode = "invalid_amount"
	ErrCodeInsufficientAmount      ErrorCode = "insufficient_amount"
)

// Payment lifecycle errors.
const (
	ErrCodePaymentRequired    ErrorCode = "payment_required"
	ErrCodeReplayDetected     ErrorCode = "replay_detected"
	ErrCodeVerificationFailed ErrorCode = "verification_failed"
)

// External collaborator errors.
const (
	ErrCodeFacilitatorError ErrorCode = "facilitator_error"
	ErrCodeUpstreamError    ErrorCode = "upstream_error"
)

// Routing and system errors.
const (
	ErrCodeRouteNotFound ErrorCode = "route_not_found"
	ErrCodeInternalError ErrorCode = "internal_error"
)

// IsRetryable reports whether a client should retry. Only transient
// collaborator failures qualify; validation and replay failures never do.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeFacilitatorError, ErrCodeUpstreamError:
		return true
	default:
		return false
	}
}

// HTTPStatus maps each error category to exactly one client-facing status.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeInvalidPaymentSignature,
		ErrCodeUnsupportedVersion,
		ErrCodeOfferMismatch,
		ErrCodeInvalidAmount,
		ErrCodeInsufficientAmount:
		return 400

	case ErrCodeVerificationFailed:
		return 401

	case ErrCodePaymentRequired:
		return 402

	case ErrCodeRouteNotFound:
		return 404

	case ErrCodeReplayDetected:
		return 409

	case ErrCodeFacilitatorError, ErrCodeUpstreamError:
		return 502

	default:
		return 500
	}
}
