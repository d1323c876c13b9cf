package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// PaymentAccept is one priced payment option advertised in a 402 response.
// Field names follow the x402 v2 wire format.
type PaymentAccept struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Asset             string            `json:"asset"`
	Extra             map[string]string `json:"extra,omitempty"`
	OutputSchema      *OutputSchema     `json:"outputSchema,omitempty"`
}

// PaymentRequirements is the full 402 body: protocol version plus a
// non-empty list of accepted payment options.
type PaymentRequirements struct {
	X402Version int             `json:"x402Version"`
	Accepts     []PaymentAccept `json:"accepts"`
}

// PaymentPayload is the decoded contents of the payment-signature header.
// Amount is a decimal integer string in the asset's smallest unit; values may
// exceed 64-bit precision, so it is never parsed into a machine integer
// outside of ParseAmount.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	PayTo       string `json:"payTo"`
	Amount      string `json:"amount"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
	Resource    string `json:"resource"`
	Memo        string `json:"memo,omitempty"`
}

// PaymentReceipt is emitted on a paid 200, base64-JSON in the
// payment-response header and embedded in JSON response envelopes.
// Timestamp is Unix milliseconds.
type PaymentReceipt struct {
	TxHash    string `json:"txHash,omitempty"`
	Network   string `json:"network"`
	Payer     string `json:"payer"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Settled   bool   `json:"settled"`
}

// VerifyResult is the facilitator's answer to /verify.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Payer   string `json:"payer"`
	Amount  string `json:"amount"`
	Network string `json:"network"`
	TxHash  string `json:"txHash,omitempty"`
}

// SettleResult is the facilitator's answer to /settle.
type SettleResult struct {
	Settled   bool   `json:"settled"`
	TxHash    string `json:"txHash"`
	Network   string `json:"network"`
	Timestamp int64  `json:"timestamp"`
}

// OutputSchema describes a priced route's I/O for discovery clients.
type OutputSchema struct {
	Input  SchemaInput            `json:"input"`
	Output map[string]SchemaField `json:"output"`
}

// SchemaInput describes how a route is invoked.
type SchemaInput struct {
	Type        string                 `json:"type"` // always "http"
	Method      string                 `json:"method"`
	QueryParams map[string]SchemaField `json:"queryParams,omitempty"`
	BodyFields  map[string]SchemaField `json:"bodyFields,omitempty"`
}

// SchemaField describes a single input parameter or output field.
type SchemaField struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ErrNotBase64JSON marks a payment-signature header whose value could not be
// decoded into a JSON document.
var ErrNotBase64JSON = errors.New("x402: not valid base64-encoded JSON")

// EncodeHeader renders a wire value as base64(JSON) for header transport.
func EncodeHeader(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("x402: encode header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeHeader reverses EncodeHeader. Both decode and parse failures map to
// ErrNotBase64JSON so the caller reports a single malformed-header error.
func DecodeHeader(header string, v any) error {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return ErrNotBase64JSON
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotBase64JSON, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrNotBase64JSON, err)
	}
	return nil
}

// DecodePayload decodes a payment-signature header into a PaymentPayload.
func DecodePayload(header string) (PaymentPayload, error) {
	var payload PaymentPayload
	if err := DecodeHeader(header, &payload); err != nil {
		return PaymentPayload{}, err
	}
	return payload, nil
}

// MissingFields reports which required payload fields are absent or empty.
// The protocol version is checked separately because zero is indistinguishable
// from "missing" for an int field.
func (p PaymentPayload) MissingFields() []string {
	var missing []string
	if p.X402Version == 0 {
		missing = append(missing, "x402Version")
	}
	required := []struct {
		name  string
		value string
	}{
		{"scheme", p.Scheme},
		{"network", p.Network},
		{"asset", p.Asset},
		{"payTo", p.PayTo},
		{"amount", p.Amount},
		{"nonce", p.Nonce},
		{"signature", p.Signature},
		{"resource", p.Resource},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// NonceKey builds the replay-cache key. Memo participates so a caller can
// deliberately reuse a nonce with a distinct memo.
func (p PaymentPayload) NonceKey() string {
	if p.Memo != "" {
		return p.Nonce + "|" + p.Memo
	}
	return p.Nonce
}

// ParseAmount parses a wire amount as an arbitrary-precision integer.
// Only plain decimal integers are accepted: no sign, no exponent, no
// fractional part, no whitespace.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("x402: empty amount")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("x402: amount %q is not a decimal integer", s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("x402: amount %q is not a decimal integer", s)
	}
	return n, nil
}

// ShortNetwork reduces a CAIP-2-style chain identifier to its namespace
// token, e.g. "stacks:2147483648" -> "stacks". Discovery entries use the
// short form; 402 offers keep the full identifier.
func ShortNetwork(network string) string {
	if i := strings.IndexByte(network, ':'); i > 0 {
		return network[:i]
	}
	return network
}
