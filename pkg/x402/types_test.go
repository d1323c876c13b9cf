package x402

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"
)

func validPayload() PaymentPayload {
	return PaymentPayload{
		X402Version: 2,
		Scheme:      "exact",
		Network:     "stacks:2147483648",
		Asset:       "STX",
		PayTo:       "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
		Amount:      "100000",
		Nonce:       "abc",
		Signature:   "sig-opaque",
		Resource:    "http://localhost:3000/v1/premium/echo",
	}
}

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	reqs := PaymentRequirements{
		X402Version: 2,
		Accepts: []PaymentAccept{{
			Scheme:            "exact",
			Network:           "stacks:2147483648",
			MaxAmountRequired: "100000",
			Resource:          "http://localhost:3000/v1/premium/echo",
			Description:       "Premium echo",
			MimeType:          "application/json",
			PayTo:             "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
			MaxTimeoutSeconds: 60,
			Asset:             "STX",
		}},
	}

	header, err := EncodeHeader(reqs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded PaymentRequirements
	if err := DecodeHeader(header, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(reqs, decoded) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", reqs, decoded)
	}
}

func TestDecodePayload(t *testing.T) {
	want := validPayload()
	header, err := EncodeHeader(want)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := DecodePayload(header)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("payload mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestDecodePayload_NotBase64(t *testing.T) {
	_, err := DecodePayload("!!! not base64 !!!")
	if !errors.Is(err, ErrNotBase64JSON) {
		t.Errorf("expected ErrNotBase64JSON, got %v", err)
	}
}

func TestDecodePayload_NotJSON(t *testing.T) {
	header := base64.StdEncoding.EncodeToString([]byte("this is not json"))
	_, err := DecodePayload(header)
	if !errors.Is(err, ErrNotBase64JSON) {
		t.Errorf("expected ErrNotBase64JSON, got %v", err)
	}
}

func TestDecodePayload_Empty(t *testing.T) {
	_, err := DecodePayload("")
	if !errors.Is(err, ErrNotBase64JSON) {
		t.Errorf("expected ErrNotBase64JSON, got %v", err)
	}
}

func TestMissingFields(t *testing.T) {
	p := validPayload()
	if missing := p.MissingFields(); len(missing) != 0 {
		t.Errorf("expected no missing fields, got %v", missing)
	}

	p.Nonce = ""
	p.Signature = "   "
	missing := p.MissingFields()
	want := []string{"nonce", "signature"}
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("expected %v, got %v", want, missing)
	}

	empty := PaymentPayload{}
	if got := len(empty.MissingFields()); got != 9 {
		t.Errorf("expected 9 missing fields on empty payload, got %d", got)
	}
}

func TestNonceKey(t *testing.T) {
	p := validPayload()
	if p.NonceKey() != "abc" {
		t.Errorf("expected bare nonce, got %q", p.NonceKey())
	}
	p.Memo = "order-7"
	if p.NonceKey() != "abc|order-7" {
		t.Errorf("expected nonce|memo, got %q", p.NonceKey())
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"0", false},
		{"100000", false},
		{"18446744073709551617", false}, // > 2^64
		{"340282366920938463463374607431768211456", false},
		{"", true},
		{"-5", true},
		{"1.5", true},
		{"1e6", true},
		{" 42", true},
		{"0x10", true},
		{"abc", true},
	}
	for _, tc := range tests {
		n, err := ParseAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q): expected error, got %v", tc.in, n)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if n.String() != tc.in {
			t.Errorf("ParseAmount(%q) = %s", tc.in, n.String())
		}
	}
}

func TestParseAmount_BeyondFloat53(t *testing.T) {
	// Two values that collide when squeezed through a float64.
	a, err := ParseAmount("9007199254740993")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ParseAmount("9007199254740992")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Cmp(b) != 1 {
		t.Error("expected exact comparison above 2^53")
	}
}

func TestShortNetwork(t *testing.T) {
	if got := ShortNetwork("stacks:2147483648"); got != "stacks" {
		t.Errorf("expected stacks, got %q", got)
	}
	if got := ShortNetwork("stacks"); got != "stacks" {
		t.Errorf("expected stacks, got %q", got)
	}
	if got := ShortNetwork(":odd"); got != ":odd" {
		t.Errorf("expected passthrough for empty namespace, got %q", got)
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	receipt := PaymentReceipt{
		TxHash:    "0xabc",
		Network:   "stacks:2147483648",
		Payer:     "ST2PAYER",
		Amount:    "100000",
		Timestamp: 1724500000000,
		Settled:   true,
	}
	header, err := EncodeHeader(receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded PaymentReceipt
	if err := DecodeHeader(header, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != receipt {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", receipt, decoded)
	}
}
