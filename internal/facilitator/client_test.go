package facilitator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stacksx402/gateway/pkg/x402"
)

func testOffer() x402.PaymentAccept {
	return x402.PaymentAccept{
		Scheme:            "exact",
		Network:           "stacks:2147483648",
		MaxAmountRequired: "10000",
		Resource:          "https://gw.example.com/v1/premium/echo",
		Description:       "Premium echo",
		MimeType:          "application/json",
		PayTo:             "ST2RECIPIENT",
		MaxTimeoutSeconds: 60,
		Asset:             "STX",
	}
}

func TestVerify_Success(t *testing.T) {
	var gotBody request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("path = %q, want /verify", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(x402.VerifyResult{
			Valid:   true,
			Payer:   "ST1PAYER",
			Amount:  "10000",
			Network: "stacks:2147483648",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Verify(context.Background(), "c2lnbmVk", testOffer())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Error("result should be valid")
	}
	if result.Payer != "ST1PAYER" || result.Amount != "10000" {
		t.Errorf("result = %+v", result)
	}
	if gotBody.PaymentSignature != "c2lnbmVk" {
		t.Errorf("paymentSignature = %q", gotBody.PaymentSignature)
	}
	if gotBody.Requirements.PayTo != "ST2RECIPIENT" {
		t.Errorf("requirements.payTo = %q", gotBody.Requirements.PayTo)
	}
}

func TestVerify_InvalidPaymentIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(x402.VerifyResult{Valid: false})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Verify(context.Background(), "sig", testOffer())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Error("result should be invalid")
	}
}

func TestSettle_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("path = %q, want /settle", r.URL.Path)
		}
		json.NewEncoder(w).Encode(x402.SettleResult{
			Settled:   true,
			TxHash:    "0xabc123",
			Network:   "stacks:2147483648",
			Timestamp: time.Now().UnixMilli(),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Settle(context.Background(), "sig", testOffer())
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !result.Settled || result.TxHash != "0xabc123" {
		t.Errorf("result = %+v", result)
	}
}

func TestNon2xx_ReturnsErrorWithStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payment expired", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Verify(context.Background(), "sig", testOffer())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error should carry status: %v", err)
	}
	if !strings.Contains(err.Error(), "payment expired") {
		t.Errorf("error should carry body: %v", err)
	}
}

func TestUnreachableFacilitator(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Settle(context.Background(), "sig", testOffer())
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for client disconnects once the request
		// body has been consumed; drain it so the context cancellation below
		// can fire and srv.Close does not deadlock.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL)
	_, err := c.Verify(ctx, "sig", testOffer())
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	for i := 0; i < 5; i++ {
		if _, err := c.Verify(context.Background(), "sig", testOffer()); err == nil {
			t.Fatal("expected error from failing facilitator")
		}
	}

	_, err := c.Verify(context.Background(), "sig", testOffer())
	if err == nil {
		t.Fatal("expected breaker to reject the call")
	}
	if !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("expected open-breaker error, got: %v", err)
	}
}
