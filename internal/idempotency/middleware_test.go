package idempotency

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stacksx402/gateway/internal/ttlcache"
	"github.com/stacksx402/gateway/pkg/x402"
)

func newTestCache(t *testing.T, ttl time.Duration) *ttlcache.Cache[Response] {
	t.Helper()
	c := ttlcache.New[Response](ttl)
	t.Cleanup(c.Stop)
	return c
}

func TestNoKey_PassesThrough(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(newTestCache(t, time.Minute), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/premium/echo", nil))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2 without idempotency key", got)
	}
}

func TestReplay_IdenticalResponse(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(newTestCache(t, time.Minute), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(x402.HeaderPaymentResponse, "cmVjZWlwdA==")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"attempt":%d}`, n)
	}))

	doRequest := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/premium/echo", nil)
		req.Header.Set(x402.HeaderIdempotencyKey, "tok-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := doRequest()
	second := doRequest()

	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
	firstBody, _ := io.ReadAll(first.Body)
	secondBody, _ := io.ReadAll(second.Body)
	if string(firstBody) != string(secondBody) {
		t.Errorf("replayed body %q differs from original %q", secondBody, firstBody)
	}
	if second.Code != first.Code {
		t.Errorf("replayed status %d differs from original %d", second.Code, first.Code)
	}
	if got := second.Header().Get(x402.HeaderPaymentResponse); got != "cmVjZWlwdA==" {
		t.Errorf("replay missing payment-response header, got %q", got)
	}
	if got := second.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("replay content-type = %q", got)
	}
}

func TestKeyScopedByMethodAndPath(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(newTestCache(t, time.Minute), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for _, target := range []struct {
		method, path string
	}{
		{http.MethodPost, "/a"},
		{http.MethodPost, "/b"},
		{http.MethodGet, "/a"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		req.Header.Set(x402.HeaderIdempotencyKey, "same-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("handler calls = %d, want 3 (token scoped per route)", got)
	}
}

func TestErrorsNotCached(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(newTestCache(t, time.Minute), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/premium/echo", nil)
		req.Header.Set(x402.HeaderIdempotencyKey, "tok-402")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2 (402 must not be cached)", got)
	}
}

func TestExpiredEntryReprocesses(t *testing.T) {
	var calls atomic.Int64
	handler := Middleware(newTestCache(t, 20*time.Millisecond), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/premium/echo", nil)
		r.Header.Set(x402.HeaderIdempotencyKey, "tok-exp")
		return r
	}

	handler.ServeHTTP(httptest.NewRecorder(), req())
	time.Sleep(40 * time.Millisecond)
	handler.ServeHTTP(httptest.NewRecorder(), req())

	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2 after expiry", got)
	}
}
