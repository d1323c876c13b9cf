package httpserver

import (
	"net/http"
	"time"

	"github.com/stacksx402/gateway/internal/paywall"
	"github.com/stacksx402/gateway/pkg/responders"
	"github.com/stacksx402/gateway/pkg/x402"
)

// envelope is the JSON wrapper for locally served paid routes.
type envelope struct {
	Success bool                 `json:"success"`
	Data    any                  `json:"data"`
	Receipt *x402.PaymentReceipt `json:"receipt,omitempty"`
}

// health handles GET /gateway-health. It reports liveness only; the
// facilitator and upstream are deliberately not probed so a slow
// collaborator cannot fail the health check.
func (h handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        "x402-gateway",
		"mock_payments":  h.cfg.X402.MockPayments,
		"routes":         len(h.registry.All()),
		"uptime_seconds": int(time.Since(serverStartTime).Seconds()),
	})
}

// premiumEcho handles GET /v1/premium/echo, the gateway's built-in paid
// route. It echoes the msg query parameter with a server timestamp.
func (h handlers) premiumEcho(w http.ResponseWriter, r *http.Request) {
	body := envelope{
		Success: true,
		Data: map[string]string{
			"echo": r.URL.Query().Get("msg"),
			"ts":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if receipt, ok := paywall.ReceiptFromContext(r.Context()); ok {
		body.Receipt = &receipt
	}
	responders.JSON(w, http.StatusOK, body)
}
