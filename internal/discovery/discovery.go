// Package discovery serves the /.well-known/x402 document so crawlers and
// agents can find the gateway's priced routes without probing for 402s.
package discovery

import (
	"net/http"

	"github.com/stacksx402/gateway/internal/policy"
	"github.com/stacksx402/gateway/pkg/responders"
	"github.com/stacksx402/gateway/pkg/x402"
)

// Document is the discovery response body.
type Document struct {
	X402Version int                  `json:"x402Version"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Image       string               `json:"image,omitempty"`
	URL         string               `json:"url"`
	Accepts     []x402.PaymentAccept `json:"accepts"`
}

// Config holds the document's service metadata.
type Config struct {
	Name        string
	Description string
	ImageURL    string
	// PublicBaseURL is the externally reachable base for resource URLs,
	// preferred over the internal base when both are set.
	PublicBaseURL string
}

// Handler assembles the discovery document from the policy registry.
type Handler struct {
	registry *policy.Registry
	cfg      Config
}

// NewHandler creates a discovery handler.
func NewHandler(registry *policy.Registry, cfg Config) *Handler {
	return &Handler{registry: registry, cfg: cfg}
}

// ServeHTTP renders the document. It is cacheable for five minutes; the
// registry is immutable after startup so the document only changes on
// redeploy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	policies := h.registry.All()
	accepts := make([]x402.PaymentAccept, 0, len(policies))
	for _, p := range policies {
		accepts = append(accepts, h.acceptEntry(p))
	}

	doc := Document{
		X402Version: x402.ProtocolVersion,
		Name:        h.cfg.Name,
		Description: h.cfg.Description,
		Image:       h.cfg.ImageURL,
		URL:         h.cfg.PublicBaseURL,
		Accepts:     accepts,
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	responders.JSON(w, http.StatusOK, doc)
}

// acceptEntry renders one policy for discovery. The network is reduced to
// its short token form here; 402 offers keep the full chain identifier.
func (h *Handler) acceptEntry(p policy.RoutePolicy) x402.PaymentAccept {
	entry := p.Accept(policy.ResourceURL(h.cfg.PublicBaseURL, p.Path))
	entry.Network = x402.ShortNetwork(entry.Network)
	entry.OutputSchema = p.Schema
	if entry.OutputSchema == nil {
		entry.OutputSchema = fallbackSchema(p.Method)
	}
	return entry
}

// fallbackSchema describes a route that declared no explicit schema: an HTTP
// call with the policy's method returning an opaque object.
func fallbackSchema(method string) *x402.OutputSchema {
	return &x402.OutputSchema{
		Input: x402.SchemaInput{
			Type:   "http",
			Method: method,
		},
		Output: map[string]x402.SchemaField{
			"data": {Type: "object"},
		},
	}
}
