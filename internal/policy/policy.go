// Package policy holds the route policy catalogue: which paths are priced,
// for how much, and who gets paid. Policies are registered once at startup
// and are immutable afterwards, which keeps the match path lock-free on the
// hot path of every request.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stacksx402/gateway/pkg/x402"
)

// Defaults applied by the builder when the caller does not override them.
const (
	DefaultMimeType       = "application/json"
	DefaultTimeoutSeconds = 60
)

// RoutePolicy prices one (path, method) pair. Amount is a decimal integer
// string in the asset's smallest unit.
type RoutePolicy struct {
	Path              string
	Method            string
	Scheme            string
	Network           string
	Asset             string
	Amount            string
	PayTo             string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	Extra             map[string]string
	Schema            *x402.OutputSchema
}

// Accept renders the policy into the wire form used in a 402 offer.
// resource is the absolute URL of the priced route.
func (p RoutePolicy) Accept(resource string) x402.PaymentAccept {
	return x402.PaymentAccept{
		Scheme:            p.Scheme,
		Network:           p.Network,
		MaxAmountRequired: p.Amount,
		Resource:          resource,
		Description:       p.Description,
		MimeType:          p.MimeType,
		PayTo:             p.PayTo,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		Asset:             p.Asset,
		Extra:             p.Extra,
	}
}

// Requirements builds the full 402 body for this policy. baseURL is the
// gateway's canonical base URL.
func (p RoutePolicy) Requirements(baseURL string) x402.PaymentRequirements {
	return x402.PaymentRequirements{
		X402Version: x402.ProtocolVersion,
		Accepts:     []x402.PaymentAccept{p.Accept(ResourceURL(baseURL, p.Path))},
	}
}

// ResourceURL joins a base URL and a route path without doubling slashes.
func ResourceURL(baseURL, path string) string {
	return strings.TrimSuffix(baseURL, "/") + path
}

// Builder assembles a RoutePolicy with validation at build time.
type Builder struct {
	policy RoutePolicy
}

// NewBuilder starts a policy for the given route path.
func NewBuilder(path string) *Builder {
	return &Builder{policy: RoutePolicy{Path: path}}
}

// Method sets the HTTP method. Stored upper-cased; matching is
// case-insensitive.
func (b *Builder) Method(method string) *Builder {
	b.policy.Method = strings.ToUpper(strings.TrimSpace(method))
	return b
}

// Price sets the minimum amount (smallest-unit decimal string) and asset.
func (b *Builder) Price(amount, asset string) *Builder {
	b.policy.Amount = amount
	b.policy.Asset = asset
	return b
}

// PayTo sets the recipient address.
func (b *Builder) PayTo(address string) *Builder {
	b.policy.PayTo = address
	return b
}

// Network sets the CAIP-2-style chain identifier.
func (b *Builder) Network(network string) *Builder {
	b.policy.Network = network
	return b
}

// Scheme overrides the default "exact" settlement scheme.
func (b *Builder) Scheme(scheme string) *Builder {
	b.policy.Scheme = scheme
	return b
}

// Description sets the human-readable route description.
func (b *Builder) Description(description string) *Builder {
	b.policy.Description = description
	return b
}

// MimeType overrides the default response MIME type.
func (b *Builder) MimeType(mimeType string) *Builder {
	b.policy.MimeType = mimeType
	return b
}

// Timeout sets the maximum seconds to await settlement.
func (b *Builder) Timeout(seconds int) *Builder {
	b.policy.MaxTimeoutSeconds = seconds
	return b
}

// Extra attaches opaque metadata forwarded to the facilitator.
func (b *Builder) Extra(extra map[string]string) *Builder {
	b.policy.Extra = extra
	return b
}

// Schema attaches the discovery I/O schema.
func (b *Builder) Schema(schema *x402.OutputSchema) *Builder {
	b.policy.Schema = schema
	return b
}

// Build validates the policy and applies defaults.
func (b *Builder) Build() (RoutePolicy, error) {
	p := b.policy

	var problems []string
	if strings.TrimSpace(p.Path) == "" {
		problems = append(problems, "path is required")
	}
	if p.Method == "" {
		problems = append(problems, "method is required")
	}
	if p.Network == "" {
		problems = append(problems, "network is required")
	}
	if p.Amount == "" || p.Asset == "" {
		problems = append(problems, "amount and asset are required")
	}
	if p.PayTo == "" {
		problems = append(problems, "payTo recipient is required")
	}
	if p.Description == "" {
		problems = append(problems, "description is required")
	}
	if p.Amount != "" {
		if _, err := x402.ParseAmount(p.Amount); err != nil {
			problems = append(problems, fmt.Sprintf("amount %q is not a decimal integer", p.Amount))
		}
	}
	if len(problems) > 0 {
		return RoutePolicy{}, fmt.Errorf("policy %s %s: %s", p.Method, p.Path, strings.Join(problems, "; "))
	}

	if p.Scheme == "" {
		p.Scheme = x402.SchemeExact
	}
	if p.MimeType == "" {
		p.MimeType = DefaultMimeType
	}
	if p.MaxTimeoutSeconds == 0 {
		p.MaxTimeoutSeconds = DefaultTimeoutSeconds
	}
	return p, nil
}

// ErrDuplicatePolicy reports a second registration for a (path, method) pair.
var ErrDuplicatePolicy = errors.New("policy: duplicate route registration")
