package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Registry answers route policy lookups. It is written during startup and
// read-only afterwards; there is deliberately no runtime add/remove API.
type Registry struct {
	policies    map[string]RoutePolicy
	proxyPrefix string
}

// NewRegistry creates an empty registry. proxyPrefix is the reserved
// upstream subtree, e.g. "/proxy/".
func NewRegistry(proxyPrefix string) *Registry {
	return &Registry{
		policies:    make(map[string]RoutePolicy),
		proxyPrefix: proxyPrefix,
	}
}

func routeKey(path, method string) string {
	return strings.ToUpper(method) + " " + path
}

// Register adds a policy. At most one policy may exist per (path, method).
func (r *Registry) Register(p RoutePolicy) error {
	key := routeKey(p.Path, p.Method)
	if _, exists := r.policies[key]; exists {
		return fmt.Errorf("%w: %s %s", ErrDuplicatePolicy, p.Method, p.Path)
	}
	r.policies[key] = p
	return nil
}

// Match returns the policy for an exact (path, method) pair. Paths compare
// literally; methods compare case-insensitively.
func (r *Registry) Match(path, method string) (RoutePolicy, bool) {
	p, ok := r.policies[routeKey(path, method)]
	return p, ok
}

// All returns every registered policy, ordered by path then method for
// stable discovery documents.
func (r *Registry) All() []RoutePolicy {
	out := make([]RoutePolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// InProxySubtree reports whether path belongs to the reserved proxy prefix.
func (r *Registry) InProxySubtree(path string) bool {
	return strings.HasPrefix(path, r.proxyPrefix)
}

// ProxyPrefix returns the reserved proxy subtree prefix.
func (r *Registry) ProxyPrefix() string {
	return r.proxyPrefix
}
