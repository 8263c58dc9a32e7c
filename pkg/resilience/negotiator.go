package resilience

import (
	"sync"
	"time"
)

// Negotiator handles backends that expose two near-equivalent tool
// identifiers for the same capability. After a structured "unsupported
// tool" error the caller asks for the alternate identifier; once all
// variants are exhausted the conclusion is cached with a TTL so entitlement
// changes are periodically re-checked.
type Negotiator struct {
	ttl time.Duration

	mu          sync.Mutex
	unsupported map[string]time.Time

	now func() time.Time
}

// NewNegotiator creates a negotiator whose unsupported conclusions expire
// after ttl.
func NewNegotiator(ttl time.Duration) *Negotiator {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Negotiator{
		ttl:         ttl,
		unsupported: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Unsupported reports whether the target is cached as lacking the grounding
// capability. Expired entries are dropped.
func (n *Negotiator) Unsupported(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	expiry, ok := n.unsupported[key]
	if !ok {
		return false
	}
	if n.now().After(expiry) {
		delete(n.unsupported, key)
		return false
	}
	return true
}

// MarkUnsupported caches that the target lacks the capability.
func (n *Negotiator) MarkUnsupported(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unsupported[key] = n.now().Add(n.ttl)
}

// ClearUnsupported drops a cached conclusion, used when a variant later
// succeeds.
func (n *Negotiator) ClearUnsupported(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.unsupported, key)
}

// Alternate returns the variant after `current` in the list, if any.
func Alternate(current string, variants []string) (string, bool) {
	for i, v := range variants {
		if v == current && i+1 < len(variants) {
			return variants[i+1], true
		}
	}
	return "", false
}
