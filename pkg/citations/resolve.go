package citations

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// redirectHosts are known opaque-redirect hosts whose URLs hide the true
// destination behind a hop.
var redirectHosts = []string{
	"vertexaisearch.cloud.google.com",
	"grounding-api-redirect",
}

// IsRedirectURL reports whether a raw evidence URL is an opaque redirect.
func IsRedirectURL(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range redirectHosts {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RedirectResolver follows opaque redirect URLs to their destinations
// within a bounded budget: a fixed maximum URL count and a fixed wall-clock
// allowance per normalization pass. Entries over budget stay redirect-only
// rather than blocking the request.
type RedirectResolver struct {
	client  *http.Client
	limiter *rate.Limiter

	maxURLs int
	budget  time.Duration

	mu        sync.Mutex
	passStart time.Time
	resolved  int
}

// NewRedirectResolver creates a resolver. maxURLs bounds lookups per pass,
// budget bounds the pass wall-clock time.
func NewRedirectResolver(maxURLs int, budget time.Duration) *RedirectResolver {
	if maxURLs <= 0 {
		maxURLs = 8
	}
	if budget <= 0 {
		budget = 3 * time.Second
	}
	return &RedirectResolver{
		client:  &http.Client{Timeout: 2 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		maxURLs: maxURLs,
		budget:  budget,
	}
}

// BeginPass resets the per-pass budget counters. The normalizer's caller
// invokes it once per response.
func (r *RedirectResolver) BeginPass() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passStart = time.Now()
	r.resolved = 0
}

// Resolve follows one redirect URL. The second return is false when the
// destination could not be determined within budget.
func (r *RedirectResolver) Resolve(ctx context.Context, rawURL string) (string, bool) {
	if !r.takeBudget() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, r.remaining())
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	if final == "" || IsRedirectURL(final) {
		return "", false
	}
	return final, true
}

func (r *RedirectResolver) takeBudget() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.passStart.IsZero() {
		r.passStart = time.Now()
		r.resolved = 0
	}
	if r.resolved >= r.maxURLs {
		return false
	}
	if time.Since(r.passStart) >= r.budget {
		return false
	}
	r.resolved++
	return true
}

func (r *RedirectResolver) remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	left := r.budget - time.Since(r.passStart)
	if left < 100*time.Millisecond {
		left = 100 * time.Millisecond
	}
	return left
}
