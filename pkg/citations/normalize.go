// Package citations turns raw per-vendor evidence structures into a uniform
// citation model and scores source authority.
package citations

import (
	"context"
	"net/url"
	"strings"

	"github.com/zen-systems/geogate/pkg/adapter"
)

// SourceType classifies how a citation is tied to the response.
type SourceType string

const (
	// SourceAnchored citations are backed by an explicit text-span
	// reference in the response.
	SourceAnchored SourceType = "anchored"
	// SourceUnlinked evidence was returned without a span anchor.
	SourceUnlinked SourceType = "unlinked"
	// SourceRedirectOnly means the true destination could not be resolved
	// within budget.
	SourceRedirectOnly SourceType = "redirect_only"
)

// Citation is one deduplicated evidence entry.
type Citation struct {
	URL        string     `json:"url"`
	RawURL     string     `json:"raw_url,omitempty"`
	Title      string     `json:"title,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	SourceType SourceType `json:"source_type"`
	Tier       int        `json:"tier,omitempty"`
	Count      int        `json:"count"`
}

// Normalizer flattens vendor evidence into deduplicated citations.
type Normalizer struct {
	resolver *RedirectResolver
}

// NewNormalizer creates a normalizer. A nil resolver marks opaque redirect
// URLs redirect-only without attempting resolution.
func NewNormalizer(resolver *RedirectResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize converts one vendor evidence structure into a deduplicated,
// classified citation list. Entries sharing a resolved URL merge into a
// single citation whose count accumulates; an anchored occurrence always
// outranks an unlinked one for the same URL.
func (n *Normalizer) Normalize(ctx context.Context, ev adapter.Evidence) []Citation {
	switch e := ev.(type) {
	case adapter.ChatEvidence:
		return n.normalizeChat(ctx, e)
	case adapter.SearchEvidence:
		return n.normalizeSearch(ctx, e)
	default:
		return nil
	}
}

// normalizeChat handles the chat-style shape: span annotations are anchored
// by construction, bare tool-result sources are unlinked.
func (n *Normalizer) normalizeChat(ctx context.Context, ev adapter.ChatEvidence) []Citation {
	acc := newAccumulator(n.resolver)
	for _, ann := range ev.Annotations {
		acc.add(ctx, ann.URL, ann.Title, SourceAnchored)
	}
	for _, src := range ev.Sources {
		acc.add(ctx, src.URL, src.Title, SourceUnlinked)
	}
	return acc.list()
}

// normalizeSearch handles the search-grounded shape: chunks referenced by a
// support are anchored, the rest are unlinked. When supports are absent but
// chunks exist, every extracted citation is unlinked.
func (n *Normalizer) normalizeSearch(ctx context.Context, ev adapter.SearchEvidence) []Citation {
	anchored := make(map[int]bool)
	for _, support := range ev.Supports {
		for _, idx := range support.ChunkIndices {
			anchored[idx] = true
		}
	}

	acc := newAccumulator(n.resolver)
	for i, chunk := range ev.Chunks {
		sourceType := SourceUnlinked
		if anchored[i] {
			sourceType = SourceAnchored
		}
		acc.add(ctx, chunk.URI, chunk.Title, sourceType)
	}
	return acc.list()
}

// accumulator dedups citations by resolved URL while preserving first-seen
// order.
type accumulator struct {
	resolver *RedirectResolver
	order    []string
	byKey    map[string]*Citation
}

func newAccumulator(resolver *RedirectResolver) *accumulator {
	return &accumulator{resolver: resolver, byKey: make(map[string]*Citation)}
}

func (a *accumulator) add(ctx context.Context, rawURL, title string, sourceType SourceType) {
	if rawURL == "" {
		return
	}

	resolved := rawURL
	if IsRedirectURL(rawURL) {
		final, ok := "", false
		if a.resolver != nil {
			final, ok = a.resolver.Resolve(ctx, rawURL)
		}
		if ok {
			resolved = final
		} else {
			sourceType = SourceRedirectOnly
		}
	}

	key := canonicalURL(resolved)
	if existing, ok := a.byKey[key]; ok {
		existing.Count++
		if sourceType == SourceAnchored && existing.SourceType != SourceAnchored {
			existing.SourceType = SourceAnchored
		}
		if existing.Title == "" {
			existing.Title = title
		}
		return
	}

	c := &Citation{
		URL:        resolved,
		Title:      title,
		Domain:     domainOf(resolved),
		SourceType: sourceType,
		Count:      1,
	}
	if resolved != rawURL {
		c.RawURL = rawURL
	}
	if sourceType == SourceRedirectOnly {
		c.RawURL = rawURL
		c.Domain = ""
	}
	a.byKey[key] = c
	a.order = append(a.order, key)
}

func (a *accumulator) list() []Citation {
	out := make([]Citation, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.byKey[key])
	}
	return out
}

// canonicalURL is the dedup key: lowercased host, no fragment, no trailing
// slash.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	s := u.String()
	return strings.TrimSuffix(s, "/")
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
