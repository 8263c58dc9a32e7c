package citations

import (
	"math"
	"strings"
)

// Tier bounds: 1 is highest authority, 4 is an explicit penalty tier.
const (
	TierHighest = 1
	TierPenalty = 4
)

// AuthorityConfig maps domains to authority tiers.
type AuthorityConfig struct {
	// Tiers maps a domain (or registrable suffix) to its tier.
	Tiers map[string]int
	// DefaultTier applies to unknown domains.
	DefaultTier int
}

// DefaultAuthorityConfig returns a conservative built-in tier table.
func DefaultAuthorityConfig() AuthorityConfig {
	return AuthorityConfig{
		DefaultTier: 3,
		Tiers: map[string]int{
			"nih.gov":         1,
			"who.int":         1,
			"europa.eu":       1,
			"nature.com":      1,
			"reuters.com":     1,
			"apnews.com":      1,
			"bbc.co.uk":       2,
			"nytimes.com":     2,
			"ft.com":          2,
			"theguardian.com": 2,
			"wikipedia.org":   2,
			"medium.com":      4,
			"quora.com":       4,
			"reddit.com":      4,
			"pinterest.com":   4,
		},
	}
}

// Score aggregates citation authority for one response.
type Score struct {
	// Value is 0-100: the count-weighted average tier mapped so that all
	// tier-1 evidence scores 100 and all tier-4 scores 0.
	Value int `json:"value"`
	// Tier1Share is the fraction of occurrences in tier 1.
	Tier1Share float64 `json:"tier1_share"`
	// PremiumShare is the fraction in tiers 1-2.
	PremiumShare float64 `json:"premium_share"`
	// PenaltyShare is the fraction in the penalty tier.
	PenaltyShare float64 `json:"penalty_share"`
}

// AssignTiers sets each citation's tier from the config table. Lookup tries
// the exact domain, then parent suffixes, so "blog.nature.com" inherits
// "nature.com"'s tier. Redirect-only entries have no domain and take the
// default.
func AssignTiers(cits []Citation, cfg AuthorityConfig) {
	if cfg.DefaultTier < TierHighest || cfg.DefaultTier > TierPenalty {
		cfg.DefaultTier = 3
	}
	for i := range cits {
		cits[i].Tier = tierFor(cits[i].Domain, cfg)
	}
}

func tierFor(domain string, cfg AuthorityConfig) int {
	if domain == "" {
		return cfg.DefaultTier
	}
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		candidate := strings.Join(labels[i:], ".")
		if tier, ok := cfg.Tiers[candidate]; ok {
			return tier
		}
	}
	return cfg.DefaultTier
}

// ScoreCitations computes the aggregate authority score over tiered,
// deduplicated citations, weighting each by its occurrence count.
func ScoreCitations(cits []Citation) Score {
	var weighted, total float64
	var tier1, premium, penalty float64
	for _, c := range cits {
		count := float64(c.Count)
		if count <= 0 {
			count = 1
		}
		tier := c.Tier
		if tier < TierHighest || tier > TierPenalty {
			tier = 3
		}
		weighted += float64(tier) * count
		total += count
		if tier == 1 {
			tier1 += count
		}
		if tier <= 2 {
			premium += count
		}
		if tier == TierPenalty {
			penalty += count
		}
	}
	if total == 0 {
		return Score{}
	}
	avg := weighted / total
	return Score{
		Value:        int(math.Round((float64(TierPenalty) - avg) / float64(TierPenalty-TierHighest) * 100)),
		Tier1Share:   tier1 / total,
		PremiumShare: premium / total,
		PenaltyShare: penalty / total,
	}
}
