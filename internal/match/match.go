// Package match selects the provider query that best represents a tracked
// keyword. Providers report slightly different strings than the curated
// keyword text (casing, accents, long-tail variants), so matching falls
// back from exact to normalized to containment.
package match

import (
	"strings"

	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/textnorm"
)

// Result is a successful match of a tracked keyword to one provider query.
type Result struct {
	Query   string
	Metrics provider.QueryMetrics
}

// Best picks the best entry for keyword from the provider query map:
// exact match first, then equality after normalization, then containment
// either way. Among containment candidates the highest-impression entry
// wins, so rare long-tail variants do not steal attribution.
// ok is false when nothing matches; that is not an error.
func Best(keyword string, queries map[string]provider.QueryMetrics) (Result, bool) {
	if keyword == "" || len(queries) == 0 {
		return Result{}, false
	}

	if metrics, ok := queries[keyword]; ok {
		return Result{Query: keyword, Metrics: metrics}, true
	}

	normalized := textnorm.Normalize(keyword)
	if normalized == "" {
		return Result{}, false
	}

	var (
		containment      Result
		containmentFound bool
	)
	for query, metrics := range queries {
		normalizedQuery := textnorm.Normalize(query)
		if normalizedQuery == normalized {
			return Result{Query: query, Metrics: metrics}, true
		}
		if !strings.Contains(normalizedQuery, normalized) && !strings.Contains(normalized, normalizedQuery) {
			continue
		}
		if !containmentFound || betterCandidate(metrics, query, containment) {
			containment = Result{Query: query, Metrics: metrics}
			containmentFound = true
		}
	}
	return containment, containmentFound
}

// betterCandidate breaks containment ties by impressions; equal impressions
// fall back to lexical order so results are deterministic across runs.
func betterCandidate(metrics provider.QueryMetrics, query string, current Result) bool {
	if metrics.Impressions != current.Metrics.Impressions {
		return metrics.Impressions > current.Metrics.Impressions
	}
	return query < current.Query
}
