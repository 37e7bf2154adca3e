package provider

import "context"

// Adapter fetches search-analytics metrics from one external provider.
//
// Aggregated and per-day query maps are subject to the provider's
// small-volume anonymization: very-low-impression queries may be omitted
// entirely. Site daily totals are real, non-anonymized figures.
type Adapter interface {
	Name() string
	Available() bool
	FetchAggregatedQueries(ctx context.Context, dr DateRange) (map[string]QueryMetrics, error)
	FetchDailyQueries(ctx context.Context, dr DateRange) (map[string]map[string]QueryMetrics, error)
	FetchSiteDailyTotals(ctx context.Context, dr DateRange) (map[string]SiteTotals, error)
}

// QueryMetrics is one provider-reported metric sample for a query.
type QueryMetrics struct {
	Position    float64
	Clicks      int64
	Impressions int64
}

// SiteTotals is one provider-reported site-wide daily aggregate.
type SiteTotals struct {
	Position    float64
	Clicks      int64
	Impressions int64
}
