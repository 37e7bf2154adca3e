package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertDailyTotalParams describes one site-wide daily aggregate.
type UpsertDailyTotalParams struct {
	Scope       Scope
	Day         time.Time
	Source      string
	Clicks      int64
	Impressions int64
	Position    float64
}

// UpsertDailyTotal inserts or replaces the aggregate for (scope, day,
// source). Daily totals have no overwrite policy: the provider's latest
// figure always wins.
func (p *Pool) UpsertDailyTotal(ctx context.Context, params UpsertDailyTotalParams) error {
	q := `
INSERT INTO seo.daily_totals (site_id, day, source, clicks, impressions, position, created_at, updated_at)
VALUES ($1, $2::date, $3, $4, $5, $6, now(), now())
ON CONFLICT (COALESCE(site_id, 0), day, source) DO UPDATE
SET clicks = EXCLUDED.clicks,
	impressions = EXCLUDED.impressions,
	position = EXCLUDED.position,
	updated_at = now()
`
	_, err := p.Exec(ctx, q,
		params.Scope.SiteID,
		params.Day.UTC(),
		params.Source,
		params.Clicks,
		params.Impressions,
		params.Position,
	)
	if err != nil {
		return fmt.Errorf("upsert daily total for %s %s: %w",
			params.Scope, params.Day.Format("2006-01-02"), err)
	}
	return nil
}

// ListRecentDailyTotals returns the scope's aggregates from sinceDay on,
// newest first. The full-reset verification table reads this.
func (p *Pool) ListRecentDailyTotals(ctx context.Context, scope Scope, sinceDay time.Time) ([]DailyTotal, error) {
	q := `
SELECT
	daily_total_id,
	site_id,
	day,
	source,
	clicks,
	impressions,
	position,
	created_at,
	updated_at
FROM seo.daily_totals
WHERE site_id IS NOT DISTINCT FROM $1::bigint
  AND day >= $2::date
ORDER BY day DESC, source
`
	rows, err := p.Query(ctx, q, scope.SiteID, sinceDay.UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily totals in %s: %w", scope, err)
	}
	defer rows.Close()

	var totals []DailyTotal
	for rows.Next() {
		var total DailyTotal
		if err := rows.Scan(
			&total.DailyTotalID,
			&total.SiteID,
			&total.Day,
			&total.Source,
			&total.Clicks,
			&total.Impressions,
			&total.Position,
			&total.CreatedAt,
			&total.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan daily total row: %w", err)
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily total rows: %w", err)
	}
	return totals, nil
}

// DeleteDailyTotalsInScope removes the scope's aggregates. Only the
// full-reset flow calls this.
func (p *Pool) DeleteDailyTotalsInScope(ctx context.Context, scope Scope) (int64, error) {
	tag, err := p.Exec(ctx,
		`DELETE FROM seo.daily_totals WHERE site_id IS NOT DISTINCT FROM $1::bigint`,
		scope.SiteID)
	if err != nil {
		return 0, fmt.Errorf("delete daily totals in %s: %w", scope, err)
	}
	return tag.RowsAffected(), nil
}
