package db

import (
	"context"
	"fmt"
	"strings"
)

const siteColumns = `
	site_id,
	site_uuid::text,
	slug,
	name,
	property_url,
	enabled,
	import_weekday,
	import_slot,
	report_weekday,
	report_week_of_month,
	report_slot,
	created_at,
	updated_at`

func scanSite(row interface{ Scan(...any) error }, site *Site) error {
	return row.Scan(
		&site.SiteID,
		&site.SiteUUID,
		&site.Slug,
		&site.Name,
		&site.PropertyURL,
		&site.Enabled,
		&site.ImportWeekday,
		&site.ImportSlot,
		&site.ReportWeekday,
		&site.ReportWeekOfMonth,
		&site.ReportSlot,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
}

// ListSites returns every client site, enabled or not.
func (p *Pool) ListSites(ctx context.Context) ([]Site, error) {
	q := `
SELECT` + siteColumns + `
FROM seo.sites
ORDER BY slug
`
	return p.querySites(ctx, q)
}

// ListEnabledSites returns the client sites the scheduler iterates.
func (p *Pool) ListEnabledSites(ctx context.Context) ([]Site, error) {
	q := `
SELECT` + siteColumns + `
FROM seo.sites
WHERE enabled
ORDER BY slug
`
	return p.querySites(ctx, q)
}

func (p *Pool) querySites(ctx context.Context, q string, args ...any) ([]Site, error) {
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		if err := scanSite(rows, &site); err != nil {
			return nil, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site rows: %w", err)
	}
	return sites, nil
}

// GetSiteBySlug loads one site by its slug.
func (p *Pool) GetSiteBySlug(ctx context.Context, slug string) (*Site, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, fmt.Errorf("site slug is required")
	}
	q := `
SELECT` + siteColumns + `
FROM seo.sites
WHERE slug = $1
`
	var site Site
	if err := scanSite(p.QueryRow(ctx, q, trimmed), &site); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query site %q: %w", trimmed, err)
	}
	return &site, nil
}

// GetSiteByUUID loads one site by its public UUID.
func (p *Pool) GetSiteByUUID(ctx context.Context, siteUUID string) (*Site, error) {
	trimmed := strings.TrimSpace(siteUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("site UUID is required")
	}
	q := `
SELECT` + siteColumns + `
FROM seo.sites
WHERE site_uuid = $1::uuid
`
	var site Site
	if err := scanSite(p.QueryRow(ctx, q, trimmed), &site); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query site %q: %w", trimmed, err)
	}
	return &site, nil
}

// UpsertSiteParams describes one declarative site definition.
type UpsertSiteParams struct {
	Slug              string
	Name              string
	PropertyURL       string
	Enabled           bool
	ImportWeekday     *int16
	ImportSlot        *string
	ReportWeekday     *int16
	ReportWeekOfMonth *int16
	ReportSlot        *string
}

// UpsertSite inserts or updates a site by slug and returns its id.
func (p *Pool) UpsertSite(ctx context.Context, params UpsertSiteParams) (int64, error) {
	q := `
INSERT INTO seo.sites (
	slug, name, property_url, enabled,
	import_weekday, import_slot,
	report_weekday, report_week_of_month, report_slot,
	created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT (slug) DO UPDATE
SET name = EXCLUDED.name,
	property_url = EXCLUDED.property_url,
	enabled = EXCLUDED.enabled,
	import_weekday = EXCLUDED.import_weekday,
	import_slot = EXCLUDED.import_slot,
	report_weekday = EXCLUDED.report_weekday,
	report_week_of_month = EXCLUDED.report_week_of_month,
	report_slot = EXCLUDED.report_slot,
	updated_at = now()
RETURNING site_id
`
	var siteID int64
	err := p.QueryRow(ctx, q,
		strings.TrimSpace(params.Slug),
		params.Name,
		params.PropertyURL,
		params.Enabled,
		params.ImportWeekday,
		params.ImportSlot,
		params.ReportWeekday,
		params.ReportWeekOfMonth,
		params.ReportSlot,
	).Scan(&siteID)
	if err != nil {
		return 0, fmt.Errorf("upsert site %q: %w", params.Slug, err)
	}
	return siteID, nil
}
