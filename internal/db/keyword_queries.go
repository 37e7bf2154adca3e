package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const keywordColumns = `
	keyword_id,
	keyword_uuid::text,
	site_id,
	text,
	normalized_text,
	target_url,
	active,
	source,
	relevance,
	relevance_score,
	last_synced_at,
	last_seen_google_at,
	last_seen_bing_at,
	deactivated_at,
	created_at,
	updated_at`

func scanKeyword(row interface{ Scan(...any) error }, kw *Keyword) error {
	return row.Scan(
		&kw.KeywordID,
		&kw.KeywordUUID,
		&kw.SiteID,
		&kw.Text,
		&kw.NormalizedText,
		&kw.TargetURL,
		&kw.Active,
		&kw.Source,
		&kw.Relevance,
		&kw.RelevanceScore,
		&kw.LastSyncedAt,
		&kw.LastSeenGoogleAt,
		&kw.LastSeenBingAt,
		&kw.DeactivatedAt,
		&kw.CreatedAt,
		&kw.UpdatedAt,
	)
}

// ListKeywords returns every keyword in the scope, active or not.
func (p *Pool) ListKeywords(ctx context.Context, scope Scope) ([]Keyword, error) {
	q := `
SELECT` + keywordColumns + `
FROM seo.keywords
WHERE site_id IS NOT DISTINCT FROM $1::bigint
ORDER BY created_at, keyword_id
`
	return p.queryKeywords(ctx, q, scope.SiteID)
}

// ListActiveKeywords returns the scope's currently tracked keywords.
func (p *Pool) ListActiveKeywords(ctx context.Context, scope Scope) ([]Keyword, error) {
	q := `
SELECT` + keywordColumns + `
FROM seo.keywords
WHERE site_id IS NOT DISTINCT FROM $1::bigint
  AND active
ORDER BY created_at, keyword_id
`
	return p.queryKeywords(ctx, q, scope.SiteID)
}

// ListInactiveKeywords returns the scope's deactivated keywords.
func (p *Pool) ListInactiveKeywords(ctx context.Context, scope Scope) ([]Keyword, error) {
	q := `
SELECT` + keywordColumns + `
FROM seo.keywords
WHERE site_id IS NOT DISTINCT FROM $1::bigint
  AND NOT active
ORDER BY created_at, keyword_id
`
	return p.queryKeywords(ctx, q, scope.SiteID)
}

func (p *Pool) queryKeywords(ctx context.Context, q string, args ...any) ([]Keyword, error) {
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var keywords []Keyword
	for rows.Next() {
		var kw Keyword
		if err := scanKeyword(rows, &kw); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword rows: %w", err)
	}
	return keywords, nil
}

// GetKeyword loads one keyword by id.
func (p *Pool) GetKeyword(ctx context.Context, keywordID int64) (*Keyword, error) {
	q := `
SELECT` + keywordColumns + `
FROM seo.keywords
WHERE keyword_id = $1
`
	var kw Keyword
	if err := scanKeyword(p.QueryRow(ctx, q, keywordID), &kw); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query keyword %d: %w", keywordID, err)
	}
	return &kw, nil
}

// InsertKeywordParams describes one keyword row to create.
type InsertKeywordParams struct {
	Scope          Scope
	Text           string
	NormalizedText string
	TargetURL      *string
	Source         string
	Relevance      string
	RelevanceScore int16
	SeenSource     string
	SeenAt         time.Time
}

// InsertKeyword creates one keyword and returns its id.
func (p *Pool) InsertKeyword(ctx context.Context, params InsertKeywordParams) (int64, error) {
	q := `
INSERT INTO seo.keywords (
	site_id, text, normalized_text, target_url, active, source,
	relevance, relevance_score, last_seen_google_at, last_seen_bing_at,
	created_at, updated_at
)
VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, now(), now())
RETURNING keyword_id
`
	var seenGoogle, seenBing *time.Time
	switch strings.ToLower(params.SeenSource) {
	case "google":
		seenGoogle = &params.SeenAt
	case "bing":
		seenBing = &params.SeenAt
	}

	var keywordID int64
	err := p.QueryRow(ctx, q,
		params.Scope.SiteID,
		params.Text,
		params.NormalizedText,
		params.TargetURL,
		params.Source,
		params.Relevance,
		params.RelevanceScore,
		seenGoogle,
		seenBing,
	).Scan(&keywordID)
	if err != nil {
		return 0, fmt.Errorf("insert keyword %q: %w", params.Text, err)
	}
	return keywordID, nil
}

// ReactivateKeyword sets a keyword active again and clears deactivated_at.
func (p *Pool) ReactivateKeyword(ctx context.Context, keywordID int64, now time.Time) error {
	q := `
UPDATE seo.keywords
SET active = TRUE,
	deactivated_at = NULL,
	updated_at = $2
WHERE keyword_id = $1
`
	tag, err := p.Exec(ctx, q, keywordID, now.UTC())
	if err != nil {
		return fmt.Errorf("reactivate keyword %d: %w", keywordID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// DeactivateKeyword soft-removes a keyword from tracking. History stays.
func (p *Pool) DeactivateKeyword(ctx context.Context, keywordID int64, now time.Time) error {
	q := `
UPDATE seo.keywords
SET active = FALSE,
	deactivated_at = $2,
	updated_at = $2
WHERE keyword_id = $1
`
	tag, err := p.Exec(ctx, q, keywordID, now.UTC())
	if err != nil {
		return fmt.Errorf("deactivate keyword %d: %w", keywordID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// TouchKeywordSynced stamps last_synced_at and the per-provider
// last-seen column after a successful position sync.
func (p *Pool) TouchKeywordSynced(ctx context.Context, keywordID int64, source string, now time.Time) error {
	column, err := lastSeenColumn(source)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
UPDATE seo.keywords
SET last_synced_at = $2,
	%s = $2,
	updated_at = $2
WHERE keyword_id = $1
`, column)
	if _, err := p.Exec(ctx, q, keywordID, now.UTC()); err != nil {
		return fmt.Errorf("touch keyword %d sync: %w", keywordID, err)
	}
	return nil
}

// TouchKeywordSeen stamps only the per-provider last-seen column, used
// when a keyword shows up in a query report without a position sync.
func (p *Pool) TouchKeywordSeen(ctx context.Context, keywordID int64, source string, now time.Time) error {
	column, err := lastSeenColumn(source)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
UPDATE seo.keywords
SET %s = $2,
	updated_at = $2
WHERE keyword_id = $1
`, column)
	if _, err := p.Exec(ctx, q, keywordID, now.UTC()); err != nil {
		return fmt.Errorf("touch keyword %d seen: %w", keywordID, err)
	}
	return nil
}

// lastSeenColumn whitelists the per-provider column name; source names
// never reach SQL text unvalidated.
func lastSeenColumn(source string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "google":
		return "last_seen_google_at", nil
	case "bing":
		return "last_seen_bing_at", nil
	default:
		return "", fmt.Errorf("unknown provider source %q", source)
	}
}

// LastSeenAt returns the keyword's last-seen timestamp for one provider.
func LastSeenAt(kw *Keyword, source string) *time.Time {
	if kw == nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "google":
		return kw.LastSeenGoogleAt
	case "bing":
		return kw.LastSeenBingAt
	default:
		return nil
	}
}

// DeleteKeyword hard-deletes one keyword row. Reserved for the duplicate
// merger; regular sync only deactivates.
func (p *Pool) DeleteKeyword(ctx context.Context, keywordID int64) error {
	tag, err := p.Exec(ctx, `DELETE FROM seo.keywords WHERE keyword_id = $1`, keywordID)
	if err != nil {
		return fmt.Errorf("delete keyword %d: %w", keywordID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteKeywordsInScope removes every keyword row in the scope. Only the
// full-reset flow calls this.
func (p *Pool) DeleteKeywordsInScope(ctx context.Context, scope Scope) (int64, error) {
	tag, err := p.Exec(ctx,
		`DELETE FROM seo.keywords WHERE site_id IS NOT DISTINCT FROM $1::bigint`,
		scope.SiteID)
	if err != nil {
		return 0, fmt.Errorf("delete keywords in %s: %w", scope, err)
	}
	return tag.RowsAffected(), nil
}

// CountKeywords counts keyword rows in the scope.
func (p *Pool) CountKeywords(ctx context.Context, scope Scope) (int64, error) {
	var count int64
	err := p.QueryRow(ctx,
		`SELECT COUNT(*) FROM seo.keywords WHERE site_id IS NOT DISTINCT FROM $1::bigint`,
		scope.SiteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count keywords in %s: %w", scope, err)
	}
	return count, nil
}
