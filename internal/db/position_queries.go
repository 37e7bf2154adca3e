package db

import (
	"context"
	"fmt"
	"time"
)

const positionColumns = `
	position_id,
	keyword_id,
	day,
	source,
	position,
	clicks,
	impressions,
	created_at,
	updated_at`

func scanPosition(row interface{ Scan(...any) error }, pos *Position) error {
	return row.Scan(
		&pos.PositionID,
		&pos.KeywordID,
		&pos.Day,
		&pos.Source,
		&pos.Position,
		&pos.Clicks,
		&pos.Impressions,
		&pos.CreatedAt,
		&pos.UpdatedAt,
	)
}

// GetPosition loads the row for the (keyword, day, source) natural key.
func (p *Pool) GetPosition(ctx context.Context, keywordID int64, day time.Time, source string) (*Position, error) {
	q := `
SELECT` + positionColumns + `
FROM seo.positions
WHERE keyword_id = $1
  AND day = $2::date
  AND source = $3
`
	var pos Position
	if err := scanPosition(p.QueryRow(ctx, q, keywordID, day.UTC(), source), &pos); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query position for keyword %d: %w", keywordID, err)
	}
	return &pos, nil
}

// InsertPositionParams describes one metric row to create.
type InsertPositionParams struct {
	KeywordID   int64
	Day         time.Time
	Source      string
	Position    float64
	Clicks      int64
	Impressions int64
}

// InsertPosition creates one metric row and returns its id.
func (p *Pool) InsertPosition(ctx context.Context, params InsertPositionParams) (int64, error) {
	q := `
INSERT INTO seo.positions (keyword_id, day, source, position, clicks, impressions, created_at, updated_at)
VALUES ($1, $2::date, $3, $4, $5, $6, now(), now())
RETURNING position_id
`
	var positionID int64
	err := p.QueryRow(ctx, q,
		params.KeywordID,
		params.Day.UTC(),
		params.Source,
		params.Position,
		params.Clicks,
		params.Impressions,
	).Scan(&positionID)
	if err != nil {
		return 0, fmt.Errorf("insert position for keyword %d: %w", params.KeywordID, err)
	}
	return positionID, nil
}

// UpdatePositionMetrics replaces a row's metric values (overwrite path).
func (p *Pool) UpdatePositionMetrics(ctx context.Context, positionID int64, position float64, clicks, impressions int64) error {
	q := `
UPDATE seo.positions
SET position = $2,
	clicks = $3,
	impressions = $4,
	updated_at = now()
WHERE position_id = $1
`
	tag, err := p.Exec(ctx, q, positionID, position, clicks, impressions)
	if err != nil {
		return fmt.Errorf("update position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// AddPositionMetrics folds a duplicate row's clicks and impressions into
// the survivor. The survivor's own position reading stays.
func (p *Pool) AddPositionMetrics(ctx context.Context, positionID int64, clicks, impressions int64) error {
	q := `
UPDATE seo.positions
SET clicks = clicks + $2,
	impressions = impressions + $3,
	updated_at = now()
WHERE position_id = $1
`
	tag, err := p.Exec(ctx, q, positionID, clicks, impressions)
	if err != nil {
		return fmt.Errorf("add metrics to position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ReassignPosition moves one row to another keyword.
func (p *Pool) ReassignPosition(ctx context.Context, positionID, keywordID int64) error {
	q := `
UPDATE seo.positions
SET keyword_id = $2,
	updated_at = now()
WHERE position_id = $1
`
	tag, err := p.Exec(ctx, q, positionID, keywordID)
	if err != nil {
		return fmt.Errorf("reassign position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ListPositionsForKeyword returns all metric rows for one keyword,
// oldest day first.
func (p *Pool) ListPositionsForKeyword(ctx context.Context, keywordID int64) ([]Position, error) {
	q := `
SELECT` + positionColumns + `
FROM seo.positions
WHERE keyword_id = $1
ORDER BY day, source
`
	rows, err := p.Query(ctx, q, keywordID)
	if err != nil {
		return nil, fmt.Errorf("query positions for keyword %d: %w", keywordID, err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var pos Position
		if err := scanPosition(rows, &pos); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// DeletePosition removes one metric row.
func (p *Pool) DeletePosition(ctx context.Context, positionID int64) error {
	tag, err := p.Exec(ctx, `DELETE FROM seo.positions WHERE position_id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("delete position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// DeletePositionsForKeyword removes every metric row of one keyword.
func (p *Pool) DeletePositionsForKeyword(ctx context.Context, keywordID int64) (int64, error) {
	tag, err := p.Exec(ctx, `DELETE FROM seo.positions WHERE keyword_id = $1`, keywordID)
	if err != nil {
		return 0, fmt.Errorf("delete positions for keyword %d: %w", keywordID, err)
	}
	return tag.RowsAffected(), nil
}

// DeletePositionsInScope removes every metric row in the scope. Only the
// full-reset flow calls this.
func (p *Pool) DeletePositionsInScope(ctx context.Context, scope Scope) (int64, error) {
	q := `
DELETE FROM seo.positions
WHERE keyword_id IN (
	SELECT keyword_id FROM seo.keywords WHERE site_id IS NOT DISTINCT FROM $1::bigint
)
`
	tag, err := p.Exec(ctx, q, scope.SiteID)
	if err != nil {
		return 0, fmt.Errorf("delete positions in %s: %w", scope, err)
	}
	return tag.RowsAffected(), nil
}

// CountPositions counts metric rows in the scope.
func (p *Pool) CountPositions(ctx context.Context, scope Scope) (int64, error) {
	q := `
SELECT COUNT(*)
FROM seo.positions pos
JOIN seo.keywords kw ON kw.keyword_id = pos.keyword_id
WHERE kw.site_id IS NOT DISTINCT FROM $1::bigint
`
	var count int64
	if err := p.QueryRow(ctx, q, scope.SiteID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count positions in %s: %w", scope, err)
	}
	return count, nil
}
