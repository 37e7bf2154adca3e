package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KeywordGroup is one set of keywords sharing a normalized text.
// KeywordIDs are ordered oldest creation first.
type KeywordGroup struct {
	NormalizedText string
	KeywordIDs     []int64
}

// ListDuplicateKeywordGroups finds keywords whose normalized texts
// collide within a scope. Accent and case variants are legal distinct
// strings at the storage layer, so this grouping is the only place the
// active-uniqueness invariant gets enforced.
func (p *Pool) ListDuplicateKeywordGroups(ctx context.Context, scope Scope) ([]KeywordGroup, error) {
	q := `
SELECT
	normalized_text,
	STRING_AGG(keyword_id::text, ',' ORDER BY created_at, keyword_id) AS keyword_ids
FROM seo.keywords
WHERE site_id IS NOT DISTINCT FROM $1::bigint
GROUP BY normalized_text
HAVING COUNT(*) > 1
ORDER BY normalized_text
`
	rows, err := p.Query(ctx, q, scope.SiteID)
	if err != nil {
		return nil, fmt.Errorf("query duplicate keyword groups in %s: %w", scope, err)
	}
	defer rows.Close()

	var groups []KeywordGroup
	for rows.Next() {
		var (
			normalized string
			idList     string
		)
		if err := rows.Scan(&normalized, &idList); err != nil {
			return nil, fmt.Errorf("scan duplicate keyword group: %w", err)
		}
		ids, err := parseIDList(idList)
		if err != nil {
			return nil, fmt.Errorf("parse keyword id list for %q: %w", normalized, err)
		}
		groups = append(groups, KeywordGroup{NormalizedText: normalized, KeywordIDs: ids})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate keyword groups: %w", err)
	}
	return groups, nil
}

// PositionGroup is one set of literal duplicate metric rows for a
// (keyword, day). PositionIDs are ordered newest creation first, so the
// head is the row to keep.
type PositionGroup struct {
	KeywordID   int64
	Day         time.Time
	PositionIDs []int64
}

// ListDuplicatePositionGroups finds literal duplicate (keyword, day)
// rows left behind by the pre-multi-source schema. Groups spanning more
// than one source are legitimate multi-source data and are excluded.
func (p *Pool) ListDuplicatePositionGroups(ctx context.Context, scope Scope) ([]PositionGroup, error) {
	q := `
SELECT
	pos.keyword_id,
	pos.day,
	STRING_AGG(pos.position_id::text, ',' ORDER BY pos.created_at DESC, pos.position_id DESC) AS position_ids
FROM seo.positions pos
JOIN seo.keywords kw ON kw.keyword_id = pos.keyword_id
WHERE kw.site_id IS NOT DISTINCT FROM $1::bigint
GROUP BY pos.keyword_id, pos.day
HAVING COUNT(*) > 1 AND COUNT(DISTINCT pos.source) = 1
ORDER BY pos.keyword_id, pos.day
`
	rows, err := p.Query(ctx, q, scope.SiteID)
	if err != nil {
		return nil, fmt.Errorf("query duplicate position groups in %s: %w", scope, err)
	}
	defer rows.Close()

	var groups []PositionGroup
	for rows.Next() {
		var (
			group  PositionGroup
			idList string
		)
		if err := rows.Scan(&group.KeywordID, &group.Day, &idList); err != nil {
			return nil, fmt.Errorf("scan duplicate position group: %w", err)
		}
		ids, err := parseIDList(idList)
		if err != nil {
			return nil, fmt.Errorf("parse position id list for keyword %d: %w", group.KeywordID, err)
		}
		group.PositionIDs = ids
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate position groups: %w", err)
	}
	return groups, nil
}

func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", trimmed, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty id list")
	}
	return ids, nil
}
