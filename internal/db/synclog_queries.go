package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// StartSyncLog opens one run-ledger row and returns its id.
func (p *Pool) StartSyncLog(ctx context.Context, command string, scope Scope, startedAt time.Time) (int64, error) {
	q := `
INSERT INTO seo.sync_logs (command, site_id, started_at, status, created_at)
VALUES ($1, $2, $3, 'running', now())
RETURNING sync_log_id
`
	var syncLogID int64
	err := p.QueryRow(ctx, q, command, scope.SiteID, startedAt.UTC()).Scan(&syncLogID)
	if err != nil {
		return 0, fmt.Errorf("start sync log for %s: %w", command, err)
	}
	return syncLogID, nil
}

// FinishSyncLog closes a run-ledger row. Finished rows are never
// mutated again.
func (p *Pool) FinishSyncLog(ctx context.Context, syncLogID int64, status string, finishedAt time.Time, detail json.RawMessage, errorMessage *string) error {
	q := `
UPDATE seo.sync_logs
SET finished_at = $2,
	duration_ms = (EXTRACT(EPOCH FROM ($2::timestamptz - started_at)) * 1000)::bigint,
	status = $3,
	detail = $4,
	error_message = $5
WHERE sync_log_id = $1
  AND finished_at IS NULL
`
	tag, err := p.Exec(ctx, q, syncLogID, finishedAt.UTC(), status, detail, errorMessage)
	if err != nil {
		return fmt.Errorf("finish sync log %d: %w", syncLogID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync log %d is already finished", syncLogID)
	}
	return nil
}

// ListSyncLogs returns the newest run-ledger rows, optionally filtered
// to one scope.
func (p *Pool) ListSyncLogs(ctx context.Context, scope *Scope, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	var siteID *int64
	scoped := scope != nil
	if scoped {
		siteID = scope.SiteID
	}

	q := `
SELECT
	sync_log_id,
	sync_log_uuid::text,
	command,
	site_id,
	started_at,
	finished_at,
	duration_ms,
	status,
	detail,
	error_message,
	created_at
FROM seo.sync_logs
WHERE NOT $1::boolean OR site_id IS NOT DISTINCT FROM $2::bigint
ORDER BY started_at DESC, sync_log_id DESC
LIMIT $3
`
	rows, err := p.Query(ctx, q, scoped, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		var entry SyncLog
		if err := rows.Scan(
			&entry.SyncLogID,
			&entry.SyncLogUUID,
			&entry.Command,
			&entry.SiteID,
			&entry.StartedAt,
			&entry.FinishedAt,
			&entry.DurationMS,
			&entry.Status,
			&entry.Detail,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync log row: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync log rows: %w", err)
	}
	return logs, nil
}
