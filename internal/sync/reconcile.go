package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/rankpulse/internal/db"
)

// Outcome is the result of reconciling one (keyword, day, source) row.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeOverwritten Outcome = "overwritten"
)

// ReconcileParams describes one metric sample to upsert.
type ReconcileParams struct {
	KeywordID   int64
	Day         time.Time
	Source      string
	Position    float64
	Clicks      int64
	Impressions int64
}

// PositionStore is the slice of storage the reconciler needs.
type PositionStore interface {
	GetPosition(ctx context.Context, keywordID int64, day time.Time, source string) (*db.Position, error)
	InsertPosition(ctx context.Context, params db.InsertPositionParams) (int64, error)
	UpdatePositionMetrics(ctx context.Context, positionID int64, position float64, clicks, impressions int64) error
}

// ReconcilePosition upserts one metric row. A missing row is inserted;
// an existing row is left alone unless overwrite is set. Backfill and
// full-reset reporting depend on the three distinct outcomes.
func ReconcilePosition(ctx context.Context, store PositionStore, params ReconcileParams, overwrite bool) (Outcome, error) {
	existing, err := store.GetPosition(ctx, params.KeywordID, params.Day, params.Source)
	if err != nil && !errors.Is(err, db.ErrNoRows) {
		return "", fmt.Errorf("lookup position: %w", err)
	}

	if existing == nil {
		_, err := store.InsertPosition(ctx, db.InsertPositionParams{
			KeywordID:   params.KeywordID,
			Day:         params.Day,
			Source:      params.Source,
			Position:    params.Position,
			Clicks:      params.Clicks,
			Impressions: params.Impressions,
		})
		if err != nil {
			return "", fmt.Errorf("insert position: %w", err)
		}
		return OutcomeCreated, nil
	}

	if !overwrite {
		return OutcomeSkipped, nil
	}

	if err := store.UpdatePositionMetrics(ctx, existing.PositionID, params.Position, params.Clicks, params.Impressions); err != nil {
		return "", fmt.Errorf("overwrite position: %w", err)
	}
	return OutcomeOverwritten, nil
}
