package sync

import (
	"context"
	"testing"
	"time"
)

func day(value string) time.Time {
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestReconcileIdempotentUpsert(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	params := ReconcileParams{
		KeywordID:   7,
		Day:         day("2026-01-10"),
		Source:      "google",
		Position:    4.2,
		Clicks:      10,
		Impressions: 120,
	}

	outcome, err := ReconcilePosition(context.Background(), store, params, false)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome)
	}

	second := params
	second.Position = 9.9
	second.Clicks = 99
	outcome, err = ReconcilePosition(context.Background(), store, second, false)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", outcome)
	}

	if store.positionCount() != 1 {
		t.Fatalf("expected exactly one row, got %d", store.positionCount())
	}
	row, err := store.GetPosition(context.Background(), 7, params.Day, "google")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if row.Position != 4.2 || row.Clicks != 10 {
		t.Fatalf("expected first write retained, got %+v", row)
	}
}

func TestReconcileOverwrite(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	params := ReconcileParams{
		KeywordID:   7,
		Day:         day("2026-01-10"),
		Source:      "google",
		Position:    4.2,
		Clicks:      10,
		Impressions: 120,
	}

	if _, err := ReconcilePosition(context.Background(), store, params, true); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	second := params
	second.Position = 2.1
	second.Clicks = 25
	second.Impressions = 300
	outcome, err := ReconcilePosition(context.Background(), store, second, true)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if outcome != OutcomeOverwritten {
		t.Fatalf("expected overwritten, got %s", outcome)
	}

	if store.positionCount() != 1 {
		t.Fatalf("expected row count unchanged, got %d", store.positionCount())
	}
	row, err := store.GetPosition(context.Background(), 7, params.Day, "google")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if row.Position != 2.1 || row.Clicks != 25 || row.Impressions != 300 {
		t.Fatalf("expected second write applied, got %+v", row)
	}
}
