package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/db"
)

func newTestMerger(store Store, policy Policy) *Merger {
	return NewMerger(store, zerolog.Nop(), policy)
}

func ts(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestMergeAccentDuplicatesConservesMetrics(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	accented := store.addKeyword("café lyon", ts("2025-06-01T10:00:00Z"))
	plain := store.addKeyword("cafe lyon", ts("2025-09-01T10:00:00Z"))

	overlapping := store.addPosition(accented.KeywordID, "2026-01-10", "google", 3.5, 3, 40)
	store.addPosition(plain.KeywordID, "2026-01-10", "google", 5.0, 2, 15)
	moved := store.addPosition(plain.KeywordID, "2026-01-11", "google", 6.0, 1, 5)

	merger := newTestMerger(store, Policy{PreferAccented: true})
	report, err := merger.MergeDuplicates(context.Background(), db.GlobalScope(), false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if report.Groups != 1 || report.MergedKeywords != 1 {
		t.Fatalf("expected one merged group, got %+v", report)
	}
	if report.SummedRows != 1 || report.MovedRows != 1 || report.DeletedPositions != 1 {
		t.Fatalf("unexpected row accounting: %+v", report)
	}
	if len(report.Plans) != 1 || report.Plans[0].SurvivorID != accented.KeywordID {
		t.Fatalf("expected accented survivor, got %+v", report.Plans)
	}

	if _, err := store.GetKeyword(context.Background(), plain.KeywordID); err == nil {
		t.Fatal("expected plain duplicate deleted")
	}

	rows, err := store.ListPositionsForKeyword(context.Background(), accented.KeywordID)
	if err != nil {
		t.Fatalf("list survivor positions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two survivor rows, got %d", len(rows))
	}
	for _, row := range rows {
		switch row.PositionID {
		case overlapping.PositionID:
			if row.Clicks != 5 || row.Impressions != 55 {
				t.Fatalf("expected summed metrics 5/55, got %d/%d", row.Clicks, row.Impressions)
			}
			if row.Position != 3.5 {
				t.Fatalf("expected survivor position retained, got %v", row.Position)
			}
		case moved.PositionID:
			if row.Clicks != 1 || row.Impressions != 5 {
				t.Fatalf("expected moved row untouched, got %d/%d", row.Clicks, row.Impressions)
			}
		default:
			t.Fatalf("unexpected row %d on survivor", row.PositionID)
		}
	}
}

func TestMergeOldestSurvivesWithoutAccentPreference(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	oldest := store.addKeyword("cafe lyon", ts("2025-06-01T10:00:00Z"))
	store.addKeyword("café lyon", ts("2025-09-01T10:00:00Z"))

	merger := newTestMerger(store, Policy{PreferAccented: false})
	report, err := merger.MergeDuplicates(context.Background(), db.GlobalScope(), false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(report.Plans) != 1 || report.Plans[0].SurvivorID != oldest.KeywordID {
		t.Fatalf("expected oldest survivor, got %+v", report.Plans)
	}
}

func TestMergeDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addKeyword("café lyon", ts("2025-06-01T10:00:00Z"))
	plain := store.addKeyword("cafe lyon", ts("2025-09-01T10:00:00Z"))
	store.addPosition(plain.KeywordID, "2026-01-11", "google", 6.0, 1, 5)

	merger := newTestMerger(store, Policy{PreferAccented: true})
	report, err := merger.MergeDuplicates(context.Background(), db.GlobalScope(), true)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if !report.DryRun || report.MergedKeywords != 1 || report.MovedRows != 1 {
		t.Fatalf("unexpected dry-run report: %+v", report)
	}
	if len(store.keywords) != 2 {
		t.Fatalf("dry run deleted keywords: %d left", len(store.keywords))
	}
	if store.locks[db.GlobalScope().String()] {
		t.Fatal("dry run should not hold the scope lock")
	}
	row, err := store.ListPositionsForKeyword(context.Background(), plain.KeywordID)
	if err != nil || len(row) != 1 {
		t.Fatalf("dry run moved rows: %v %d", err, len(row))
	}
}

func TestMergeReleasesScopeLock(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addKeyword("café lyon", ts("2025-06-01T10:00:00Z"))
	store.addKeyword("cafe lyon", ts("2025-09-01T10:00:00Z"))

	merger := newTestMerger(store, Policy{PreferAccented: true})
	if _, err := merger.MergeDuplicates(context.Background(), db.GlobalScope(), false); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if store.locks[db.GlobalScope().String()] {
		t.Fatal("scope lock leaked")
	}
}

func TestDedupPositionsKeepsNewest(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	kw := store.addKeyword("plombier lyon", ts("2025-06-01T10:00:00Z"))
	older := store.addPosition(kw.KeywordID, "2026-01-10", "google", 4.0, 2, 20)
	newest := store.addPosition(kw.KeywordID, "2026-01-10", "google", 3.0, 5, 50)
	// A second source on the same day is valid multi-source data.
	crossSource := store.addPosition(kw.KeywordID, "2026-01-11", "google", 4.0, 1, 10)
	store.addPosition(kw.KeywordID, "2026-01-11", "bing", 7.0, 1, 10)

	merger := newTestMerger(store, Policy{})
	report, err := merger.DedupPositions(context.Background(), db.GlobalScope(), false)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}

	if report.Groups != 1 || report.DeletedRows != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, ok := store.positions[older.PositionID]; ok {
		t.Fatal("expected older duplicate deleted")
	}
	if _, ok := store.positions[newest.PositionID]; !ok {
		t.Fatal("expected newest row kept")
	}
	if _, ok := store.positions[crossSource.PositionID]; !ok {
		t.Fatal("cross-source rows must not be touched")
	}
}

func TestDedupPositionsDryRun(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	kw := store.addKeyword("plombier lyon", ts("2025-06-01T10:00:00Z"))
	store.addPosition(kw.KeywordID, "2026-01-10", "google", 4.0, 2, 20)
	store.addPosition(kw.KeywordID, "2026-01-10", "google", 3.0, 5, 50)

	merger := newTestMerger(store, Policy{})
	report, err := merger.DedupPositions(context.Background(), db.GlobalScope(), true)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if report.DeletedRows != 1 {
		t.Fatalf("expected one planned delete, got %+v", report)
	}
	if len(store.positions) != 2 {
		t.Fatalf("dry run deleted rows: %d left", len(store.positions))
	}
}
