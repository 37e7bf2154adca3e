package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/provider"
)

func fixedClock(value string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func newTestService(store Store, adapters ...provider.Adapter) *Service {
	registry := provider.NewRegistry()
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			panic(err)
		}
	}
	return NewService(store, registry, zerolog.Nop(), Options{
		MinImpressions: 10,
		GraceDays:      30,
		LookbackDays:   28,
		HighTerms:      []string{"plombier"},
		LowTerms:       []string{"gratuit"},
		Now:            fixedClock("2026-03-02T09:00:00Z"),
	})
}

func TestRunDiscoveryThresholdAndIdempotency(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	adapter := &stubAdapter{
		name: "google",
		aggregated: map[string]provider.QueryMetrics{
			"plombier lyon":       {Position: 3.0, Clicks: 5, Impressions: 50},
			"devis gratuit lyon":  {Position: 9.0, Clicks: 1, Impressions: 40},
			"recherche marginale": {Position: 40.0, Clicks: 0, Impressions: 3},
		},
	}
	svc := newTestService(store, adapter)

	summary, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Discovered != 2 {
		t.Fatalf("expected 2 discovered keywords, got %d", summary.Discovered)
	}
	if len(store.keywords) != 2 {
		t.Fatalf("expected 2 keyword rows, got %d", len(store.keywords))
	}

	var high, low int
	for _, kw := range store.keywords {
		if kw.Source != db.KeywordSourceDiscovered {
			t.Fatalf("expected discovered source, got %q", kw.Source)
		}
		switch kw.Relevance {
		case db.RelevanceHigh:
			high++
		case db.RelevanceLow:
			low++
		}
	}
	if high != 1 || low != 1 {
		t.Fatalf("expected one high and one low relevance guess, got high=%d low=%d", high, low)
	}

	// A second discovery over the same period finds everything tracked.
	summary, err = svc.Run(context.Background(), db.GlobalScope(), RunOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Discovered != 0 {
		t.Fatalf("expected idempotent discovery, got %d new keywords", summary.Discovered)
	}
	if len(store.keywords) != 2 {
		t.Fatalf("expected keyword count unchanged, got %d", len(store.keywords))
	}
}

func TestRunReactivationRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	deactivated := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	kw := store.addKeyword(db.Keyword{
		Text:           "café lyon",
		NormalizedText: "cafe lyon",
		Active:         false,
		Source:         db.KeywordSourceManual,
		Relevance:      db.RelevanceMedium,
		CreatedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DeactivatedAt:  &deactivated,
	})
	historical := store.addPosition(db.Position{
		KeywordID: kw.KeywordID,
		Day:       day("2025-12-01"),
		Source:    "google",
		Position:  5.0,
		Clicks:    3,
	})

	adapter := &stubAdapter{
		name: "google",
		aggregated: map[string]provider.QueryMetrics{
			"Cafe Lyon": {Position: 4.0, Clicks: 8, Impressions: 90},
		},
	}
	svc := newTestService(store, adapter)

	summary, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Reactivated != 1 {
		t.Fatalf("expected 1 reactivated keyword, got %d", summary.Reactivated)
	}

	stored := store.keywords[kw.KeywordID]
	if !stored.Active || stored.DeactivatedAt != nil {
		t.Fatalf("expected active keyword with cleared deactivated_at, got %+v", stored)
	}
	if summary.Synced != 1 {
		t.Fatalf("expected reactivated keyword to sync this run, got %d", summary.Synced)
	}

	untouched := store.positions[historical.PositionID]
	if untouched.Position != 5.0 || untouched.Clicks != 3 {
		t.Fatalf("expected historical position untouched, got %+v", untouched)
	}
}

func TestRunCleanupRespectsGraceWindow(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	staleSeen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stale := store.addKeyword(db.Keyword{
		Text:             "ancien service",
		NormalizedText:   "ancien service",
		Active:           true,
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastSeenGoogleAt: &staleSeen,
	})
	freshSeen := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	fresh := store.addKeyword(db.Keyword{
		Text:             "service recent",
		NormalizedText:   "service recent",
		Active:           true,
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastSeenGoogleAt: &freshSeen,
	})

	adapter := &stubAdapter{name: "google", aggregated: map[string]provider.QueryMetrics{}}
	svc := newTestService(store, adapter)

	summary, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{SkipDiscovery: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Deactivated != 1 {
		t.Fatalf("expected 1 deactivation, got %d", summary.Deactivated)
	}

	if store.keywords[stale.KeywordID].Active {
		t.Fatal("expected stale keyword deactivated")
	}
	if store.keywords[stale.KeywordID].DeactivatedAt == nil {
		t.Fatal("expected deactivated_at set on stale keyword")
	}
	if !store.keywords[fresh.KeywordID].Active {
		t.Fatal("expected fresh keyword still active inside grace window")
	}
}

func TestRunProviderOutageSkipsCleanup(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	staleSeen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stale := store.addKeyword(db.Keyword{
		Text:             "ancien service",
		NormalizedText:   "ancien service",
		Active:           true,
		CreatedAt:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		LastSeenGoogleAt: &staleSeen,
	})

	// Well past the grace window, but no provider report arrived.
	adapter := &stubAdapter{name: "google", aggregatedErr: fmt.Errorf("quota exceeded")}
	svc := newTestService(store, adapter)

	summary, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(summary.ProviderErrors) != 1 {
		t.Fatalf("expected 1 provider error, got %v", summary.ProviderErrors)
	}
	if summary.Deactivated != 0 {
		t.Fatalf("expected no deactivations during an outage, got %d", summary.Deactivated)
	}
	if !store.keywords[stale.KeywordID].Active {
		t.Fatal("expected stale keyword to stay active when no report arrived")
	}
}

func TestRunProviderFailureIsReportedNotFatal(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	broken := &stubAdapter{name: "google", aggregatedErr: fmt.Errorf("boom")}
	working := &stubAdapter{
		name: "bing",
		aggregated: map[string]provider.QueryMetrics{
			"plombier lyon": {Position: 6.0, Clicks: 2, Impressions: 25},
		},
		totals: map[string]provider.SiteTotals{
			"2026-03-01": {Clicks: 40, Impressions: 900, Position: 11.2},
		},
	}
	svc := newTestService(store, broken, working)

	summary, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{})
	if err != nil {
		t.Fatalf("expected run to continue past provider failure, got %v", err)
	}
	if len(summary.ProviderErrors) != 1 {
		t.Fatalf("expected 1 provider error, got %v", summary.ProviderErrors)
	}
	if !summary.Failed() {
		t.Fatal("expected provider error to surface as overall failure")
	}
	if summary.Discovered != 1 || summary.TotalDays != 1 {
		t.Fatalf("expected working provider to complete its phases, got %+v", summary)
	}

	entry := store.syncLogs[1]
	if entry == nil || entry.Status != db.SyncStatusError || entry.FinishedAt == nil {
		t.Fatalf("expected finished error sync log, got %+v", entry)
	}
}

func TestRunStoresSingleDayPositionSample(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	kw := store.addKeyword(db.Keyword{
		Text:           "plombier lyon",
		NormalizedText: "plombier lyon",
		Active:         true,
		CreatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	adapter := &stubAdapter{
		name: "google",
		aggregated: map[string]provider.QueryMetrics{
			"plombier lyon": {Position: 8.0, Clicks: 700, Impressions: 10000},
		},
		dayAggregated: map[string]provider.QueryMetrics{
			"plombier lyon": {Position: 3.0, Clicks: 12, Impressions: 150},
		},
	}
	svc := newTestService(store, adapter)

	if _, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The stored row carries the last day's metrics, not the
	// lookback-wide average.
	pos, err := store.GetPosition(context.Background(), kw.KeywordID, day("2026-03-01"), "google")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if pos.Position != 3.0 || pos.Clicks != 12 || pos.Impressions != 150 {
		t.Fatalf("expected the single-day sample stored, got %+v", pos)
	}
}

func TestRunScopeLockBlocksConcurrentRun(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.locks[db.GlobalScope().String()] = true

	adapter := &stubAdapter{name: "google", aggregated: map[string]provider.QueryMetrics{}}
	svc := newTestService(store, adapter)

	if _, err := svc.Run(context.Background(), db.GlobalScope(), RunOptions{}); err == nil {
		t.Fatal("expected busy-scope error")
	}
}

func TestFullResetRequiresConfirmation(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addKeyword(db.Keyword{Text: "garde", NormalizedText: "garde", Active: true})

	adapter := &stubAdapter{name: "google"}
	svc := newTestService(store, adapter)

	if _, err := svc.FullReset(context.Background(), db.GlobalScope(), ResetOptions{}); err != ErrConfirmationRequired {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if len(store.keywords) != 1 {
		t.Fatal("expected no mutation without confirmation")
	}
}

func TestFullResetRebuildsScope(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	old := store.addKeyword(db.Keyword{Text: "vieux mot", NormalizedText: "vieux mot", Active: true})
	store.addPosition(db.Position{KeywordID: old.KeywordID, Day: day("2025-11-01"), Source: "google"})

	adapter := &stubAdapter{
		name: "google",
		aggregated: map[string]provider.QueryMetrics{
			"plombier lyon": {Position: 3.0, Clicks: 100, Impressions: 2000},
		},
		daily: map[string]map[string]provider.QueryMetrics{
			"2026-02-27": {"plombier lyon": {Position: 3.5, Clicks: 4, Impressions: 80}},
			"2026-02-28": {"plombier lyon": {Position: 2.9, Clicks: 6, Impressions: 95}},
		},
		totals: map[string]provider.SiteTotals{
			"2026-02-28": {Clicks: 50, Impressions: 1200, Position: 9.8},
		},
	}
	svc := newTestService(store, adapter)

	report, err := svc.FullReset(context.Background(), db.GlobalScope(), ResetOptions{Confirm: true})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if report.DeletedKeywords != 1 || report.DeletedPositions != 1 {
		t.Fatalf("unexpected delete counts: %+v", report)
	}
	if report.CreatedKeywords != 1 {
		t.Fatalf("expected 1 recreated keyword, got %d", report.CreatedKeywords)
	}
	if report.Positions.Created != 2 {
		t.Fatalf("expected 2 recreated positions, got %+v", report.Positions)
	}
	if len(report.Verification) != 1 {
		t.Fatalf("expected verification totals for the last week, got %d rows", len(report.Verification))
	}
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	kw := store.addKeyword(db.Keyword{Text: "plombier lyon", NormalizedText: "plombier lyon", Active: true})
	store.addPosition(db.Position{
		KeywordID: kw.KeywordID, Day: day("2026-02-27"), Source: "google", Position: 5.0, Clicks: 1,
	})

	adapter := &stubAdapter{
		name: "google",
		daily: map[string]map[string]provider.QueryMetrics{
			"2026-02-27": {"plombier lyon": {Position: 3.5, Clicks: 4, Impressions: 80}},
			"2026-02-28": {"plombier lyon": {Position: 2.9, Clicks: 6, Impressions: 95}},
		},
	}
	svc := newTestService(store, adapter)

	dr, err := provider.ParseDateRange("2026-02-27", "2026-02-28")
	if err != nil {
		t.Fatalf("range: %v", err)
	}

	report, err := svc.Backfill(context.Background(), db.GlobalScope(), BackfillOptions{
		Range:     dr,
		Overwrite: true,
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if got := report.Days["2026-02-27"]; got.Overwritten != 1 {
		t.Fatalf("expected existing day reported as overwrite, got %+v", got)
	}
	if got := report.Days["2026-02-28"]; got.Created != 1 {
		t.Fatalf("expected missing day reported as create, got %+v", got)
	}
	if store.positionCount() != 1 {
		t.Fatalf("expected dry run to write nothing, got %d rows", store.positionCount())
	}
	existing, err := store.GetPosition(context.Background(), kw.KeywordID, day("2026-02-27"), "google")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if existing.Position != 5.0 {
		t.Fatalf("expected dry run to leave metrics untouched, got %+v", existing)
	}
}

func TestBackfillWritesWithOverwrite(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.addKeyword(db.Keyword{Text: "plombier lyon", NormalizedText: "plombier lyon", Active: true})

	adapter := &stubAdapter{
		name: "google",
		daily: map[string]map[string]provider.QueryMetrics{
			"2026-02-27": {"plombier lyon": {Position: 3.5, Clicks: 4, Impressions: 80}},
		},
	}
	svc := newTestService(store, adapter)

	dr, err := provider.ParseDateRange("2026-02-27", "2026-02-27")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	report, err := svc.Backfill(context.Background(), db.GlobalScope(), BackfillOptions{Range: dr})
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if report.Created != 1 || store.positionCount() != 1 {
		t.Fatalf("expected one created row, got report=%+v rows=%d", report, store.positionCount())
	}
}

func TestGuessRelevanceDenyListWins(t *testing.T) {
	t.Parallel()

	tier, score := GuessRelevance("Plombier GRATUIT lyon", []string{"plombier"}, []string{"gratuit"})
	if tier != db.RelevanceLow || score != 1 {
		t.Fatalf("expected deny list to win, got %s/%d", tier, score)
	}
	tier, _ = GuessRelevance("Plombier Lyon", []string{"plombier"}, []string{"gratuit"})
	if tier != db.RelevanceHigh {
		t.Fatalf("expected high tier, got %s", tier)
	}
	tier, _ = GuessRelevance("autre chose", []string{"plombier"}, []string{"gratuit"})
	if tier != db.RelevanceMedium {
		t.Fatalf("expected medium tier, got %s", tier)
	}
}
