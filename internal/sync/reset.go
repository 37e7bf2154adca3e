package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/match"
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/textnorm"
)

// ResetOptions controls a full reset.
type ResetOptions struct {
	// Confirm must be set; a reset deletes every keyword and position
	// row in the scope before re-importing.
	Confirm bool
	// LookbackDays bounds the re-import window. Providers retain about
	// 16 months, so the default stays just under that.
	LookbackDays int
}

// ResetReport summarizes a full reset for operator review.
type ResetReport struct {
	Scope            string          `json:"scope"`
	Range            string          `json:"range"`
	DeletedKeywords  int64           `json:"deleted_keywords"`
	DeletedPositions int64           `json:"deleted_positions"`
	DeletedTotals    int64           `json:"deleted_totals"`
	CreatedKeywords  int             `json:"created_keywords"`
	Positions        ReconcileCounts `json:"positions"`
	TotalDays        int             `json:"total_days"`
	Errors           int             `json:"errors"`
	// Verification holds the most recent 7 days of recomputed totals
	// so the operator can sanity-check the rebuild.
	Verification []db.DailyTotal `json:"verification"`
}

const defaultResetLookbackDays = 480

// FullReset deletes all keyword, position, and daily-total rows in the
// scope and rebuilds them from provider data. Discovery over the long
// aggregated window recreates keywords (aggregated data escapes per-day
// anonymization better); per-day data rebuilds position history.
func (s *Service) FullReset(ctx context.Context, scope db.Scope, opts ResetOptions) (*ResetReport, error) {
	if !opts.Confirm {
		return nil, ErrConfirmationRequired
	}

	adapters := s.providers.Available()
	if len(adapters) == 0 {
		return nil, ErrNoProviders
	}

	acquired, err := s.store.TryAcquireScopeLock(ctx, scope)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrScopeBusy, scope)
	}
	defer func() {
		if err := s.store.ReleaseScopeLock(ctx, scope); err != nil {
			s.logger.Warn().Err(err).Str("scope", scope.String()).Msg("release scope lock failed")
		}
	}()

	now := s.opts.Now().UTC()
	syncLogID, logErr := s.store.StartSyncLog(ctx, "reset", scope, now)
	if logErr != nil {
		s.logger.Warn().Err(logErr).Str("scope", scope.String()).Msg("start sync log failed")
	}

	lookbackDays := opts.LookbackDays
	if lookbackDays < 1 {
		lookbackDays = defaultResetLookbackDays
	}
	dr := provider.LookbackRange(now, lookbackDays)

	report := &ResetReport{Scope: scope.String(), Range: dr.String()}

	report.DeletedPositions, err = s.store.DeletePositionsInScope(ctx, scope)
	if err != nil {
		s.finishResetLog(ctx, syncLogID, report, err)
		return nil, err
	}
	report.DeletedKeywords, err = s.store.DeleteKeywordsInScope(ctx, scope)
	if err != nil {
		s.finishResetLog(ctx, syncLogID, report, err)
		return nil, err
	}
	report.DeletedTotals, err = s.store.DeleteDailyTotalsInScope(ctx, scope)
	if err != nil {
		s.finishResetLog(ctx, syncLogID, report, err)
		return nil, err
	}

	// Keyword identities are resolved through this map so position rows
	// never need a per-keyword lookup round trip.
	keywords := make(map[string]*keywordState)

	for _, adapter := range adapters {
		if err := s.rebuildFromProvider(ctx, scope, adapter, dr, now, keywords, report); err != nil {
			s.finishResetLog(ctx, syncLogID, report, err)
			return nil, err
		}
	}

	weekAgo := provider.DayOf(now).AddDate(0, 0, -7)
	report.Verification, err = s.store.ListRecentDailyTotals(ctx, scope, weekAgo)
	if err != nil {
		s.logger.Warn().Err(err).Str("scope", scope.String()).Msg("verification query failed")
	}

	s.finishResetLog(ctx, syncLogID, report, nil)
	return report, nil
}

func (s *Service) rebuildFromProvider(
	ctx context.Context,
	scope db.Scope,
	adapter provider.Adapter,
	dr provider.DateRange,
	now time.Time,
	keywords map[string]*keywordState,
	report *ResetReport,
) error {
	source := adapter.Name()

	aggregated, err := adapter.FetchAggregatedQueries(ctx, dr)
	if err != nil {
		return fmt.Errorf("%s: fetch aggregated queries: %w", source, err)
	}

	for query, metrics := range aggregated {
		normalized := textnorm.Normalize(query)
		if normalized == "" {
			continue
		}
		if state, tracked := keywords[normalized]; tracked {
			state.lastSeen[source] = now
			continue
		}
		if metrics.Impressions < s.opts.MinImpressions {
			continue
		}

		relevance, score := GuessRelevance(query, s.opts.HighTerms, s.opts.LowTerms)
		keywordID, err := s.store.InsertKeyword(ctx, db.InsertKeywordParams{
			Scope:          scope,
			Text:           query,
			NormalizedText: normalized,
			Source:         db.KeywordSourceDiscovered,
			Relevance:      relevance,
			RelevanceScore: score,
			SeenSource:     source,
			SeenAt:         now,
		})
		if err != nil {
			report.Errors++
			s.logger.Error().Err(err).Str("query", query).Msg("reset keyword create failed")
			continue
		}
		keywords[normalized] = &keywordState{
			id:         keywordID,
			text:       query,
			normalized: normalized,
			active:     true,
			createdAt:  now,
			lastSeen:   map[string]time.Time{source: now},
		}
		report.CreatedKeywords++
	}

	daily, err := adapter.FetchDailyQueries(ctx, dr)
	if err != nil {
		return fmt.Errorf("%s: fetch daily queries: %w", source, err)
	}

	for dayKey, queries := range daily {
		day, err := time.Parse(provider.DayFormat, dayKey)
		if err != nil {
			report.Errors++
			continue
		}
		for _, state := range keywords {
			result, found := match.Best(state.text, queries)
			if !found {
				continue
			}
			outcome, err := ReconcilePosition(ctx, s.store, ReconcileParams{
				KeywordID:   state.id,
				Day:         day,
				Source:      source,
				Position:    result.Metrics.Position,
				Clicks:      result.Metrics.Clicks,
				Impressions: result.Metrics.Impressions,
			}, true)
			if err != nil {
				report.Errors++
				continue
			}
			report.Positions.add(outcome)
		}
	}

	totals, err := adapter.FetchSiteDailyTotals(ctx, dr)
	if err != nil {
		return fmt.Errorf("%s: fetch daily totals: %w", source, err)
	}
	for dayKey, total := range totals {
		day, err := time.Parse(provider.DayFormat, dayKey)
		if err != nil {
			report.Errors++
			continue
		}
		if err := s.store.UpsertDailyTotal(ctx, db.UpsertDailyTotalParams{
			Scope:       scope,
			Day:         day,
			Source:      source,
			Clicks:      total.Clicks,
			Impressions: total.Impressions,
			Position:    total.Position,
		}); err != nil {
			report.Errors++
			continue
		}
		report.TotalDays++
	}

	return nil
}

func (s *Service) finishResetLog(ctx context.Context, syncLogID int64, report *ResetReport, runErr error) {
	if syncLogID == 0 {
		return
	}

	status := db.SyncStatusSuccess
	var errorMessage *string
	if runErr != nil {
		status = db.SyncStatusError
		msg := runErr.Error()
		errorMessage = &msg
	} else if report.Errors > 0 {
		status = db.SyncStatusError
	}

	detail, err := json.Marshal(report)
	if err != nil {
		detail = nil
	}
	if err := s.store.FinishSyncLog(ctx, syncLogID, status, s.opts.Now().UTC(), detail, errorMessage); err != nil {
		s.logger.Warn().Err(err).Int64("sync_log_id", syncLogID).Msg("finish sync log failed")
	}
}
