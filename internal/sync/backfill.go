package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/match"
	"horse.fit/rankpulse/internal/provider"
)

// BackfillOptions controls one backfill run.
type BackfillOptions struct {
	Range     provider.DateRange
	Overwrite bool
	DryRun    bool
}

// BackfillReport carries per-day reconcile counts for operator output.
type BackfillReport struct {
	Scope   string                     `json:"scope"`
	Range   string                     `json:"range"`
	DryRun  bool                       `json:"dry_run"`
	Days    map[string]ReconcileCounts `json:"days"`
	NoData  int                        `json:"no_data"`
	Errors  int                        `json:"errors"`
	Created int                        `json:"created"`
}

// SortedDays lists the report's day keys oldest first.
func (r *BackfillReport) SortedDays() []string {
	days := make([]string, 0, len(r.Days))
	for day := range r.Days {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// Backfill re-imports day-granularity positions for every active keyword
// across an explicit date range. Dry runs report what would change
// without writing.
func (s *Service) Backfill(ctx context.Context, scope db.Scope, opts BackfillOptions) (*BackfillReport, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}

	adapters := s.providers.Available()
	if len(adapters) == 0 {
		return nil, ErrNoProviders
	}

	if !opts.DryRun {
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
	}

	active, err := s.loadActiveKeywords(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{
		Scope:  scope.String(),
		Range:  opts.Range.String(),
		DryRun: opts.DryRun,
		Days:   make(map[string]ReconcileCounts),
	}

	for _, adapter := range adapters {
		daily, err := adapter.FetchDailyQueries(ctx, opts.Range)
		if err != nil {
			return nil, fmt.Errorf("%s: fetch daily queries: %w", adapter.Name(), err)
		}
		s.backfillProvider(ctx, adapter.Name(), daily, opts, active, report)
	}

	report.Created = s.sumCreated(report)
	return report, nil
}

func (s *Service) backfillProvider(
	ctx context.Context,
	source string,
	daily map[string]map[string]provider.QueryMetrics,
	opts BackfillOptions,
	active []*keywordState,
	report *BackfillReport,
) {
	for dayKey, queries := range daily {
		day, err := time.Parse(provider.DayFormat, dayKey)
		if err != nil {
			report.Errors++
			s.logger.Error().Str("day", dayKey).Str("provider", source).
				Msg("malformed day key in daily queries")
			continue
		}

		counts := report.Days[dayKey]
		for _, state := range active {
			result, found := match.Best(state.text, queries)
			if !found {
				report.NoData++
				continue
			}

			params := ReconcileParams{
				KeywordID:   state.id,
				Day:         day,
				Source:      source,
				Position:    result.Metrics.Position,
				Clicks:      result.Metrics.Clicks,
				Impressions: result.Metrics.Impressions,
			}

			var outcome Outcome
			if opts.DryRun {
				outcome, err = s.dryRunOutcome(ctx, params, opts.Overwrite)
			} else {
				outcome, err = ReconcilePosition(ctx, s.store, params, opts.Overwrite)
			}
			if err != nil {
				report.Errors++
				s.logger.Error().Err(err).Int64("keyword_id", state.id).Str("day", dayKey).
					Msg("backfill reconcile failed")
				continue
			}
			counts.add(outcome)
		}
		report.Days[dayKey] = counts
	}
}

// dryRunOutcome predicts the reconcile outcome without mutating storage.
func (s *Service) dryRunOutcome(ctx context.Context, params ReconcileParams, overwrite bool) (Outcome, error) {
	_, err := s.store.GetPosition(ctx, params.KeywordID, params.Day, params.Source)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return OutcomeCreated, nil
		}
		return "", fmt.Errorf("lookup position: %w", err)
	}
	if overwrite {
		return OutcomeOverwritten, nil
	}
	return OutcomeSkipped, nil
}

func (s *Service) loadActiveKeywords(ctx context.Context, scope db.Scope) ([]*keywordState, error) {
	states, err := s.loadKeywordStates(ctx, scope)
	if err != nil {
		return nil, err
	}
	active := make([]*keywordState, 0, len(states))
	for _, state := range states {
		if state.active {
			active = append(active, state)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].id < active[j].id })
	return active, nil
}

func (s *Service) sumCreated(report *BackfillReport) int {
	created := 0
	for _, counts := range report.Days {
		created += counts.Created
	}
	return created
}
