package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/match"
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/textnorm"
)

var (
	// ErrScopeBusy means another run holds the scope's advisory lock.
	ErrScopeBusy = errors.New("another run is active for this scope")
	// ErrNoProviders means no adapter has valid credentials for a run.
	ErrNoProviders = errors.New("no provider adapters are available")
	// ErrConfirmationRequired guards destructive operations.
	ErrConfirmationRequired = errors.New("destructive operation requires explicit confirmation")
)

// Store is the persistent-store surface the orchestrator consumes.
// *db.Pool implements it; tests inject an in-memory stub.
type Store interface {
	PositionStore

	ListKeywords(ctx context.Context, scope db.Scope) ([]db.Keyword, error)
	InsertKeyword(ctx context.Context, params db.InsertKeywordParams) (int64, error)
	ReactivateKeyword(ctx context.Context, keywordID int64, now time.Time) error
	DeactivateKeyword(ctx context.Context, keywordID int64, now time.Time) error
	TouchKeywordSynced(ctx context.Context, keywordID int64, source string, now time.Time) error
	TouchKeywordSeen(ctx context.Context, keywordID int64, source string, now time.Time) error

	UpsertDailyTotal(ctx context.Context, params db.UpsertDailyTotalParams) error
	ListRecentDailyTotals(ctx context.Context, scope db.Scope, sinceDay time.Time) ([]db.DailyTotal, error)

	DeleteKeywordsInScope(ctx context.Context, scope db.Scope) (int64, error)
	DeletePositionsInScope(ctx context.Context, scope db.Scope) (int64, error)
	DeleteDailyTotalsInScope(ctx context.Context, scope db.Scope) (int64, error)

	StartSyncLog(ctx context.Context, command string, scope db.Scope, startedAt time.Time) (int64, error)
	FinishSyncLog(ctx context.Context, syncLogID int64, status string, finishedAt time.Time, detail json.RawMessage, errorMessage *string) error

	TryAcquireScopeLock(ctx context.Context, scope db.Scope) (bool, error)
	ReleaseScopeLock(ctx context.Context, scope db.Scope) error
}

// Options tunes the orchestrator.
type Options struct {
	MinImpressions int64
	GraceDays      int
	LookbackDays   int
	HighTerms      []string
	LowTerms       []string

	// Now supplies the reference time; tests pin it.
	Now func() time.Time
}

// RunOptions controls one orchestrator run.
type RunOptions struct {
	SkipDiscovery bool
	SkipCleanup   bool
	Overwrite     bool
	LookbackDays  int // overrides Options.LookbackDays when > 0
}

// Service is the per-scope import orchestrator.
type Service struct {
	store     Store
	providers *provider.Registry
	logger    zerolog.Logger
	opts      Options
}

func NewService(store Store, providers *provider.Registry, logger zerolog.Logger, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LookbackDays < 1 {
		opts.LookbackDays = 28
	}
	if opts.GraceDays < 1 {
		opts.GraceDays = 30
	}
	return &Service{
		store:     store,
		providers: providers,
		logger:    logger,
		opts:      opts,
	}
}

// keywordState mirrors one keyword row during a run so discovery and
// cleanup can resolve identity without a round trip per keyword.
type keywordState struct {
	id         int64
	text       string
	normalized string
	active     bool
	createdAt  time.Time
	lastSeen   map[string]time.Time
}

// Run executes one import cycle for the scope: discovery, reactivation,
// position sync, daily totals, cleanup. Per-keyword failures are counted,
// not propagated, so one bad payload never aborts a multi-site batch.
func (s *Service) Run(ctx context.Context, scope db.Scope, runOpts RunOptions) (*RunSummary, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("sync service is not initialized")
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
	summary := &RunSummary{Scope: scope.String(), StartedAt: now}

	syncLogID, logErr := s.store.StartSyncLog(ctx, "sync", scope, now)
	if logErr != nil {
		s.logger.Warn().Err(logErr).Str("scope", scope.String()).Msg("start sync log failed")
	}

	lookbackDays := s.opts.LookbackDays
	if runOpts.LookbackDays > 0 {
		lookbackDays = runOpts.LookbackDays
	}
	dr := provider.LookbackRange(now, lookbackDays)

	keywords, err := s.loadKeywordStates(ctx, scope)
	if err != nil {
		s.finishSyncLog(ctx, syncLogID, summary, err)
		return nil, err
	}

	unionQueries := make(map[string]struct{})
	reported := false
	for _, adapter := range adapters {
		if s.runProviderPhases(ctx, scope, adapter, dr, now, runOpts, keywords, unionQueries, summary) {
			reported = true
		}
	}

	// Absence from the query map is only evidence when at least one
	// report arrived. A full provider outage must not age keywords
	// toward deactivation.
	if !runOpts.SkipCleanup && reported {
		s.cleanup(ctx, now, keywords, unionQueries, summary)
	}

	summary.FinishedAt = s.opts.Now().UTC()
	s.finishSyncLog(ctx, syncLogID, summary, nil)

	s.logger.Info().
		Str("scope", scope.String()).
		Int("discovered", summary.Discovered).
		Int("reactivated", summary.Reactivated).
		Int("synced", summary.Synced).
		Int("no_data", summary.NoData).
		Int("errors", summary.Errors).
		Int("deactivated", summary.Deactivated).
		Msg("sync run finished")

	return summary, nil
}

func (s *Service) loadKeywordStates(ctx context.Context, scope db.Scope) (map[string]*keywordState, error) {
	rows, err := s.store.ListKeywords(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load keywords for %s: %w", scope, err)
	}

	keywords := make(map[string]*keywordState, len(rows))
	for _, row := range rows {
		state := &keywordState{
			id:         row.KeywordID,
			text:       row.Text,
			normalized: row.NormalizedText,
			active:     row.Active,
			createdAt:  row.CreatedAt,
			lastSeen:   make(map[string]time.Time, 2),
		}
		if row.LastSeenGoogleAt != nil {
			state.lastSeen["google"] = *row.LastSeenGoogleAt
		}
		if row.LastSeenBingAt != nil {
			state.lastSeen["bing"] = *row.LastSeenBingAt
		}
		keywords[state.normalized] = state
	}
	return keywords, nil
}

// runProviderPhases executes discovery, reactivation, position sync, and
// daily totals against one adapter. Provider failure aborts only the
// remaining phases for that adapter. Returns whether the adapter's
// aggregated report arrived; cleanup needs at least one.
func (s *Service) runProviderPhases(
	ctx context.Context,
	scope db.Scope,
	adapter provider.Adapter,
	dr provider.DateRange,
	now time.Time,
	runOpts RunOptions,
	keywords map[string]*keywordState,
	unionQueries map[string]struct{},
	summary *RunSummary,
) bool {
	source := adapter.Name()

	aggregated, err := adapter.FetchAggregatedQueries(ctx, dr)
	if err != nil {
		summary.ProviderErrors = append(summary.ProviderErrors,
			fmt.Sprintf("%s: fetch aggregated queries: %v", source, err))
		s.logger.Error().Err(err).Str("provider", source).Str("scope", scope.String()).
			Msg("aggregated query fetch failed")
		return false
	}

	normalizedQueries := make(map[string]struct{}, len(aggregated))
	for query := range aggregated {
		normalized := textnorm.Normalize(query)
		normalizedQueries[normalized] = struct{}{}
		unionQueries[normalized] = struct{}{}
	}

	if !runOpts.SkipDiscovery {
		s.discover(ctx, scope, source, aggregated, now, keywords, summary)
	}

	s.reactivate(ctx, source, normalizedQueries, now, keywords, summary)

	// Position rows are single-day samples, so metrics come from a
	// one-day fetch; the lookback-wide aggregate above serves discovery
	// and cleanup only.
	dayRange := provider.DateRange{Start: dr.End, End: dr.End}
	dayQueries, err := adapter.FetchAggregatedQueries(ctx, dayRange)
	if err != nil {
		summary.ProviderErrors = append(summary.ProviderErrors,
			fmt.Sprintf("%s: fetch day queries: %v", source, err))
		s.logger.Error().Err(err).Str("provider", source).Str("scope", scope.String()).
			Msg("day query fetch failed")
	} else {
		s.syncPositions(ctx, source, dayQueries, dr.End, now, runOpts.Overwrite, keywords, summary)
	}

	if err := s.syncDailyTotals(ctx, scope, adapter, dr, summary); err != nil {
		summary.ProviderErrors = append(summary.ProviderErrors,
			fmt.Sprintf("%s: fetch daily totals: %v", source, err))
		s.logger.Error().Err(err).Str("provider", source).Str("scope", scope.String()).
			Msg("daily totals fetch failed")
	}

	return true
}

// discover creates keywords for queries above the impressions threshold
// that nobody tracks yet. Tracked matches only get a seen stamp, which
// makes discovery idempotent across repeated runs.
func (s *Service) discover(
	ctx context.Context,
	scope db.Scope,
	source string,
	aggregated map[string]provider.QueryMetrics,
	now time.Time,
	keywords map[string]*keywordState,
	summary *RunSummary,
) {
	for query, metrics := range aggregated {
		normalized := textnorm.Normalize(query)
		if normalized == "" {
			continue
		}

		if state, tracked := keywords[normalized]; tracked {
			if err := s.store.TouchKeywordSeen(ctx, state.id, source, now); err != nil {
				s.logger.Warn().Err(err).Int64("keyword_id", state.id).Msg("seen stamp failed")
			} else {
				state.lastSeen[source] = now
			}
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
			summary.Errors++
			s.logger.Error().Err(err).Str("query", query).Msg("keyword discovery failed")
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
		summary.Discovered++
	}
}

// reactivate flips inactive keywords that reappeared in the incoming
// query report, before position sync so their metrics land this run too.
func (s *Service) reactivate(
	ctx context.Context,
	source string,
	normalizedQueries map[string]struct{},
	now time.Time,
	keywords map[string]*keywordState,
	summary *RunSummary,
) {
	for normalized, state := range keywords {
		if state.active {
			continue
		}
		if _, present := normalizedQueries[normalized]; !present {
			continue
		}
		if err := s.store.ReactivateKeyword(ctx, state.id, now); err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Int64("keyword_id", state.id).Msg("reactivation failed")
			continue
		}
		if err := s.store.TouchKeywordSeen(ctx, state.id, source, now); err != nil {
			s.logger.Warn().Err(err).Int64("keyword_id", state.id).Msg("seen stamp failed")
		}
		state.active = true
		state.lastSeen[source] = now
		summary.Reactivated++
	}
}

func (s *Service) syncPositions(
	ctx context.Context,
	source string,
	aggregated map[string]provider.QueryMetrics,
	day time.Time,
	now time.Time,
	overwrite bool,
	keywords map[string]*keywordState,
	summary *RunSummary,
) {
	for _, state := range keywords {
		if !state.active {
			continue
		}

		result, found := match.Best(state.text, aggregated)
		if !found {
			summary.NoData++
			continue
		}

		outcome, err := ReconcilePosition(ctx, s.store, ReconcileParams{
			KeywordID:   state.id,
			Day:         day,
			Source:      source,
			Position:    result.Metrics.Position,
			Clicks:      result.Metrics.Clicks,
			Impressions: result.Metrics.Impressions,
		}, overwrite)
		if err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Int64("keyword_id", state.id).Str("provider", source).
				Msg("position reconcile failed")
			continue
		}
		summary.Positions.add(outcome)
		summary.Synced++

		if err := s.store.TouchKeywordSynced(ctx, state.id, source, now); err != nil {
			s.logger.Warn().Err(err).Int64("keyword_id", state.id).Msg("sync stamp failed")
		} else {
			state.lastSeen[source] = now
		}
	}
}

func (s *Service) syncDailyTotals(
	ctx context.Context,
	scope db.Scope,
	adapter provider.Adapter,
	dr provider.DateRange,
	summary *RunSummary,
) error {
	totals, err := adapter.FetchSiteDailyTotals(ctx, dr)
	if err != nil {
		return err
	}

	for dayKey, total := range totals {
		day, err := time.Parse(provider.DayFormat, dayKey)
		if err != nil {
			summary.Errors++
			s.logger.Error().Str("day", dayKey).Str("provider", adapter.Name()).
				Msg("malformed day key in daily totals")
			continue
		}
		if err := s.store.UpsertDailyTotal(ctx, db.UpsertDailyTotalParams{
			Scope:       scope,
			Day:         day,
			Source:      adapter.Name(),
			Clicks:      total.Clicks,
			Impressions: total.Impressions,
			Position:    total.Position,
		}); err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Str("day", dayKey).Msg("daily total upsert failed")
			continue
		}
		summary.TotalDays++
	}
	return nil
}

// cleanup deactivates active keywords absent from every provider report
// for longer than the grace window. History rows stay untouched.
func (s *Service) cleanup(
	ctx context.Context,
	now time.Time,
	keywords map[string]*keywordState,
	unionQueries map[string]struct{},
	summary *RunSummary,
) {
	grace := time.Duration(s.opts.GraceDays) * 24 * time.Hour

	for normalized, state := range keywords {
		if !state.active {
			continue
		}
		if _, present := unionQueries[normalized]; present {
			continue
		}

		lastSeen := state.createdAt
		for _, seen := range state.lastSeen {
			if seen.After(lastSeen) {
				lastSeen = seen
			}
		}
		if now.Sub(lastSeen) <= grace {
			continue
		}

		if err := s.store.DeactivateKeyword(ctx, state.id, now); err != nil {
			summary.Errors++
			s.logger.Error().Err(err).Int64("keyword_id", state.id).Msg("deactivation failed")
			continue
		}
		state.active = false
		summary.Deactivated++
	}
}

func (s *Service) finishSyncLog(ctx context.Context, syncLogID int64, summary *RunSummary, runErr error) {
	if syncLogID == 0 {
		return
	}

	status := db.SyncStatusSuccess
	var errorMessage *string
	if runErr != nil {
		status = db.SyncStatusError
		msg := runErr.Error()
		errorMessage = &msg
	} else if summary.Failed() {
		status = db.SyncStatusError
	}

	detail, err := json.Marshal(summary)
	if err != nil {
		detail = nil
	}
	if err := s.store.FinishSyncLog(ctx, syncLogID, status, s.opts.Now().UTC(), detail, errorMessage); err != nil {
		s.logger.Warn().Err(err).Int64("sync_log_id", syncLogID).Msg("finish sync log failed")
	}
}
