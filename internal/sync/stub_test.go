package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/provider"
)

// stubStore is an in-memory Store used by orchestrator tests.
type stubStore struct {
	nextKeywordID  int64
	nextPositionID int64
	nextSyncLogID  int64

	keywords  map[int64]*db.Keyword
	positions map[int64]*db.Position
	totals    map[string]db.UpsertDailyTotalParams
	syncLogs  map[int64]*db.SyncLog
	locks     map[string]bool

	failInsertKeyword bool
}

func newStubStore() *stubStore {
	return &stubStore{
		keywords:  make(map[int64]*db.Keyword),
		positions: make(map[int64]*db.Position),
		totals:    make(map[string]db.UpsertDailyTotalParams),
		syncLogs:  make(map[int64]*db.SyncLog),
		locks:     make(map[string]bool),
	}
}

func (s *stubStore) addKeyword(kw db.Keyword) *db.Keyword {
	s.nextKeywordID++
	kw.KeywordID = s.nextKeywordID
	stored := kw
	s.keywords[stored.KeywordID] = &stored
	return &stored
}

func (s *stubStore) addPosition(pos db.Position) *db.Position {
	s.nextPositionID++
	pos.PositionID = s.nextPositionID
	stored := pos
	s.positions[stored.PositionID] = &stored
	return &stored
}

func (s *stubStore) positionCount() int {
	return len(s.positions)
}

func (s *stubStore) ListKeywords(_ context.Context, scope db.Scope) ([]db.Keyword, error) {
	var out []db.Keyword
	for _, kw := range s.keywords {
		if sameScope(kw.SiteID, scope.SiteID) {
			out = append(out, *kw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeywordID < out[j].KeywordID })
	return out, nil
}

func (s *stubStore) InsertKeyword(_ context.Context, params db.InsertKeywordParams) (int64, error) {
	if s.failInsertKeyword {
		return 0, fmt.Errorf("stub insert failure")
	}
	s.nextKeywordID++
	kw := &db.Keyword{
		KeywordID:      s.nextKeywordID,
		SiteID:         params.Scope.SiteID,
		Text:           params.Text,
		NormalizedText: params.NormalizedText,
		TargetURL:      params.TargetURL,
		Active:         true,
		Source:         params.Source,
		Relevance:      params.Relevance,
		RelevanceScore: params.RelevanceScore,
		CreatedAt:      params.SeenAt,
		UpdatedAt:      params.SeenAt,
	}
	seenAt := params.SeenAt
	switch strings.ToLower(params.SeenSource) {
	case "google":
		kw.LastSeenGoogleAt = &seenAt
	case "bing":
		kw.LastSeenBingAt = &seenAt
	}
	s.keywords[kw.KeywordID] = kw
	return kw.KeywordID, nil
}

func (s *stubStore) ReactivateKeyword(_ context.Context, keywordID int64, now time.Time) error {
	kw, ok := s.keywords[keywordID]
	if !ok {
		return db.ErrNoRows
	}
	kw.Active = true
	kw.DeactivatedAt = nil
	kw.UpdatedAt = now
	return nil
}

func (s *stubStore) DeactivateKeyword(_ context.Context, keywordID int64, now time.Time) error {
	kw, ok := s.keywords[keywordID]
	if !ok {
		return db.ErrNoRows
	}
	deactivated := now
	kw.Active = false
	kw.DeactivatedAt = &deactivated
	kw.UpdatedAt = now
	return nil
}

func (s *stubStore) TouchKeywordSynced(_ context.Context, keywordID int64, source string, now time.Time) error {
	kw, ok := s.keywords[keywordID]
	if !ok {
		return db.ErrNoRows
	}
	synced := now
	kw.LastSyncedAt = &synced
	return s.touchSeen(kw, source, now)
}

func (s *stubStore) TouchKeywordSeen(_ context.Context, keywordID int64, source string, now time.Time) error {
	kw, ok := s.keywords[keywordID]
	if !ok {
		return db.ErrNoRows
	}
	return s.touchSeen(kw, source, now)
}

func (s *stubStore) touchSeen(kw *db.Keyword, source string, now time.Time) error {
	seen := now
	switch strings.ToLower(source) {
	case "google":
		kw.LastSeenGoogleAt = &seen
	case "bing":
		kw.LastSeenBingAt = &seen
	default:
		return fmt.Errorf("unknown provider source %q", source)
	}
	return nil
}

func (s *stubStore) GetPosition(_ context.Context, keywordID int64, day time.Time, source string) (*db.Position, error) {
	for _, pos := range s.positions {
		if pos.KeywordID == keywordID && pos.Source == source && sameDay(pos.Day, day) {
			found := *pos
			return &found, nil
		}
	}
	return nil, db.ErrNoRows
}

func (s *stubStore) InsertPosition(_ context.Context, params db.InsertPositionParams) (int64, error) {
	s.nextPositionID++
	s.positions[s.nextPositionID] = &db.Position{
		PositionID:  s.nextPositionID,
		KeywordID:   params.KeywordID,
		Day:         provider.DayOf(params.Day),
		Source:      params.Source,
		Position:    params.Position,
		Clicks:      params.Clicks,
		Impressions: params.Impressions,
	}
	return s.nextPositionID, nil
}

func (s *stubStore) UpdatePositionMetrics(_ context.Context, positionID int64, position float64, clicks, impressions int64) error {
	pos, ok := s.positions[positionID]
	if !ok {
		return db.ErrNoRows
	}
	pos.Position = position
	pos.Clicks = clicks
	pos.Impressions = impressions
	return nil
}

func (s *stubStore) UpsertDailyTotal(_ context.Context, params db.UpsertDailyTotalParams) error {
	key := params.Scope.String() + "|" + params.Day.Format(provider.DayFormat) + "|" + params.Source
	s.totals[key] = params
	return nil
}

func (s *stubStore) ListRecentDailyTotals(_ context.Context, scope db.Scope, sinceDay time.Time) ([]db.DailyTotal, error) {
	var out []db.DailyTotal
	for _, params := range s.totals {
		if !sameScope(params.Scope.SiteID, scope.SiteID) || params.Day.Before(sinceDay) {
			continue
		}
		out = append(out, db.DailyTotal{
			SiteID:      params.Scope.SiteID,
			Day:         params.Day,
			Source:      params.Source,
			Clicks:      params.Clicks,
			Impressions: params.Impressions,
			Position:    params.Position,
		})
	}
	return out, nil
}

func (s *stubStore) DeleteKeywordsInScope(_ context.Context, scope db.Scope) (int64, error) {
	var deleted int64
	for id, kw := range s.keywords {
		if sameScope(kw.SiteID, scope.SiteID) {
			delete(s.keywords, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubStore) DeletePositionsInScope(_ context.Context, scope db.Scope) (int64, error) {
	var deleted int64
	for id, pos := range s.positions {
		kw, ok := s.keywords[pos.KeywordID]
		if ok && sameScope(kw.SiteID, scope.SiteID) {
			delete(s.positions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubStore) DeleteDailyTotalsInScope(_ context.Context, scope db.Scope) (int64, error) {
	var deleted int64
	for key, params := range s.totals {
		if sameScope(params.Scope.SiteID, scope.SiteID) {
			delete(s.totals, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubStore) StartSyncLog(_ context.Context, command string, scope db.Scope, startedAt time.Time) (int64, error) {
	s.nextSyncLogID++
	s.syncLogs[s.nextSyncLogID] = &db.SyncLog{
		SyncLogID: s.nextSyncLogID,
		Command:   command,
		SiteID:    scope.SiteID,
		StartedAt: startedAt,
		Status:    db.SyncStatusRunning,
	}
	return s.nextSyncLogID, nil
}

func (s *stubStore) FinishSyncLog(_ context.Context, syncLogID int64, status string, finishedAt time.Time, detail json.RawMessage, errorMessage *string) error {
	entry, ok := s.syncLogs[syncLogID]
	if !ok {
		return db.ErrNoRows
	}
	finished := finishedAt
	entry.FinishedAt = &finished
	entry.Status = status
	entry.Detail = detail
	entry.ErrorMessage = errorMessage
	return nil
}

func (s *stubStore) TryAcquireScopeLock(_ context.Context, scope db.Scope) (bool, error) {
	if s.locks[scope.String()] {
		return false, nil
	}
	s.locks[scope.String()] = true
	return true, nil
}

func (s *stubStore) ReleaseScopeLock(_ context.Context, scope db.Scope) error {
	if !s.locks[scope.String()] {
		return fmt.Errorf("lock for %s was not held", scope)
	}
	delete(s.locks, scope.String())
	return nil
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameDay(a, b time.Time) bool {
	return provider.DayOf(a).Equal(provider.DayOf(b))
}

// stubAdapter is a canned-response provider adapter. When dayAggregated
// is set, single-day aggregated fetches return it instead of aggregated.
type stubAdapter struct {
	name          string
	aggregated    map[string]provider.QueryMetrics
	dayAggregated map[string]provider.QueryMetrics
	daily         map[string]map[string]provider.QueryMetrics
	totals        map[string]provider.SiteTotals

	aggregatedErr error
	dailyErr      error
	totalsErr     error
}

func (a *stubAdapter) Name() string    { return a.name }
func (a *stubAdapter) Available() bool { return true }

func (a *stubAdapter) FetchAggregatedQueries(_ context.Context, dr provider.DateRange) (map[string]provider.QueryMetrics, error) {
	if a.aggregatedErr != nil {
		return nil, a.aggregatedErr
	}
	if a.dayAggregated != nil && dr.Start.Equal(dr.End) {
		return a.dayAggregated, nil
	}
	return a.aggregated, nil
}

func (a *stubAdapter) FetchDailyQueries(context.Context, provider.DateRange) (map[string]map[string]provider.QueryMetrics, error) {
	if a.dailyErr != nil {
		return nil, a.dailyErr
	}
	return a.daily, nil
}

func (a *stubAdapter) FetchSiteDailyTotals(context.Context, provider.DateRange) (map[string]provider.SiteTotals, error) {
	if a.totalsErr != nil {
		return nil, a.totalsErr
	}
	return a.totals, nil
}
