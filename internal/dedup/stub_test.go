package dedup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/textnorm"
)

// stubStore is an in-memory Store for merger tests.
type stubStore struct {
	nextKeywordID  int64
	nextPositionID int64

	keywords  map[int64]*db.Keyword
	positions map[int64]*db.Position
	locks     map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{
		keywords:  make(map[int64]*db.Keyword),
		positions: make(map[int64]*db.Position),
		locks:     make(map[string]bool),
	}
}

func (s *stubStore) addKeyword(text string, createdAt time.Time) *db.Keyword {
	s.nextKeywordID++
	kw := &db.Keyword{
		KeywordID:      s.nextKeywordID,
		Text:           text,
		NormalizedText: textnorm.Normalize(text),
		Active:         true,
		Source:         db.KeywordSourceManual,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	s.keywords[kw.KeywordID] = kw
	return kw
}

func (s *stubStore) addPosition(keywordID int64, day string, source string, position float64, clicks, impressions int64) *db.Position {
	s.nextPositionID++
	parsed, err := time.Parse(provider.DayFormat, day)
	if err != nil {
		panic(err)
	}
	pos := &db.Position{
		PositionID:  s.nextPositionID,
		KeywordID:   keywordID,
		Day:         parsed,
		Source:      source,
		Position:    position,
		Clicks:      clicks,
		Impressions: impressions,
	}
	s.positions[pos.PositionID] = pos
	return pos
}

func (s *stubStore) ListDuplicateKeywordGroups(_ context.Context, _ db.Scope) ([]db.KeywordGroup, error) {
	byNormalized := make(map[string][]*db.Keyword)
	for _, kw := range s.keywords {
		byNormalized[kw.NormalizedText] = append(byNormalized[kw.NormalizedText], kw)
	}

	var groups []db.KeywordGroup
	for normalized, members := range byNormalized {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].KeywordID < members[j].KeywordID
			}
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		})
		group := db.KeywordGroup{NormalizedText: normalized}
		for _, member := range members {
			group.KeywordIDs = append(group.KeywordIDs, member.KeywordID)
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].NormalizedText < groups[j].NormalizedText })
	return groups, nil
}

func (s *stubStore) ListDuplicatePositionGroups(_ context.Context, _ db.Scope) ([]db.PositionGroup, error) {
	type groupKey struct {
		keywordID int64
		day       string
	}
	byKey := make(map[groupKey][]*db.Position)
	sources := make(map[groupKey]map[string]bool)
	for _, pos := range s.positions {
		key := groupKey{keywordID: pos.KeywordID, day: pos.Day.Format(provider.DayFormat)}
		byKey[key] = append(byKey[key], pos)
		if sources[key] == nil {
			sources[key] = make(map[string]bool)
		}
		sources[key][pos.Source] = true
	}

	var groups []db.PositionGroup
	for key, members := range byKey {
		if len(members) < 2 || len(sources[key]) != 1 {
			continue
		}
		// Newest creation first, mirroring the production query.
		sort.Slice(members, func(i, j int) bool { return members[i].PositionID > members[j].PositionID })
		group := db.PositionGroup{KeywordID: key.keywordID, Day: members[0].Day}
		for _, member := range members {
			group.PositionIDs = append(group.PositionIDs, member.PositionID)
		}
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].KeywordID < groups[j].KeywordID })
	return groups, nil
}

func (s *stubStore) GetKeyword(_ context.Context, keywordID int64) (*db.Keyword, error) {
	kw, ok := s.keywords[keywordID]
	if !ok {
		return nil, db.ErrNoRows
	}
	found := *kw
	return &found, nil
}

func (s *stubStore) ListPositionsForKeyword(_ context.Context, keywordID int64) ([]db.Position, error) {
	var out []db.Position
	for _, pos := range s.positions {
		if pos.KeywordID == keywordID {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out, nil
}

func (s *stubStore) AddPositionMetrics(_ context.Context, positionID int64, clicks, impressions int64) error {
	pos, ok := s.positions[positionID]
	if !ok {
		return db.ErrNoRows
	}
	pos.Clicks += clicks
	pos.Impressions += impressions
	return nil
}

func (s *stubStore) ReassignPosition(_ context.Context, positionID, keywordID int64) error {
	pos, ok := s.positions[positionID]
	if !ok {
		return db.ErrNoRows
	}
	pos.KeywordID = keywordID
	return nil
}

func (s *stubStore) DeletePosition(_ context.Context, positionID int64) error {
	if _, ok := s.positions[positionID]; !ok {
		return db.ErrNoRows
	}
	delete(s.positions, positionID)
	return nil
}

func (s *stubStore) DeleteKeyword(_ context.Context, keywordID int64) error {
	if _, ok := s.keywords[keywordID]; !ok {
		return db.ErrNoRows
	}
	delete(s.keywords, keywordID)
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
