// Package dedup holds the maintenance jobs that restore the storage
// invariants regular sync cannot enforce: normalized-text uniqueness
// among keywords and natural-key uniqueness among position rows.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/rankpulse/internal/db"
	"horse.fit/rankpulse/internal/provider"
	"horse.fit/rankpulse/internal/textnorm"
)

// Store is the persistent-store surface the dedup jobs consume.
// *db.Pool implements it.
type Store interface {
	ListDuplicateKeywordGroups(ctx context.Context, scope db.Scope) ([]db.KeywordGroup, error)
	ListDuplicatePositionGroups(ctx context.Context, scope db.Scope) ([]db.PositionGroup, error)
	GetKeyword(ctx context.Context, keywordID int64) (*db.Keyword, error)
	ListPositionsForKeyword(ctx context.Context, keywordID int64) ([]db.Position, error)
	AddPositionMetrics(ctx context.Context, positionID int64, clicks, impressions int64) error
	ReassignPosition(ctx context.Context, positionID, keywordID int64) error
	DeletePosition(ctx context.Context, positionID int64) error
	DeleteKeyword(ctx context.Context, keywordID int64) error
	TryAcquireScopeLock(ctx context.Context, scope db.Scope) (bool, error)
	ReleaseScopeLock(ctx context.Context, scope db.Scope) error
}

// Policy tunes survivor selection. Preferring the accented variant
// assumes manual curators type accents correctly more often than
// auto-discovery captures them; other locales may want this off.
type Policy struct {
	PreferAccented bool
}

// MergePlan describes one planned or executed group merge.
type MergePlan struct {
	NormalizedText string  `json:"normalized_text"`
	SurvivorID     int64   `json:"survivor_id"`
	SurvivorText   string  `json:"survivor_text"`
	DuplicateIDs   []int64 `json:"duplicate_ids"`
}

// MergeReport summarizes a duplicate-keyword merge run.
type MergeReport struct {
	Scope            string      `json:"scope"`
	DryRun           bool        `json:"dry_run"`
	Groups           int         `json:"groups"`
	MergedKeywords   int         `json:"merged_keywords"`
	SummedRows       int         `json:"summed_rows"`
	MovedRows        int         `json:"moved_rows"`
	DeletedPositions int         `json:"deleted_positions"`
	Errors           int         `json:"errors"`
	Plans            []MergePlan `json:"plans,omitempty"`
}

// Merger folds accent/case duplicate keywords into one survivor each.
type Merger struct {
	store  Store
	logger zerolog.Logger
	policy Policy
}

func NewMerger(store Store, logger zerolog.Logger, policy Policy) *Merger {
	return &Merger{store: store, logger: logger, policy: policy}
}

// MergeDuplicates groups the scope's keywords by normalized text and
// merges every group down to its survivor. Overlapping-date metrics are
// summed into the survivor's row; the survivor's own position reading
// stays, since averaging two partial samples would mislead. Dry runs
// report the plan without touching storage.
func (m *Merger) MergeDuplicates(ctx context.Context, scope db.Scope, dryRun bool) (*MergeReport, error) {
	if m == nil || m.store == nil {
		return nil, fmt.Errorf("merger is not initialized")
	}

	if !dryRun {
		acquired, err := m.store.TryAcquireScopeLock(ctx, scope)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, fmt.Errorf("another run is active for scope %s", scope)
		}
		defer func() {
			if err := m.store.ReleaseScopeLock(ctx, scope); err != nil {
				m.logger.Warn().Err(err).Str("scope", scope.String()).Msg("release scope lock failed")
			}
		}()
	}

	groups, err := m.store.ListDuplicateKeywordGroups(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{Scope: scope.String(), DryRun: dryRun, Groups: len(groups)}
	for _, group := range groups {
		if err := m.mergeGroup(ctx, group, dryRun, report); err != nil {
			report.Errors++
			m.logger.Error().Err(err).Str("normalized", group.NormalizedText).Msg("group merge failed")
		}
	}

	m.logger.Info().
		Str("scope", scope.String()).
		Bool("dry_run", dryRun).
		Int("groups", report.Groups).
		Int("merged", report.MergedKeywords).
		Msg("duplicate merge finished")

	return report, nil
}

func (m *Merger) mergeGroup(ctx context.Context, group db.KeywordGroup, dryRun bool, report *MergeReport) error {
	members := make([]*db.Keyword, 0, len(group.KeywordIDs))
	for _, keywordID := range group.KeywordIDs {
		kw, err := m.store.GetKeyword(ctx, keywordID)
		if err != nil {
			return fmt.Errorf("load keyword %d: %w", keywordID, err)
		}
		members = append(members, kw)
	}
	if len(members) < 2 {
		return nil
	}

	survivor := m.pickSurvivor(members)
	plan := MergePlan{
		NormalizedText: group.NormalizedText,
		SurvivorID:     survivor.KeywordID,
		SurvivorText:   survivor.Text,
	}
	for _, member := range members {
		if member.KeywordID != survivor.KeywordID {
			plan.DuplicateIDs = append(plan.DuplicateIDs, member.KeywordID)
		}
	}
	report.Plans = append(report.Plans, plan)

	survivorRows, err := m.store.ListPositionsForKeyword(ctx, survivor.KeywordID)
	if err != nil {
		return fmt.Errorf("load survivor positions: %w", err)
	}
	survivorByKey := make(map[string]db.Position, len(survivorRows))
	for _, row := range survivorRows {
		survivorByKey[positionKey(row.Day, row.Source)] = row
	}

	for _, duplicateID := range plan.DuplicateIDs {
		duplicateRows, err := m.store.ListPositionsForKeyword(ctx, duplicateID)
		if err != nil {
			return fmt.Errorf("load duplicate positions: %w", err)
		}

		for _, row := range duplicateRows {
			key := positionKey(row.Day, row.Source)
			if survivorRow, overlaps := survivorByKey[key]; overlaps {
				report.SummedRows++
				report.DeletedPositions++
				if dryRun {
					continue
				}
				if err := m.store.AddPositionMetrics(ctx, survivorRow.PositionID, row.Clicks, row.Impressions); err != nil {
					return fmt.Errorf("sum metrics into survivor row %d: %w", survivorRow.PositionID, err)
				}
				if err := m.store.DeletePosition(ctx, row.PositionID); err != nil {
					return fmt.Errorf("delete merged row %d: %w", row.PositionID, err)
				}
				continue
			}

			report.MovedRows++
			if dryRun {
				continue
			}
			if err := m.store.ReassignPosition(ctx, row.PositionID, survivor.KeywordID); err != nil {
				return fmt.Errorf("reassign row %d: %w", row.PositionID, err)
			}
			moved := row
			moved.KeywordID = survivor.KeywordID
			survivorByKey[key] = moved
		}

		report.MergedKeywords++
		if dryRun {
			continue
		}
		if err := m.store.DeleteKeyword(ctx, duplicateID); err != nil {
			return fmt.Errorf("delete duplicate keyword %d: %w", duplicateID, err)
		}
	}

	return nil
}

// pickSurvivor prefers the accented variant (when the policy says so),
// then the oldest creation time. Members arrive oldest first.
func (m *Merger) pickSurvivor(members []*db.Keyword) *db.Keyword {
	if m.policy.PreferAccented {
		for _, member := range members {
			if textnorm.HasDiacritics(member.Text) {
				return member
			}
		}
	}
	return members[0]
}

func positionKey(day time.Time, source string) string {
	return day.Format(provider.DayFormat) + "|" + source
}
