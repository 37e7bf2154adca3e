package dedup

import (
	"context"
	"fmt"

	"horse.fit/rankpulse/internal/db"
)

// PositionDedupReport summarizes a literal-duplicate cleanup run.
type PositionDedupReport struct {
	Scope       string `json:"scope"`
	DryRun      bool   `json:"dry_run"`
	Groups      int    `json:"groups"`
	DeletedRows int    `json:"deleted_rows"`
	Errors      int    `json:"errors"`
}

// DedupPositions removes literal duplicate (keyword, day) rows left by
// the pre-multi-source schema: the most recently created row of each
// group survives. Groups spanning multiple sources are legitimate data
// and never reach this job.
func (m *Merger) DedupPositions(ctx context.Context, scope db.Scope, dryRun bool) (*PositionDedupReport, error) {
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

	groups, err := m.store.ListDuplicatePositionGroups(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &PositionDedupReport{Scope: scope.String(), DryRun: dryRun, Groups: len(groups)}
	for _, group := range groups {
		// Ids arrive newest creation first; everything after the head
		// goes away.
		for _, positionID := range group.PositionIDs[1:] {
			report.DeletedRows++
			if dryRun {
				continue
			}
			if err := m.store.DeletePosition(ctx, positionID); err != nil {
				report.Errors++
				m.logger.Error().Err(err).Int64("position_id", positionID).Msg("duplicate row delete failed")
			}
		}
	}

	return report, nil
}
