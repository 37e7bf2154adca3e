package sync

import (
	"fmt"
	"time"
)

// ReconcileCounts is the three-way upsert outcome tally callers report on.
type ReconcileCounts struct {
	Created     int `json:"created"`
	Skipped     int `json:"skipped"`
	Overwritten int `json:"overwritten"`
	Errors      int `json:"errors"`
}

func (c *ReconcileCounts) add(outcome Outcome) {
	switch outcome {
	case OutcomeCreated:
		c.Created++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeOverwritten:
		c.Overwritten++
	}
}

func (c ReconcileCounts) total() int {
	return c.Created + c.Skipped + c.Overwritten
}

// RunSummary reports one orchestrator run over one scope.
type RunSummary struct {
	Scope          string          `json:"scope"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Discovered     int             `json:"discovered"`
	Reactivated    int             `json:"reactivated"`
	Synced         int             `json:"synced"`
	NoData         int             `json:"no_data"`
	Errors         int             `json:"errors"`
	TotalDays      int             `json:"total_days"`
	Deactivated    int             `json:"deactivated"`
	Positions      ReconcileCounts `json:"positions"`
	ProviderErrors []string        `json:"provider_errors,omitempty"`
}

// Failed reports whether the invoking layer should treat the run as a
// failure. Per-keyword and per-phase errors count here, but they never
// abort a multi-site batch.
func (s *RunSummary) Failed() bool {
	return s.Errors > 0 || len(s.ProviderErrors) > 0
}

// Message is the human-readable per-run status line.
func (s *RunSummary) Message() string {
	msg := fmt.Sprintf(
		"%s: discovered %d, reactivated %d, synced %d (no data %d, errors %d), %d total days, deactivated %d",
		s.Scope, s.Discovered, s.Reactivated, s.Synced, s.NoData, s.Errors, s.TotalDays, s.Deactivated,
	)
	if len(s.ProviderErrors) > 0 {
		msg += fmt.Sprintf(", %d provider errors", len(s.ProviderErrors))
	}
	return msg
}
