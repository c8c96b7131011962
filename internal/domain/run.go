package domain

import "time"

// BackfillRun lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusStopped   = "stopped" // stop-after limit reached
	RunStatusFailed    = "failed"
)

// BackfillRun is the audit record of one backfill invocation over one
// exchange address. It is a trail, not a resume cursor: resuming is done by
// re-running over an overlapping block range, which the trade upsert makes
// idempotent.
type BackfillRun struct {
	ID              string // uuid
	ExchangeAddress string
	StartBlock      int64
	EndBlock        int64
	Inserted        int64
	Status          string
	StartedAt       time.Time
	FinishedAt      *time.Time
}
