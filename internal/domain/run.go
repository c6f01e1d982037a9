package domain

import "time"

// RunStatus represents the final state of one integration run
type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunPublished  RunStatus = "published"
	RunRolledBack RunStatus = "rolled_back"
	RunSkipped    RunStatus = "skipped"
	RunFailed     RunStatus = "failed"
)

// Run is the audit record of a single integration attempt
type Run struct {
	ID          string
	Branch      string
	Candidate   string
	Commit      string
	Tip         string
	Strategy    string
	Status      RunStatus
	Result      *Result
	Description string
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// Duration returns how long the run took, or zero while running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
