package domain

import "time"

type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunConverged  RunStatus = "converged"
	RunUnresolved RunStatus = "unresolved"
	RunFailed     RunStatus = "failed"
)

// Run is one reconciliation of one channel as kept in the journal.
type Run struct {
	ID             string
	Channel        string
	Architecture   string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         RunStatus
	Passes         int
	Drifts         int
	SnapshotDate   string
	SnapshotDigest string
	Error          string
}

func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// RunEvent is a journaled reconciliation event, ordered by Seq within a run.
type RunEvent struct {
	RunID      string
	Seq        int
	Kind       string
	Pass       int
	SubChannel string
	Name       string
	Version    string
	Tag        string
	DriftKind  string
	Action     string
	ExitCode   int
	RecordedAt time.Time
}
