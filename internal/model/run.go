package model

import "time"

// RunStatus represents the lifecycle status of a supervised server run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusExited  RunStatus = "exited"
	RunStatusFailed  RunStatus = "failed"
)

// Run records one supervised execution of the game server process.
type Run struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	Workdir   string     `json:"workdir,omitempty"`
	PID       *int       `json:"pid,omitempty"`
	Status    RunStatus  `json:"status"`
	ExitCode  *int       `json:"exitCode,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
}

// Duration returns how long the run has been (or was) alive.
func (r *Run) Duration() time.Duration {
	if r.StoppedAt != nil {
		return r.StoppedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
