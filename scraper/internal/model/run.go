package model

import "time"

// RunState is the lifecycle state of a site's scrape run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StatePaused    RunState = "paused"
	StateStopped   RunState = "stopped"
	StateCompleted RunState = "completed"
	StateError     RunState = "error"
)

// Active reports whether the state holds the site's exclusive run slot.
func (s RunState) Active() bool {
	return s == StateRunning || s == StatePaused
}

// RunStatus is the current state of one site.
type RunStatus struct {
	SiteID    string    `json:"site_id"`
	RunID     string    `json:"run_id,omitempty"`
	State     RunState  `json:"state"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// RunRecord is the persisted outcome of one run.
type RunRecord struct {
	ID         string     `json:"id"`
	SiteID     string     `json:"site_id"`
	State      RunState   `json:"state"`
	Strategy   string     `json:"strategy,omitempty"`
	Found      int        `json:"found"`
	Staged     int        `json:"staged"`
	Failed     int        `json:"failed"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
