package model

import "time"

// RunStatus represents the state of a harvest run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// HarvestRun records the bookkeeping of a single harvest invocation.
type HarvestRun struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Mode       string     `json:"mode"`
	Queries    []string   `json:"queries"`
	Stats      RunStats   `json:"stats"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStats aggregates counters of a harvest run.
type RunStats struct {
	Requests   int            `json:"requests"`
	Fetched    int            `json:"fetched"`
	Outside    int            `json:"outside"`
	Duplicates int            `json:"duplicates"`
	Stored     int            `json:"stored"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
}

// Add merges o into s.
func (s *RunStats) Add(o RunStats) {
	s.Requests += o.Requests
	s.Fetched += o.Fetched
	s.Outside += o.Outside
	s.Duplicates += o.Duplicates
	s.Stored += o.Stored
	for k, v := range o.Outcomes {
		if s.Outcomes == nil {
			s.Outcomes = make(map[string]int)
		}
		s.Outcomes[k] += v
	}
}
