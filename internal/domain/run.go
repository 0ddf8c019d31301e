package domain

import "time"

// RunInfo describes the run a reporter session is displaying
type RunInfo struct {
	ID        string
	Spec      string
	StartedAt *time.Time
}
