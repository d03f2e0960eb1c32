package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in the ledger file.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one ledger record: a shell command and its lifecycle state.
// Records serialize as one JSON object per line; the field names are part
// of the stable on-disk contract.
type Job struct {
	ID        string     `json:"id"`
	Command   string     `json:"command"`
	Status    string     `json:"status"`
	DeviceID  *int       `json:"device_id,omitempty"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LogFile   string     `json:"log_file,omitempty"`
}
