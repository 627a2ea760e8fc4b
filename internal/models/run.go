package models

import "time"

// RunStatus is the outcome of one ingest run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun is the audit record of one sync or crawl execution, kept so
// operators can see what the ingest side has been doing without grepping
// logs. Old rows are pruned by the janitor.
type SyncRun struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	Origin     SourceType    `gorm:"size:50;not null;index" json:"origin"`
	Status     RunStatus     `gorm:"size:20;not null" json:"status"`
	Total      int           `json:"total"`
	Success    int           `json:"success"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Error      string        `gorm:"type:text" json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	StartedAt  time.Time     `gorm:"index" json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (SyncRun) TableName() string { return "sync_runs" }
