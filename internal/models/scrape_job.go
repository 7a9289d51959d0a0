package models

import (
	"time"

	"gorm.io/datatypes"
)

// ScrapeJob is a row of the durable job queue. Payload holds the submitted
// job request as JSON.
type ScrapeJob struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	Status      string         `gorm:"size:16;not null;default:'pending';index:idx_job_status_created,priority:1" json:"status"` // pending, running, done
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	WorkerID    string         `gorm:"size:64" json:"worker_id,omitempty"`
	LeaseUntil  *time.Time     `gorm:"index:idx_job_lease" json:"lease_until,omitempty"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index:idx_job_status_created,priority:2" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (ScrapeJob) TableName() string {
	return "scrape_jobs"
}

// Job status constants
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
)
