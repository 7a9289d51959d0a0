package models

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus is the lifecycle state of a scrape session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusStopped   SessionStatus = "stopped"
	SessionStatusTimeout   SessionStatus = "timeout"
)

// IsTerminal reports whether no further transition is allowed
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusStopped, SessionStatusTimeout:
		return true
	}
	return false
}

// ScrapeSession is the lifecycle row of one scrape job
type ScrapeSession struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID string `gorm:"size:36;not null;uniqueIndex:idx_session_task" json:"task_id"`

	Platform        string                                  `gorm:"size:32;not null" json:"platform"`
	Category        string                                  `gorm:"size:32;not null" json:"category"`
	ListingType     string                                  `gorm:"size:16;not null" json:"listing_type"`
	Subcategory     string                                  `gorm:"size:100;not null;default:''" json:"subcategory,omitempty"`
	TargetCities    datatypes.JSONType[[]string]            `json:"target_cities"`
	TargetDistricts datatypes.JSONType[map[string][]string] `json:"target_districts"`

	TotalListings     int `gorm:"not null;default:0" json:"total_listings"`
	NewListings       int `gorm:"not null;default:0" json:"new_listings"`
	UpdatedListings   int `gorm:"not null;default:0" json:"updated_listings"`
	DuplicateListings int `gorm:"not null;default:0" json:"duplicate_listings"`
	SuccessfulPages   int `gorm:"not null;default:0" json:"successful_pages"`
	FailedPages       int `gorm:"not null;default:0" json:"failed_pages"`

	Status       SessionStatus `gorm:"size:16;not null;default:'running'" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    time.Time     `gorm:"not null;index:idx_session_started_at" json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (ScrapeSession) TableName() string {
	return "scrape_sessions"
}
