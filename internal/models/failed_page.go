package models

import "time"

// FailedPage is the audit row of a page that yielded no listings (past page
// one) or raised while loading. It outlives its session.
type FailedPage struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uint       `gorm:"not null;uniqueIndex:idx_failed_page_session_url,priority:1" json:"session_id"`
	URL        string     `gorm:"size:512;not null;uniqueIndex:idx_failed_page_session_url,priority:2" json:"url"`
	PageNumber int        `gorm:"not null" json:"page_number"`
	City       string     `gorm:"size:100" json:"city"`
	District   string     `gorm:"size:100" json:"district,omitempty"`
	Error      string     `gorm:"type:text" json:"error"`
	RetryCount int        `gorm:"not null;default:0" json:"retry_count"`
	Resolved   bool       `gorm:"not null;default:false;index:idx_failed_page_resolved" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (FailedPage) TableName() string {
	return "failed_pages"
}
