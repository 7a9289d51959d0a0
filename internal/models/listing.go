package models

import (
	"time"

	"gorm.io/datatypes"
)

// Details is the free-form, category-specific attribute map of a listing
type Details = datatypes.JSONType[map[string]string]

// NewDetails wraps a detail map for storage
func NewDetails(m map[string]string) Details {
	if m == nil {
		m = map[string]string{}
	}
	return datatypes.NewJSONType(m)
}

// Listing is one advertisement, identified by its source URL
type Listing struct {
	ID          uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string   `gorm:"size:500;not null" json:"title"`
	Price       *float64 `gorm:"index:idx_listing_price" json:"price,omitempty"`
	PriceText   string   `gorm:"size:100;not null;default:''" json:"price_text"`
	Platform    string   `gorm:"size:32;not null;index:idx_listing_scope,priority:1" json:"platform"`
	Category    string   `gorm:"size:32;not null;index:idx_listing_scope,priority:2" json:"category"`
	ListingType string   `gorm:"size:16;not null;index:idx_listing_scope,priority:3" json:"listing_type"`
	Subcategory string   `gorm:"size:100;not null;default:''" json:"subcategory,omitempty"`

	// LocationID is fixed at insert time
	LocationID uint      `gorm:"not null;index:idx_listing_scope,priority:4" json:"location_id"`
	Location   *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`

	SourceURL string  `gorm:"size:512;not null;uniqueIndex:idx_listing_source_url" json:"source_url"`
	PostedAt  string  `gorm:"size:64" json:"posted_at,omitempty"`
	Agency    string  `gorm:"size:255" json:"agency,omitempty"`
	ImageURL  string  `gorm:"size:1024" json:"image_url,omitempty"`
	Details   Details `json:"details"`
	Featured  bool    `gorm:"not null;default:false" json:"featured"`
	IsNew     bool    `gorm:"not null;default:false" json:"is_new"`

	ContentHash string `gorm:"size:64;not null;index:idx_listing_content_hash" json:"content_hash"`
	SessionID   *uint  `gorm:"index:idx_listing_session" json:"session_id,omitempty"`

	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_listing_created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// TableName specifies the table name for GORM
func (Listing) TableName() string {
	return "listings"
}
