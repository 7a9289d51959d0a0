package models

import "time"

// PriceHistory records one observed price change of a listing
type PriceHistory struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID     uint      `gorm:"not null;index:idx_price_history_listing,priority:1" json:"listing_id"`
	OldPrice      float64   `gorm:"not null" json:"old_price"`
	NewPrice      float64   `gorm:"not null" json:"new_price"`
	ChangeAmount  float64   `gorm:"not null" json:"change_amount"`
	ChangePercent *float64  `json:"change_percent,omitempty"` // nil when the old price was zero
	ChangedAt     time.Time `gorm:"not null;index:idx_price_history_listing,priority:2" json:"changed_at"`
}

// TableName specifies the table name for GORM
func (PriceHistory) TableName() string {
	return "price_history"
}

// NewPriceHistory builds a history row for a change from oldPrice to newPrice
func NewPriceHistory(listingID uint, oldPrice, newPrice float64, at time.Time) PriceHistory {
	h := PriceHistory{
		ListingID:    listingID,
		OldPrice:     oldPrice,
		NewPrice:     newPrice,
		ChangeAmount: newPrice - oldPrice,
		ChangedAt:    at,
	}
	if oldPrice > 0 {
		pct := 100 * (newPrice - oldPrice) / oldPrice
		h.ChangePercent = &pct
	}
	return h
}
