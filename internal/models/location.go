package models

import "time"

// Location is a (province, district, neighborhood) triple. Rows are created
// on demand by the listing upsert and never updated or deleted.
type Location struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Province     string    `gorm:"size:100;not null;default:'';uniqueIndex:idx_location_triple,priority:1" json:"province"`
	District     string    `gorm:"size:100;not null;default:'';uniqueIndex:idx_location_triple,priority:2" json:"district"`
	Neighborhood string    `gorm:"size:150;not null;default:'';uniqueIndex:idx_location_triple,priority:3" json:"neighborhood"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Location) TableName() string {
	return "locations"
}

// Key returns the canonical "province/district/neighborhood" form
func (l Location) Key() string {
	return l.Province + "/" + l.District + "/" + l.Neighborhood
}
