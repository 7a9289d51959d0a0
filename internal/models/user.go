package models

import "time"

// User is an account of the web front-end. Listings carry no reference to it.
type User struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"size:64;not null;uniqueIndex:idx_user_username" json:"username"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:idx_user_email" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	IsAdmin      bool       `gorm:"not null;default:false" json:"is_admin"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}
