package model

import "time"

// Account is the directory entry used for candidate search.
// Authentication lives upstream; only discovery data is kept here.
type Account struct {
	UserID       string    `gorm:"primaryKey;size:255" json:"user_id"`
	DisplayName  string    `gorm:"size:128;index:idx_accounts_display_name" json:"display_name"`
	Discoverable bool      `gorm:"not null" json:"discoverable"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
