package model

import "time"

// Block is a one-directional suppression from BlockerID to BlockedID.
type Block struct {
	BlockerID string    `gorm:"primaryKey;size:255" json:"blocker_id"`
	BlockedID string    `gorm:"primaryKey;size:255;index:idx_user_blocks_blocked" json:"blocked_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false;index:idx_user_blocks_created" json:"created_at"`
}

func (Block) TableName() string { return "user_blocks" }
