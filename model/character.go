package model

import "time"

// Character is one tracked character whose wardrobe the server manages.
type Character struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index:idx_account;not null" json:"account_id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Portrait  string    `gorm:"size:128" json:"portrait"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
