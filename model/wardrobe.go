package model

import (
	"time"

	"gorm.io/datatypes"
)

// Owner kinds for wardrobe state rows.
const (
	OwnerUser      = "user"
	OwnerCharacter = "character"
)

// WardrobeState stores one identity's whole collection tree as an opaque JSON
// payload. The payload is normalized on load; the server never queries inside
// it.
type WardrobeState struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerKind string         `gorm:"uniqueIndex:idx_wardrobe_owner;size:16;not null" json:"owner_kind"`
	OwnerName string         `gorm:"uniqueIndex:idx_wardrobe_owner;size:64;not null" json:"owner_name"`
	Payload   datatypes.JSON `json:"payload"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WardrobeState) TableName() string { return "wardrobe_states" }

// ImageBlob is one content-addressed image: Key is the SHA-256 hex digest of
// the base64 payload.
type ImageBlob struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Base64    string    `gorm:"type:text;not null" json:"base64"`
	Width     int       `gorm:"not null" json:"width"`
	Height    int       `gorm:"not null" json:"height"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ImageBlob) TableName() string { return "image_blobs" }

// SlotPreset is a reusable slot value plus optional image, keyed by a
// user-chosen tag and decoupled from any one slot.
type SlotPreset struct {
	Tag         string    `gorm:"primaryKey;size:64" json:"tag"`
	Value       string    `gorm:"size:255" json:"value"`
	ImageKey    string    `gorm:"size:64" json:"image_key"`
	ImageWidth  int       `json:"image_width"`
	ImageHeight int       `json:"image_height"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

func (SlotPreset) TableName() string { return "slot_presets" }
