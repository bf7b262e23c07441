package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records wardrobe mutations and important account actions.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	AccountID  *int64         `json:"account_id"`
	Owner      string         `gorm:"index:idx_audit_owner;size:80" json:"owner"`
	SlotID     string         `gorm:"size:64" json:"slot_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
