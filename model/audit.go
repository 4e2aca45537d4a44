package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records relationship transitions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	ActorID   string         `gorm:"index:idx_audit_actor;size:255" json:"actor_id"`
	SubjectID string         `gorm:"size:255" json:"subject_id"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	RequestID string         `gorm:"size:36" json:"request_id"`
	Detail    datatypes.JSON `json:"detail"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created" json:"created_at"`
}
