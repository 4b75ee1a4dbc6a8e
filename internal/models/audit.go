package models

import "time"

type AuditLevel string

const (
	AuditInfo  AuditLevel = "info"
	AuditWarn  AuditLevel = "warning"
	AuditError AuditLevel = "error"
)

// AuditEvent is one row of the audit trail.
type AuditEvent struct {
	ID         int64
	Level      AuditLevel
	Action     string
	Message    string
	UserID     string
	OccurredAt time.Time
}
