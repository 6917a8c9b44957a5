package domain

import "time"

// ErrorStatus represents the retry state of a recorded failure.
// Values include ErrorStatusPending, ErrorStatusRetrying, and
// ErrorStatusResolved.
type ErrorStatus string

const (
	ErrorStatusPending  ErrorStatus = "pending"
	ErrorStatusRetrying ErrorStatus = "retrying"
	ErrorStatusResolved ErrorStatus = "resolved"
)

// File priorities for error-log triage. High-priority failures are promoted
// back into the scan queue by the retry worker; normal-priority ones wait for
// the next natural producer pass.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
)

// ErrorLogEntry is one recorded failure. Entries are never deleted; they form
// the audit trail for chronically failing files.
type ErrorLogEntry struct {
	ID           string      `gorm:"type:text;primaryKey" json:"id"`
	Component    string      `gorm:"type:text;not null;index:idx_error_log_component" json:"component"`
	FilePath     string      `gorm:"type:text;index:idx_error_log_path" json:"file_path"`
	FilePriority int         `gorm:"default:0;index:idx_error_log_priority" json:"file_priority"`
	ErrorCode    string      `gorm:"type:text" json:"error_code"`
	Message      string      `gorm:"type:text" json:"message"`
	Details      string      `gorm:"type:text" json:"details,omitempty"`
	Status       ErrorStatus `gorm:"type:text;default:pending;index:idx_error_log_status" json:"status"`
	LastAttempt  *time.Time  `json:"last_attempt,omitempty"`
	RetryCount   int         `gorm:"default:0" json:"retry_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ErrorLogEntry.
func (ErrorLogEntry) TableName() string {
	return "error_log"
}
