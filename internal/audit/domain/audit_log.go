package domain

import "time"

// Severity ranks security audit events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// SecurityAuditLog is an immutable record of one security-relevant event.
type SecurityAuditLog struct {
	ID            string
	Action        string
	Resource      string
	UserID        string // empty for anonymous events
	Username      string
	IsSuccess     bool
	FailureReason string
	Details       string // free-form JSON
	IPAddress     string
	UserAgent     string
	DepartmentID  string
	SessionID     string
	Severity      Severity
	Timestamp     time.Time
}
