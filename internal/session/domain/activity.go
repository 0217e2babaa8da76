package domain

import "time"

// RiskLevel is the detector's verdict on a single access. Levels are totally ordered.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels: low < medium < high < critical. Unknown values rank as low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// Activity kinds recorded by the session manager.
const (
	ActivityCreated     = "session_created"
	ActivityValidated   = "session_validated"
	ActivityRejected    = "session_rejected"
	ActivityExtended    = "session_extended"
	ActivityMfaVerified = "mfa_verified"
)

// SessionActivity is an append-only record of one access within a session.
type SessionActivity struct {
	ID         string
	SessionID  string
	Activity   string
	Resource   string
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
	RiskLevel  RiskLevel
	RiskReason string
	Metadata   map[string]string
}
