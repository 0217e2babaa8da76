// Package notify publishes critical security events to Kafka for the alert worker.
package notify

import (
	"encoding/json"
	"time"

	"multidept-session-trust/backend/internal/audit/domain"
)

// Alert is the Kafka message value for one critical audit event.
type Alert struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	Username     string         `json:"username,omitempty"`
	DepartmentID string         `json:"departmentId,omitempty"`
	SessionID    string         `json:"sessionId,omitempty"`
	Severity     string         `json:"severity"`
	Success      bool           `json:"success"`
	Reason       string         `json:"reason,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

// FromEntry builds the alert for entry. Details that are not a JSON object are dropped.
func FromEntry(entry *domain.SecurityAuditLog) Alert {
	a := Alert{
		ID:           entry.ID,
		Action:       entry.Action,
		Resource:     entry.Resource,
		UserID:       entry.UserID,
		Username:     entry.Username,
		DepartmentID: entry.DepartmentID,
		SessionID:    entry.SessionID,
		Severity:     string(entry.Severity),
		Success:      entry.IsSuccess,
		Reason:       entry.FailureReason,
		IPAddress:    entry.IPAddress,
		CreatedAt:    entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if entry.Details != "" {
		var details map[string]any
		if json.Unmarshal([]byte(entry.Details), &details) == nil {
			a.Details = details
		}
	}
	return a
}
