package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidept-session-trust/backend/internal/audit"
	"multidept-session-trust/backend/internal/audit/domain"
)

var _ audit.Notifier = (*KafkaNotifier)(nil)

func critical() *domain.SecurityAuditLog {
	return &domain.SecurityAuditLog{
		ID:           "a1",
		Action:       "session_terminated",
		UserID:       "u1",
		DepartmentID: "finance",
		SessionID:    "s1",
		Severity:     domain.SeverityCritical,
		Details:      `{"reason":"device blocked"}`,
		IPAddress:    "10.0.0.1",
		Timestamp:    time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewKafkaNotifier_DisabledWithoutBrokers(t *testing.T) {
	assert.Nil(t, NewKafkaNotifier(nil, "alerts"))
	assert.Nil(t, NewKafkaNotifier([]string{"localhost:9092"}, ""))

	var n *KafkaNotifier
	assert.NoError(t, n.Notify(context.Background(), critical()))
	assert.NoError(t, n.Close())
}

func TestMessage(t *testing.T) {
	msg, err := message(critical())
	require.NoError(t, err)
	assert.Equal(t, "u1", string(msg.Key))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "critical", string(msg.Headers[1].Value))

	var a Alert
	require.NoError(t, json.Unmarshal(msg.Value, &a))
	assert.Equal(t, "session_terminated", a.Action)
	assert.Equal(t, "finance", a.DepartmentID)
	assert.Equal(t, "2026-04-01T08:00:00Z", a.CreatedAt)
	assert.Equal(t, "device blocked", a.Details["reason"])
}

func TestMessage_AnonymousKeyedByID(t *testing.T) {
	e := critical()
	e.UserID = ""
	e.Details = "not json"
	msg, err := message(e)
	require.NoError(t, err)
	assert.Equal(t, "a1", string(msg.Key))

	var a Alert
	require.NoError(t, json.Unmarshal(msg.Value, &a))
	assert.Nil(t, a.Details)
}
