package interceptors

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "finance", "session-1", "alice")

	if v, ok := GetUserID(ctx); !ok || v != "user-1" {
		t.Errorf("GetUserID = %q, %v", v, ok)
	}
	if v, ok := GetDepartmentID(ctx); !ok || v != "finance" {
		t.Errorf("GetDepartmentID = %q, %v", v, ok)
	}
	if v, ok := GetSessionID(ctx); !ok || v != "session-1" {
		t.Errorf("GetSessionID = %q, %v", v, ok)
	}
	if v, ok := GetUsername(ctx); !ok || v != "alice" {
		t.Errorf("GetUsername = %q, %v", v, ok)
	}
}

func TestGetters_ReturnFalseWhenNotSet(t *testing.T) {
	ctx := context.Background()
	if v, ok := GetUserID(ctx); ok || v != "" {
		t.Errorf("GetUserID = %q, %v", v, ok)
	}
	if v, ok := GetDepartmentID(ctx); ok || v != "" {
		t.Errorf("GetDepartmentID = %q, %v", v, ok)
	}
	if v, ok := GetSessionID(ctx); ok || v != "" {
		t.Errorf("GetSessionID = %q, %v", v, ok)
	}
}

func TestWithIdentity_EmptySessionIsSet(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "", "", "")
	v, ok := GetSessionID(ctx)
	if !ok {
		t.Fatal("GetSessionID should report a set (empty) value")
	}
	if v != "" {
		t.Errorf("session_id = %q, want empty", v)
	}
}
