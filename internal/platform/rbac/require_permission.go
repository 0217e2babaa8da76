// Package rbac holds handler-level authorization helpers on top of the permission gate.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/permission/gate"
	"multidept-session-trust/backend/internal/server/interceptors"
)

// PermissionChecker answers authorization questions; *gate.Gate implements it.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, req gate.CheckRequest) (bool, error)
}

// Caller is the authenticated identity taken from the request context.
type Caller struct {
	UserID       string
	DepartmentID string
	SessionID    string
	Username     string
}

// CallerFrom returns the caller identity or a gRPC Unauthenticated error when no user is set.
func CallerFrom(ctx context.Context) (Caller, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return Caller{}, status.Error(codes.Unauthenticated, "unauthorized")
	}
	c := Caller{UserID: userID}
	c.DepartmentID, _ = interceptors.GetDepartmentID(ctx)
	c.SessionID, _ = interceptors.GetSessionID(ctx)
	c.Username, _ = interceptors.GetUsername(ctx)
	return c, nil
}

// RequirePermission ensures the caller holds permission for departmentID (empty means the
// caller's own department). Returns the caller on success; returns a gRPC error
// (Unauthenticated or PermissionDenied) on failure.
func RequirePermission(ctx context.Context, checker PermissionChecker, permission, departmentID string) (Caller, error) {
	c, err := CallerFrom(ctx)
	if err != nil {
		return Caller{}, err
	}
	allowed, _ := checker.CheckPermission(ctx, gate.CheckRequest{
		UserID:       c.UserID,
		Permission:   permission,
		DepartmentID: departmentID,
		SessionID:    c.SessionID,
		IPAddress:    interceptors.ClientIP(ctx),
		UserAgent:    interceptors.UserAgent(ctx),
	})
	if !allowed {
		return Caller{}, status.Error(codes.PermissionDenied, "forbidden")
	}
	return c, nil
}

// RequireSelfOrPermission lets callers act on their own resources freely and requires
// permission to act on another user's. An empty targetUserID means the caller.
func RequireSelfOrPermission(ctx context.Context, checker PermissionChecker, targetUserID, permission string) (Caller, error) {
	c, err := CallerFrom(ctx)
	if err != nil {
		return Caller{}, err
	}
	if targetUserID == "" || targetUserID == c.UserID {
		return c, nil
	}
	return RequirePermission(ctx, checker, permission, "")
}
