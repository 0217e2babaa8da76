// Package handler exposes the security audit log and the permission gate over gRPC.
package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"multidept-session-trust/backend/internal/audit"
	"multidept-session-trust/backend/internal/audit/domain"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	"multidept-session-trust/backend/internal/permission/gate"
	"multidept-session-trust/backend/internal/platform/rbac"
	"multidept-session-trust/backend/internal/platform/rpc"
	"multidept-session-trust/backend/internal/server/interceptors"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Server implements AuditService (proto server) for audit logs.
type Server struct {
	repo    auditrepo.Repository
	events  audit.EventLogger
	checker rbac.PermissionChecker
}

// NewServer returns a new Audit gRPC server. Reads go to repo; events written by clients go
// through the same pipeline as internal ones.
func NewServer(repo auditrepo.Repository, events audit.EventLogger, checker rbac.PermissionChecker) *Server {
	return &Server{repo: repo, events: events, checker: checker}
}

// ListSecurityAuditLogs returns a page of audit entries, newest first. Filters are optional.
func (s *Server) ListSecurityAuditLogs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	page, pageSize := rpc.Page(rpc.Int(in, "page"), rpc.Int(in, "page_size"), defaultPageSize, maxPageSize)
	f := auditrepo.Filter{
		UserID:       rpc.String(in, "user_id"),
		Action:       rpc.String(in, "action"),
		DepartmentID: rpc.String(in, "department_id"),
		SessionID:    rpc.String(in, "session_id"),
	}
	// one extra row tells whether another page exists
	list, err := s.repo.List(ctx, f, int32(pageSize+1), int32((page-1)*pageSize))
	if err != nil {
		log.Error().Err(err).Msg("list audit logs")
		return nil, status.Error(codes.Internal, "internal error")
	}
	hasMore := len(list) > pageSize
	if hasMore {
		list = list[:pageSize]
	}
	items := make([]any, len(list))
	for i, a := range list {
		items[i] = entryToMap(a)
	}
	return rpc.Out(map[string]any{
		"entries":   items,
		"page":      page,
		"page_size": pageSize,
		"has_more":  hasMore,
	})
}

// GetSecurityAuditLog returns one entry by id.
func (s *Server) GetSecurityAuditLog(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := rpc.RequireString(in, "id")
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("get audit log")
		return nil, status.Error(codes.Internal, "internal error")
	}
	if a == nil {
		return nil, status.Error(codes.NotFound, "audit log not found")
	}
	return rpc.Out(entryToMap(a))
}

// LogSecurityEvent records an application event attributed to the caller. The write is queued;
// the response does not wait for persistence.
func (s *Server) LogSecurityEvent(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	action, err := rpc.RequireString(in, "action")
	if err != nil {
		return nil, err
	}
	severity := domain.Severity(rpc.String(in, "severity"))
	if severity != "" && !severity.Valid() {
		return nil, status.Error(codes.InvalidArgument, "unknown severity")
	}
	dept := rpc.String(in, "department_id")
	if dept == "" {
		dept = c.DepartmentID
	}
	var details map[string]any
	if d := rpc.Object(in, "details"); d != nil {
		details = d.AsMap()
	}
	s.events.LogSecurityEvent(ctx, audit.Event{
		Action:        action,
		Resource:      rpc.String(in, "resource"),
		UserID:        c.UserID,
		Username:      c.Username,
		DepartmentID:  dept,
		SessionID:     c.SessionID,
		Success:       rpc.Bool(in, "success"),
		FailureReason: rpc.String(in, "failure_reason"),
		Details:       details,
		Severity:      severity,
	})
	return rpc.Out(map[string]any{"accepted": true})
}

// CheckPermission answers whether the caller holds permission for department_id (default: the
// caller's own). The decision is audited like any other gate check.
func (s *Server) CheckPermission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	perm, err := rpc.RequireString(in, "permission")
	if err != nil {
		return nil, err
	}
	allowed, err := s.checker.CheckPermission(ctx, gate.CheckRequest{
		UserID:       c.UserID,
		Permission:   perm,
		DepartmentID: rpc.String(in, "department_id"),
		SessionID:    c.SessionID,
		IPAddress:    interceptors.ClientIP(ctx),
		UserAgent:    interceptors.UserAgent(ctx),
	})
	if err != nil {
		// the gate already denied and audited
		log.Warn().Err(err).Str("permission", perm).Msg("permission check failed")
	}
	return rpc.Out(map[string]any{"allowed": allowed})
}

func entryToMap(a *domain.SecurityAuditLog) map[string]any {
	var details any = a.Details
	var parsed map[string]any
	if a.Details != "" && json.Unmarshal([]byte(a.Details), &parsed) == nil {
		details = parsed
	}
	return map[string]any{
		"id":             a.ID,
		"action":         a.Action,
		"resource":       a.Resource,
		"user_id":        a.UserID,
		"username":       a.Username,
		"is_success":     a.IsSuccess,
		"failure_reason": a.FailureReason,
		"details":        details,
		"ip_address":     a.IPAddress,
		"user_agent":     a.UserAgent,
		"department_id":  a.DepartmentID,
		"session_id":     a.SessionID,
		"severity":       string(a.Severity),
		"timestamp":      rpc.Time(a.Timestamp),
	}
}
