// Package handler exposes the session lifecycle over gRPC.
package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	permdomain "multidept-session-trust/backend/internal/permission/domain"
	"multidept-session-trust/backend/internal/platform/errs"
	"multidept-session-trust/backend/internal/platform/rbac"
	"multidept-session-trust/backend/internal/platform/rpc"
	"multidept-session-trust/backend/internal/security"
	"multidept-session-trust/backend/internal/server/interceptors"
	"multidept-session-trust/backend/internal/session/domain"
	"multidept-session-trust/backend/internal/session/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TokenIssuer issues session-bound access tokens; *security.TokenProvider implements it.
type TokenIssuer interface {
	IssueAccess(id security.Identity, notAfter time.Time) (string, time.Time, error)
}

// Server implements SessionService on top of the session manager.
type Server struct {
	sessions *service.Manager
	checker  rbac.PermissionChecker
	tokens   TokenIssuer
}

// NewServer returns a Session gRPC server. tokens may be nil, in which case CreateSession
// returns no access token.
func NewServer(sessions *service.Manager, checker rbac.PermissionChecker, tokens TokenIssuer) *Server {
	return &Server{sessions: sessions, checker: checker, tokens: tokens}
}

// CreateSession opens a session for the authenticated caller and returns an access token bound to it.
func (s *Server) CreateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	ses, err := s.sessions.CreateSession(ctx, service.CreateRequest{
		UserID:            c.UserID,
		DeviceFingerprint: rpc.String(in, "device_fingerprint"),
		IPAddress:         interceptors.ClientIP(ctx),
		UserAgent:         interceptors.UserAgent(ctx),
		RememberMe:        rpc.Bool(in, "remember_me"),
		Location:          rpc.String(in, "location"),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{"session": sessionToMap(ses)}
	if s.tokens != nil {
		token, exp, err := s.tokens.IssueAccess(security.Identity{
			UserID:       c.UserID,
			Username:     c.Username,
			DepartmentID: c.DepartmentID,
			SessionID:    ses.ID,
		}, ses.ExpiresAt)
		if err != nil {
			log.Error().Err(err).Str("user_id", c.UserID).Msg("issue session token")
			return nil, status.Error(codes.Internal, "failed to issue token")
		}
		out["access_token"] = token
		out["access_token_expires_at"] = rpc.Time(exp)
	}
	return rpc.Out(out)
}

// ValidateSession validates session_id (default: the caller's session) with the request's
// address and user agent, or with ip_address and user_agent when a gateway supplies them.
func (s *Server) ValidateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	ip := rpc.String(in, "ip_address")
	if ip == "" {
		ip = interceptors.ClientIP(ctx)
	}
	ua := rpc.String(in, "user_agent")
	if ua == "" {
		ua = interceptors.UserAgent(ctx)
	}
	res, err := s.sessions.ValidateSession(ctx, ses.ID, ip, ua)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{
		"valid":                       true,
		"risk_level":                  string(res.RiskLevel),
		"risk_reason":                 res.RiskReason,
		"requires_reauthentication":   res.RequiresReauthentication,
		"requires_mfa_reverification": res.RequiresMfaReverification,
		"session":                     sessionToMap(res.Session),
	})
}

// TerminateSession revokes session_id. Terminating an already terminated session succeeds.
func (s *Server) TerminateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := rpc.RequireString(in, "session_id")
	if err != nil {
		return nil, err
	}
	ses, err := s.owned(ctx, id, permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.TerminateSession(ctx, ses.ID, rpc.String(in, "reason"))
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"terminated": ok})
}

// TerminateOtherSessions revokes every live session of the caller except the current one
// (or keep_session_id).
func (s *Server) TerminateOtherSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	keep := rpc.String(in, "keep_session_id")
	if keep == "" {
		keep = c.SessionID
	}
	n, err := s.sessions.TerminateOtherSessions(ctx, c.UserID, keep, rpc.String(in, "reason"))
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"terminated": n})
}

// TerminateAllUserSessions revokes every live session of user_id (default: the caller).
func (s *Server) TerminateAllUserSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.RequireSelfOrPermission(ctx, s.checker, rpc.String(in, "user_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	target := rpc.String(in, "user_id")
	if target == "" {
		target = c.UserID
	}
	reason := rpc.String(in, "reason")
	if reason == "" && target == c.UserID {
		reason = domain.ReasonLogout
	}
	n, err := s.sessions.TerminateAllUserSessions(ctx, target, reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"terminated": n})
}

// ExtendSession pushes the expiry of a remember-me session.
func (s *Server) ExtendSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.ExtendSession(ctx, ses.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{"extended": ok}
	if ok {
		if updated, err := s.sessions.GetSessionDetails(ctx, ses.ID); err == nil {
			out["expires_at"] = rpc.Time(updated.ExpiresAt)
		}
	}
	return rpc.Out(out)
}

func (s *Server) CleanupExpiredSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	n, err := s.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"expired": n})
}

func (s *Server) RequiresMfaReverification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	required, err := s.sessions.RequiresMfaReverification(ctx, ses.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"required": required})
}

// UpdateMfaVerification records a completed MFA check. Only the authentication collaborator,
// which holds sessions.manage, calls it.
func (s *Server) UpdateMfaVerification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := rpc.RequireString(in, "session_id")
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.UpdateMfaVerification(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"updated": ok})
}

// GetActiveSessions lists live sessions of user_id (default: the caller), oldest first.
func (s *Server) GetActiveSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.RequireSelfOrPermission(ctx, s.checker, rpc.String(in, "user_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	target := rpc.String(in, "user_id")
	if target == "" {
		target = c.UserID
	}
	list, err := s.sessions.GetActiveSessions(ctx, target)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, len(list))
	for i, ses := range list {
		m := sessionToMap(ses)
		m["is_current"] = ses.ID == c.SessionID
		items[i] = m
	}
	return rpc.Out(map[string]any{"sessions": items})
}

func (s *Server) GetSessionDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	return rpc.Out(map[string]any{"session": sessionToMap(ses)})
}

func (s *Server) GetSessionStatistics(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.sessions.GetSessionStatistics(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{
		"total_active_sessions": st.TotalActiveSessions,
		"total_sessions":        st.TotalSessions,
		"revoked_sessions":      st.RevokedSessions,
		"expired_sessions":      st.ExpiredSessions,
		"suspicious_sessions":   st.SuspiciousSessions,
		"remember_me_sessions":  st.RememberMeSessions,
		"unique_active_users":   st.UniqueActiveUsers,
		"sessions_last_24h":     st.SessionsLast24h,
	})
}

// GetSessionActivity returns one page of a session's activity, newest first.
func (s *Server) GetSessionActivity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	page, pageSize := rpc.Page(rpc.Int(in, "page"), rpc.Int(in, "page_size"), defaultPageSize, maxPageSize)
	list, total, err := s.sessions.GetSessionActivity(ctx, ses.ID, page, pageSize)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, len(list))
	for i, a := range list {
		items[i] = activityToMap(a)
	}
	return rpc.Out(map[string]any{
		"activities": items,
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
	})
}

// RecordActivity appends an application action (e.g. "report_viewed") to a live session.
func (s *Server) RecordActivity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	activity, err := rpc.RequireString(in, "activity")
	if err != nil {
		return nil, err
	}
	ses, err := s.owned(ctx, rpc.String(in, "session_id"), permdomain.PermSessionManage)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RecordActivity(ctx, ses.ID, activity, rpc.String(in, "resource"),
		interceptors.ClientIP(ctx), interceptors.UserAgent(ctx), rpc.StringMap(in, "metadata")); err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"recorded": true})
}

// GetSessionConfiguration returns the session policy of user_id (default: the caller).
func (s *Server) GetSessionConfiguration(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.RequireSelfOrPermission(ctx, s.checker, rpc.String(in, "user_id"), permdomain.PermSessionConfigure)
	if err != nil {
		return nil, err
	}
	target := rpc.String(in, "user_id")
	if target == "" {
		target = c.UserID
	}
	cfg, err := s.sessions.GetConfiguration(ctx, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"configuration": configurationToMap(cfg)})
}

// UpdateSessionConfiguration replaces a user's session policy. Every field is taken from the
// request; omitted numeric fields are zero and fail validation.
func (s *Server) UpdateSessionConfiguration(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := rpc.RequireString(in, "user_id")
	if err != nil {
		return nil, err
	}
	cfg := &domain.SessionConfiguration{
		UserID:                         userID,
		MaxConcurrentSessions:          rpc.Int(in, "max_concurrent_sessions"),
		SessionTimeoutMinutes:          rpc.Int(in, "session_timeout_minutes"),
		ExtendedSessionTimeoutMinutes:  rpc.Int(in, "extended_session_timeout_minutes"),
		IdleTimeoutMinutes:             rpc.Int(in, "idle_timeout_minutes"),
		RequireDeviceVerification:      rpc.Bool(in, "require_device_verification"),
		EnableConcurrentSessionControl: rpc.Bool(in, "enable_concurrent_session_control"),
		AllowRememberMe:                rpc.Bool(in, "allow_remember_me"),
	}
	if err := s.sessions.PutConfiguration(ctx, cfg); err != nil {
		return nil, toStatus(err)
	}
	stored, err := s.sessions.GetConfiguration(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"configuration": configurationToMap(stored)})
}

// owned loads sessionID (default: the caller's session) and requires that it belongs to the
// caller or that the caller holds permission.
func (s *Server) owned(ctx context.Context, sessionID, permission string) (*domain.Session, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = c.SessionID
	}
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id required")
	}
	ses, err := s.sessions.GetSessionDetails(ctx, sessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	if _, err := rbac.RequireSelfOrPermission(ctx, s.checker, ses.UserID, permission); err != nil {
		return nil, err
	}
	return ses, nil
}

func toStatus(err error) error {
	st := errs.ToStatus(err)
	if status.Code(st) == codes.Internal {
		log.Error().Err(err).Msg("session service error")
	}
	return st
}

func sessionToMap(s *domain.Session) map[string]any {
	if s == nil {
		return nil
	}
	return map[string]any{
		"id":                          s.ID,
		"user_id":                     s.UserID,
		"device_fingerprint":          s.DeviceFingerprint,
		"ip_address":                  s.IPAddress,
		"user_agent":                  s.UserAgent,
		"location":                    s.Location,
		"created_at":                  rpc.Time(s.CreatedAt),
		"last_accessed_at":            rpc.Time(s.LastAccessedAt),
		"expires_at":                  rpc.Time(s.ExpiresAt),
		"is_active":                   s.IsActive,
		"is_revoked":                  s.IsRevoked,
		"revoked_at":                  rpc.TimePtr(s.RevokedAt),
		"revocation_reason":           s.RevocationReason,
		"is_suspicious":               s.IsSuspicious,
		"suspicious_reason":           s.SuspiciousReason,
		"failed_access_attempts":      s.FailedAccessAttempts,
		"is_remember_me":              s.IsRememberMe,
		"requires_mfa_reverification": s.RequiresMfaReverification,
		"last_mfa_verification":       rpc.TimePtr(s.LastMfaVerification),
	}
}

func activityToMap(a *domain.SessionActivity) map[string]any {
	meta := make(map[string]any, len(a.Metadata))
	for k, v := range a.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"id":          a.ID,
		"session_id":  a.SessionID,
		"activity":    a.Activity,
		"resource":    a.Resource,
		"ip_address":  a.IPAddress,
		"user_agent":  a.UserAgent,
		"timestamp":   rpc.Time(a.Timestamp),
		"risk_level":  string(a.RiskLevel),
		"risk_reason": a.RiskReason,
		"metadata":    meta,
	}
}

func configurationToMap(c *domain.SessionConfiguration) map[string]any {
	return map[string]any{
		"user_id":                           c.UserID,
		"max_concurrent_sessions":           c.MaxConcurrentSessions,
		"session_timeout_minutes":           c.SessionTimeoutMinutes,
		"extended_session_timeout_minutes":  c.ExtendedSessionTimeoutMinutes,
		"idle_timeout_minutes":              c.IdleTimeoutMinutes,
		"require_device_verification":       c.RequireDeviceVerification,
		"enable_concurrent_session_control": c.EnableConcurrentSessionControl,
		"allow_remember_me":                 c.AllowRememberMe,
		"updated_at":                        rpc.Time(c.UpdatedAt),
	}
}
