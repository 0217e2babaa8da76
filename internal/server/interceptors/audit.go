package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records a security event after each
// authenticated RPC. skipMethods is the set of full method names to not audit (e.g. health
// checks, or methods whose service already records a more specific event).
// Recording is best-effort and never fails the RPC.
func AuditUnary(events audit.EventLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if events == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return resp, err
		}
		username, _ := GetUsername(ctx)
		departmentID, _ := GetDepartmentID(ctx)
		sessionID, _ := GetSessionID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		ev := audit.Event{
			Action:       ar.Action,
			Resource:     ar.Resource,
			UserID:       userID,
			Username:     username,
			DepartmentID: departmentID,
			SessionID:    sessionID,
			Success:      err == nil,
			IPAddress:    ClientIP(ctx),
			UserAgent:    UserAgent(ctx),
			Details:      map[string]any{"full_method": info.FullMethod},
		}
		if err != nil {
			ev.FailureReason = status.Code(err).String()
		}
		events.LogSecurityEvent(ctx, ev)
		return resp, err
	}
}
