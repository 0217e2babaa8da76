package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/permission/gate"
)

// PermissionChecker answers authorization questions; *gate.Gate implements it.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, req gate.CheckRequest) (bool, error)
}

// GateUnary returns a unary server interceptor that enforces each method's required permission
// for the department named in x-department-id. Methods missing from routes are refused.
// Lookup or policy failures deny.
func GateUnary(checker PermissionChecker, routes Routes) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		route, ok := routes.Lookup(info.FullMethod)
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		if route.Public || route.Permission == "" {
			return handler(ctx, req)
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		sessionID, _ := GetSessionID(ctx)
		allowed, _ := checker.CheckPermission(ctx, gate.CheckRequest{
			UserID:       userID,
			Permission:   route.Permission,
			DepartmentID: TargetDepartment(ctx),
			SessionID:    sessionID,
			IPAddress:    ClientIP(ctx),
			UserAgent:    UserAgent(ctx),
		})
		if !allowed {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return handler(ctx, req)
	}
}
