package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"multidept-session-trust/backend/internal/platform/rpc"
)

// Full method names of AuditService.
const (
	MethodListSecurityAuditLogs = "/deptreports.audit.v1.AuditService/ListSecurityAuditLogs"
	MethodGetSecurityAuditLog   = "/deptreports.audit.v1.AuditService/GetSecurityAuditLog"
	MethodLogSecurityEvent      = "/deptreports.audit.v1.AuditService/LogSecurityEvent"
	MethodCheckPermission       = "/deptreports.audit.v1.AuditService/CheckPermission"
)

// AuditServiceServer is the server API for AuditService.
type AuditServiceServer interface {
	ListSecurityAuditLogs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSecurityAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogSecurityEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckPermission(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes AuditService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "deptreports.audit.v1.AuditService",
	HandlerType: (*AuditServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSecurityAuditLogs", Handler: rpc.Unary(MethodListSecurityAuditLogs, AuditServiceServer.ListSecurityAuditLogs)},
		{MethodName: "GetSecurityAuditLog", Handler: rpc.Unary(MethodGetSecurityAuditLog, AuditServiceServer.GetSecurityAuditLog)},
		{MethodName: "LogSecurityEvent", Handler: rpc.Unary(MethodLogSecurityEvent, AuditServiceServer.LogSecurityEvent)},
		{MethodName: "CheckPermission", Handler: rpc.Unary(MethodCheckPermission, AuditServiceServer.CheckPermission)},
	},
	Metadata: "audit/v1/audit.proto",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv AuditServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
