package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"multidept-session-trust/backend/internal/platform/rpc"
)

// Full method names of SessionService.
const (
	MethodCreateSession              = "/deptreports.session.v1.SessionService/CreateSession"
	MethodValidateSession            = "/deptreports.session.v1.SessionService/ValidateSession"
	MethodTerminateSession           = "/deptreports.session.v1.SessionService/TerminateSession"
	MethodTerminateOtherSessions     = "/deptreports.session.v1.SessionService/TerminateOtherSessions"
	MethodTerminateAllUserSessions   = "/deptreports.session.v1.SessionService/TerminateAllUserSessions"
	MethodExtendSession              = "/deptreports.session.v1.SessionService/ExtendSession"
	MethodCleanupExpiredSessions     = "/deptreports.session.v1.SessionService/CleanupExpiredSessions"
	MethodRequiresMfaReverification  = "/deptreports.session.v1.SessionService/RequiresMfaReverification"
	MethodUpdateMfaVerification      = "/deptreports.session.v1.SessionService/UpdateMfaVerification"
	MethodGetActiveSessions          = "/deptreports.session.v1.SessionService/GetActiveSessions"
	MethodGetSessionDetails          = "/deptreports.session.v1.SessionService/GetSessionDetails"
	MethodGetSessionStatistics       = "/deptreports.session.v1.SessionService/GetSessionStatistics"
	MethodGetSessionActivity         = "/deptreports.session.v1.SessionService/GetSessionActivity"
	MethodRecordActivity             = "/deptreports.session.v1.SessionService/RecordActivity"
	MethodGetSessionConfiguration    = "/deptreports.session.v1.SessionService/GetSessionConfiguration"
	MethodUpdateSessionConfiguration = "/deptreports.session.v1.SessionService/UpdateSessionConfiguration"
)

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TerminateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TerminateOtherSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TerminateAllUserSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtendSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CleanupExpiredSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequiresMfaReverification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateMfaVerification(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetActiveSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSessionDetails(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSessionStatistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSessionActivity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordActivity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSessionConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSessionConfiguration(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes SessionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "deptreports.session.v1.SessionService",
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: rpc.Unary(MethodCreateSession, SessionServiceServer.CreateSession)},
		{MethodName: "ValidateSession", Handler: rpc.Unary(MethodValidateSession, SessionServiceServer.ValidateSession)},
		{MethodName: "TerminateSession", Handler: rpc.Unary(MethodTerminateSession, SessionServiceServer.TerminateSession)},
		{MethodName: "TerminateOtherSessions", Handler: rpc.Unary(MethodTerminateOtherSessions, SessionServiceServer.TerminateOtherSessions)},
		{MethodName: "TerminateAllUserSessions", Handler: rpc.Unary(MethodTerminateAllUserSessions, SessionServiceServer.TerminateAllUserSessions)},
		{MethodName: "ExtendSession", Handler: rpc.Unary(MethodExtendSession, SessionServiceServer.ExtendSession)},
		{MethodName: "CleanupExpiredSessions", Handler: rpc.Unary(MethodCleanupExpiredSessions, SessionServiceServer.CleanupExpiredSessions)},
		{MethodName: "RequiresMfaReverification", Handler: rpc.Unary(MethodRequiresMfaReverification, SessionServiceServer.RequiresMfaReverification)},
		{MethodName: "UpdateMfaVerification", Handler: rpc.Unary(MethodUpdateMfaVerification, SessionServiceServer.UpdateMfaVerification)},
		{MethodName: "GetActiveSessions", Handler: rpc.Unary(MethodGetActiveSessions, SessionServiceServer.GetActiveSessions)},
		{MethodName: "GetSessionDetails", Handler: rpc.Unary(MethodGetSessionDetails, SessionServiceServer.GetSessionDetails)},
		{MethodName: "GetSessionStatistics", Handler: rpc.Unary(MethodGetSessionStatistics, SessionServiceServer.GetSessionStatistics)},
		{MethodName: "GetSessionActivity", Handler: rpc.Unary(MethodGetSessionActivity, SessionServiceServer.GetSessionActivity)},
		{MethodName: "RecordActivity", Handler: rpc.Unary(MethodRecordActivity, SessionServiceServer.RecordActivity)},
		{MethodName: "GetSessionConfiguration", Handler: rpc.Unary(MethodGetSessionConfiguration, SessionServiceServer.GetSessionConfiguration)},
		{MethodName: "UpdateSessionConfiguration", Handler: rpc.Unary(MethodUpdateSessionConfiguration, SessionServiceServer.UpdateSessionConfiguration)},
	},
	Metadata: "session/v1/session.proto",
}

// Register registers srv with s.
func Register(s grpc.ServiceRegistrar, srv SessionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
