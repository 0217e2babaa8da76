// Package server assembles the gRPC server: services, the route table and the interceptor chain.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"multidept-session-trust/backend/internal/audit"
	audithandler "multidept-session-trust/backend/internal/audit/handler"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	devicehandler "multidept-session-trust/backend/internal/device/handler"
	deviceservice "multidept-session-trust/backend/internal/device/service"
	healthhandler "multidept-session-trust/backend/internal/health/handler"
	permdomain "multidept-session-trust/backend/internal/permission/domain"
	"multidept-session-trust/backend/internal/permission/gate"
	"multidept-session-trust/backend/internal/security"
	"multidept-session-trust/backend/internal/server/interceptors"
	sessionhandler "multidept-session-trust/backend/internal/session/handler"
	sessionservice "multidept-session-trust/backend/internal/session/service"
)

// Deps holds the collaborators behind the gRPC services.
type Deps struct {
	Sessions  *sessionservice.Manager
	Devices   *deviceservice.Engine
	Gate      *gate.Gate
	AuditRepo auditrepo.Repository
	// Events receives per-RPC audit events and client-submitted events.
	Events audit.EventLogger
	Tokens *security.TokenProvider
	// HealthPinger is used by Health.Check for readiness (e.g. *sql.DB). If nil, the DB ping is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by Health.Check (e.g. the OPA evaluator). If nil, it is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
}

// Routes returns the requirement of every registered method. The gate refuses anything not listed.
func Routes() interceptors.Routes {
	return interceptors.Routes{
		healthhandler.MethodCheck: {Public: true},
		healthhandler.MethodList:  {Public: true},

		sessionhandler.MethodCreateSession:              {SkipSession: true},
		sessionhandler.MethodValidateSession:            {SkipSession: true},
		sessionhandler.MethodTerminateSession:           {},
		sessionhandler.MethodTerminateOtherSessions:     {},
		sessionhandler.MethodTerminateAllUserSessions:   {},
		sessionhandler.MethodExtendSession:              {},
		sessionhandler.MethodCleanupExpiredSessions:     {Permission: permdomain.PermSessionManage},
		sessionhandler.MethodRequiresMfaReverification:  {},
		sessionhandler.MethodUpdateMfaVerification:      {Permission: permdomain.PermSessionManage},
		sessionhandler.MethodGetActiveSessions:          {},
		sessionhandler.MethodGetSessionDetails:          {},
		sessionhandler.MethodGetSessionStatistics:       {Permission: permdomain.PermSessionManage},
		sessionhandler.MethodGetSessionActivity:         {},
		sessionhandler.MethodRecordActivity:             {},
		sessionhandler.MethodGetSessionConfiguration:    {},
		sessionhandler.MethodUpdateSessionConfiguration: {Permission: permdomain.PermSessionConfigure},

		devicehandler.MethodRegisterFingerprint: {SkipSession: true},
		devicehandler.MethodVerifyFingerprint:   {SkipSession: true},
		devicehandler.MethodTrustDevice:         {},
		devicehandler.MethodBlockDevice:         {},
		devicehandler.MethodListDevices:         {},

		audithandler.MethodListSecurityAuditLogs: {Permission: permdomain.PermAuditRead},
		audithandler.MethodGetSecurityAuditLog:   {Permission: permdomain.PermAuditRead},
		audithandler.MethodLogSecurityEvent:      {Permission: permdomain.PermAuditWrite},
		audithandler.MethodCheckPermission:       {},
	}
}

// unaudited methods either carry their own audit trail or are noise.
var unaudited = map[string]bool{
	healthhandler.MethodCheck:            true,
	audithandler.MethodLogSecurityEvent:  true,
	audithandler.MethodCheckPermission:   true,
	sessionhandler.MethodValidateSession: true,
}

// RegisterServices registers all gRPC services with s.
//
// Service → handler mapping:
//   - SessionService → internal/session/handler
//   - DeviceService  → internal/device/handler
//   - AuditService   → internal/audit/handler
//   - grpc.health.v1 → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	sessionhandler.Register(s, sessionhandler.NewServer(deps.Sessions, deps.Gate, deps.Tokens))
	devicehandler.Register(s, devicehandler.NewServer(deps.Devices, deps.Gate))
	audithandler.Register(s, audithandler.NewServer(deps.AuditRepo, deps.Events, deps.Gate))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker,
		sessionhandler.ServiceDesc.ServiceName,
		devicehandler.ServiceDesc.ServiceName,
		audithandler.ServiceDesc.ServiceName,
	))
}

// NewServer returns a grpc.Server with tracing, the interceptor chain and all services registered.
// Order: access log, identity, session, permission gate, audit.
func NewServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	routes := Routes()
	quiet := map[string]bool{healthhandler.MethodCheck: true}
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.AccessLogUnary(quiet),
			interceptors.AuthUnary(deps.Tokens, routes),
			interceptors.SessionUnary(deps.Sessions, routes),
			interceptors.GateUnary(deps.Gate, routes),
			interceptors.AuditUnary(deps.Events, unaudited),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}
