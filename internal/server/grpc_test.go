package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"multidept-session-trust/backend/internal/audit"
	audithandler "multidept-session-trust/backend/internal/audit/handler"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	devicerepo "multidept-session-trust/backend/internal/device/repository"
	deviceservice "multidept-session-trust/backend/internal/device/service"
	permdomain "multidept-session-trust/backend/internal/permission/domain"
	"multidept-session-trust/backend/internal/permission/engine"
	"multidept-session-trust/backend/internal/permission/gate"
	permrepo "multidept-session-trust/backend/internal/permission/repository"
	"multidept-session-trust/backend/internal/platform/rpc"
	"multidept-session-trust/backend/internal/security"
	"multidept-session-trust/backend/internal/server/interceptors"
	sessionhandler "multidept-session-trust/backend/internal/session/handler"
	"multidept-session-trust/backend/internal/session/lock"
	sessionrepo "multidept-session-trust/backend/internal/session/repository"
	sessionservice "multidept-session-trust/backend/internal/session/service"
	userdomain "multidept-session-trust/backend/internal/user/domain"
	userrepo "multidept-session-trust/backend/internal/user/repository"
)

type stack struct {
	conn   *grpc.ClientConn
	tokens *security.TokenProvider
	audits *auditrepo.MemoryRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	users := userrepo.NewMemoryRepository()
	require.NoError(t, users.Upsert(ctx, &userdomain.User{ID: "u1", Username: "alice", DepartmentID: "finance", IsActive: true}))
	require.NoError(t, users.Upsert(ctx, &userdomain.User{ID: "aud", Username: "auditor", DepartmentID: "it", IsActive: true}))

	perms := permrepo.NewMemoryRepository()
	require.NoError(t, perms.UpsertPermission(ctx, &permdomain.Permission{Name: permdomain.PermAuditRead}))
	require.NoError(t, perms.GrantRolePermission(ctx, "auditor", permdomain.PermAuditRead))
	require.NoError(t, perms.AssignRole(ctx, "aud", "auditor"))

	audits := auditrepo.NewMemoryRepository()
	sink := audit.NewSink(audits, nil, audit.SinkOptions{Capacity: 256, Workers: 2})
	t.Cleanup(func() { _ = sink.Close(context.Background()) })
	events := audit.NewLogger(sink, interceptors.ClientIP, interceptors.UserAgent)

	devices := deviceservice.NewEngine(devicerepo.NewMemoryRepository(), events)
	mgr := sessionservice.NewManager(
		sessionrepo.NewMemoryRepository(),
		sessionrepo.NewMemoryActivityRepository(),
		sessionrepo.NewMemoryConfigurationRepository(),
		users, devices, lock.NewMemoryLocker(), events,
		sessionservice.Options{},
	)
	evaluator, err := engine.NewOPAEvaluator(ctx)
	require.NoError(t, err)
	g := gate.New(users, perms, evaluator, events, gate.WithFailureRecorder(mgr))

	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)

	srv := NewServer(Deps{
		Sessions:            mgr,
		Devices:             devices,
		Gate:                g,
		AuditRepo:           audits,
		Events:              events,
		Tokens:              tokens,
		HealthPolicyChecker: evaluator,
	})
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &stack{conn: conn, tokens: tokens, audits: audits}
}

func bearer(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(),
		"authorization", "Bearer "+token,
		interceptors.MDClientUserAgent, "Firefox/130")
}

// login issues the pre-session token an identity provider would, then opens a session.
func (s *stack) login(t *testing.T, userID, username, dept string) string {
	t.Helper()
	pre, _, err := s.tokens.IssueAccess(security.Identity{UserID: userID, Username: username, DepartmentID: dept}, time.Time{})
	require.NoError(t, err)
	out, err := rpc.Invoke(bearer(pre), s.conn, sessionhandler.MethodCreateSession, map[string]any{})
	require.NoError(t, err)
	token := rpc.String(out, "access_token")
	require.NotEmpty(t, token)
	return token
}

func TestEndToEnd_SessionLifecycle(t *testing.T) {
	s := newStack(t)
	token := s.login(t, "u1", "alice", "finance")

	out, err := rpc.Invoke(bearer(token), s.conn, sessionhandler.MethodGetActiveSessions, map[string]any{})
	require.NoError(t, err)
	list := out.GetFields()["sessions"].GetListValue().GetValues()
	require.Len(t, list, 1)
	assert.True(t, rpc.Bool(list[0].GetStructValue(), "is_current"))

	_, err = rpc.Invoke(context.Background(), s.conn, sessionhandler.MethodGetActiveSessions, map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = rpc.Invoke(bearer(token), s.conn, sessionhandler.MethodTerminateSession, map[string]any{})
	require.NoError(t, err)

	_, err = rpc.Invoke(bearer(token), s.conn, sessionhandler.MethodGetActiveSessions, map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Equal(t, "unauthorized", status.Convert(err).Message())
}

func TestEndToEnd_PreSessionTokenOnlyOpensSessions(t *testing.T) {
	s := newStack(t)
	pre, _, err := s.tokens.IssueAccess(security.Identity{UserID: "u1", Username: "alice", DepartmentID: "finance"}, time.Time{})
	require.NoError(t, err)

	_, err = rpc.Invoke(bearer(pre), s.conn, sessionhandler.MethodGetActiveSessions, map[string]any{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestEndToEnd_GateAndAudit(t *testing.T) {
	s := newStack(t)
	user := s.login(t, "u1", "alice", "finance")
	auditor := s.login(t, "aud", "auditor", "it")

	_, err := rpc.Invoke(bearer(user), s.conn, audithandler.MethodListSecurityAuditLogs, map[string]any{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	require.Eventually(t, func() bool {
		list, err := s.audits.List(context.Background(), auditrepo.Filter{UserID: "u1", Action: gate.ActionPermissionCheck}, 10, 0)
		return err == nil && len(list) == 1
	}, 3*time.Second, 10*time.Millisecond)
	out, err := rpc.Invoke(bearer(auditor), s.conn, audithandler.MethodListSecurityAuditLogs, map[string]any{
		"user_id": "u1",
		"action":  gate.ActionPermissionCheck,
	})
	require.NoError(t, err)
	entries := out.GetFields()["entries"].GetListValue().GetValues()
	require.Len(t, entries, 1)
	denied := entries[0].GetStructValue()
	assert.False(t, rpc.Bool(denied, "is_success"))
	assert.Equal(t, permdomain.PermAuditRead, rpc.String(denied, "resource"))

	out, err = rpc.Invoke(bearer(user), s.conn, audithandler.MethodCheckPermission, map[string]any{"permission": permdomain.PermAuditRead})
	require.NoError(t, err)
	assert.False(t, rpc.Bool(out, "allowed"))
}

func TestEndToEnd_HealthIsPublic(t *testing.T) {
	s := newStack(t)
	resp, err := healthpb.NewHealthClient(s.conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRoutes_CoverEveryRegisteredMethod(t *testing.T) {
	s := grpc.NewServer()
	RegisterServices(s, Deps{})
	routes := Routes()

	for name, info := range s.GetServiceInfo() {
		for _, m := range info.Methods {
			full := "/" + name + "/" + m.Name
			if m.IsServerStream || m.IsClientStream {
				continue
			}
			_, ok := routes.Lookup(full)
			assert.True(t, ok, "no route for %s", full)
		}
	}
}
