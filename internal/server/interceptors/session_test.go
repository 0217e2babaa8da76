package interceptors

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/platform/errs"
	"multidept-session-trust/backend/internal/session/domain"
	sessionservice "multidept-session-trust/backend/internal/session/service"
)

type fakeValidator struct {
	res   *sessionservice.ValidationResult
	err   error
	calls int
	gotIP string
}

func (f *fakeValidator) ValidateSession(_ context.Context, sessionID, ip, _ string) (*sessionservice.ValidationResult, error) {
	f.calls++
	f.gotIP = ip
	return f.res, f.err
}

func live(userID string) *sessionservice.ValidationResult {
	return &sessionservice.ValidationResult{Session: &domain.Session{ID: "session-1", UserID: userID}, RiskLevel: domain.RiskLow}
}

func callerCtx() context.Context {
	return WithIdentity(context.Background(), "user-1", "finance", "session-1", "alice")
}

func TestSessionUnary_SkipsPublicAndSessionless(t *testing.T) {
	v := &fakeValidator{err: errs.ErrRevoked}
	interceptor := SessionUnary(v, testRoutes)
	for _, m := range []string{"/test.Service/Public", "/test.Service/NoSession"} {
		if _, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: m}, okHandler); err != nil {
			t.Errorf("%s: %v", m, err)
		}
	}
	if v.calls != 0 {
		t.Errorf("validator called %d times", v.calls)
	}
}

func TestSessionUnary_RequiresSessionInToken(t *testing.T) {
	interceptor := SessionUnary(&fakeValidator{res: live("user-1")}, testRoutes)
	ctx := WithIdentity(context.Background(), "user-1", "finance", "", "alice")
	_, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestSessionUnary_ValidSession(t *testing.T) {
	v := &fakeValidator{res: live("user-1")}
	interceptor := SessionUnary(v, testRoutes)
	resp, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler)
	if err != nil || resp != "success" {
		t.Fatalf("interceptor = %v, %v", resp, err)
	}
	if v.calls != 1 {
		t.Errorf("validator calls = %d, want 1", v.calls)
	}
	if v.gotIP != "unknown" {
		t.Errorf("ip = %q", v.gotIP)
	}
}

func TestSessionUnary_RejectionsAreGeneric(t *testing.T) {
	for _, e := range []error{errs.ErrExpired, errs.ErrRevoked, errs.ErrBlocked, errs.ErrNotFound} {
		interceptor := SessionUnary(&fakeValidator{err: e}, testRoutes)
		_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler)
		st, _ := status.FromError(err)
		if st.Code() != codes.Unauthenticated || st.Message() != "unauthorized" {
			t.Errorf("%v: status = %v %q", e, st.Code(), st.Message())
		}
	}

	interceptor := SessionUnary(&fakeValidator{err: errors.New("db down")}, testRoutes)
	_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler)
	if status.Code(err) != codes.Internal {
		t.Errorf("infrastructure error code = %v, want Internal", status.Code(err))
	}
}

func TestSessionUnary_SessionOfAnotherUser(t *testing.T) {
	interceptor := SessionUnary(&fakeValidator{res: live("user-2")}, testRoutes)
	_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}

func TestSessionUnary_HighRiskStopsTheCall(t *testing.T) {
	res := live("user-1")
	res.RiskLevel = domain.RiskHigh
	res.RequiresReauthentication = true
	interceptor := SessionUnary(&fakeValidator{res: res}, testRoutes)

	called := false
	_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
	if called {
		t.Error("handler ran for a session that needs re-authentication")
	}
}

func TestSessionUnary_PendingMfaProceeds(t *testing.T) {
	res := live("user-1")
	res.RequiresMfaReverification = true
	interceptor := SessionUnary(&fakeValidator{res: res}, testRoutes)
	if _, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Protected"}, okHandler); err != nil {
		t.Errorf("interceptor: %v", err)
	}
}
