package interceptors

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/permission/gate"
)

type fakeChecker struct {
	allow bool
	err   error
	got   []gate.CheckRequest
}

func (f *fakeChecker) CheckPermission(_ context.Context, req gate.CheckRequest) (bool, error) {
	f.got = append(f.got, req)
	return f.allow, f.err
}

func TestGateUnary_NoPermissionRequired(t *testing.T) {
	c := &fakeChecker{}
	interceptor := GateUnary(c, testRoutes)
	for _, m := range []string{"/test.Service/Public", "/test.Service/Protected"} {
		if _, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: m}, okHandler); err != nil {
			t.Errorf("%s: %v", m, err)
		}
	}
	if len(c.got) != 0 {
		t.Errorf("checker called %d times", len(c.got))
	}
}

func TestGateUnary_UnknownMethodRefused(t *testing.T) {
	interceptor := GateUnary(&fakeChecker{allow: true}, testRoutes)
	_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Unlisted"}, okHandler)
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
}

func TestGateUnary_ChecksTargetDepartment(t *testing.T) {
	c := &fakeChecker{allow: true}
	interceptor := GateUnary(c, testRoutes)
	ctx := metadata.NewIncomingContext(callerCtx(), metadata.Pairs(MDDepartmentID, "hr", "x-real-ip", "10.1.1.1"))

	if _, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Restricted"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(c.got) != 1 {
		t.Fatalf("checker calls = %d, want 1", len(c.got))
	}
	want := gate.CheckRequest{UserID: "user-1", Permission: "reports.read", DepartmentID: "hr", SessionID: "session-1", IPAddress: "10.1.1.1"}
	if c.got[0] != want {
		t.Errorf("request = %+v, want %+v", c.got[0], want)
	}
}

func TestGateUnary_Denials(t *testing.T) {
	tests := []struct {
		name    string
		checker *fakeChecker
	}{
		{"denied", &fakeChecker{}},
		{"evaluation error", &fakeChecker{allow: false, err: errors.New("policy unavailable")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := GateUnary(tt.checker, testRoutes)
			_, err := interceptor(callerCtx(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Restricted"}, okHandler)
			st, _ := status.FromError(err)
			if st.Code() != codes.PermissionDenied || st.Message() != "forbidden" {
				t.Errorf("status = %v %q", st.Code(), st.Message())
			}
		})
	}
}

func TestGateUnary_RequiresIdentity(t *testing.T) {
	interceptor := GateUnary(&fakeChecker{allow: true}, testRoutes)
	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/test.Service/Restricted"}, okHandler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}
