// Package rpc carries the request plumbing shared by the gRPC services. Messages are
// google.protobuf.Struct values, so services are declared with plain grpc.ServiceDesc tables
// and need no generated stubs.
package rpc

import (
	"context"
	"math"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Unary adapts a Struct-in, Struct-out method to a grpc.MethodHandler. fn is usually a method
// expression on the service interface, such as SessionServiceServer.CreateSession.
func Unary[S any](fullMethod string, fn func(S, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(S)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Invoke calls a Struct-based unary method on cc.
func Invoke(ctx context.Context, cc grpc.ClientConnInterface, fullMethod string, in map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, fullMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// String returns the string field key, or "".
func String(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

// RequireString returns the string field key or an InvalidArgument error when it is empty.
func RequireString(in *structpb.Struct, key string) (string, error) {
	v := String(in, key)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s required", key)
	}
	return v, nil
}

func Bool(in *structpb.Struct, key string) bool {
	return in.GetFields()[key].GetBoolValue()
}

// Int returns the numeric field key truncated to an int. Missing, out of range and
// non-numeric values yield 0.
func Int(in *structpb.Struct, key string) int {
	f := in.GetFields()[key].GetNumberValue()
	if math.IsNaN(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0
	}
	return int(f)
}

// Has reports whether key is present in the message.
func Has(in *structpb.Struct, key string) bool {
	_, ok := in.GetFields()[key]
	return ok
}

// Object returns the nested message at key, or nil.
func Object(in *structpb.Struct, key string) *structpb.Struct {
	return in.GetFields()[key].GetStructValue()
}

// Strings returns the string elements of the list at key; other elements are skipped.
func Strings(in *structpb.Struct, key string) []string {
	vals := in.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out = append(out, s.StringValue)
		}
	}
	return out
}

// StringMap returns the string-valued entries of the nested message at key.
func StringMap(in *structpb.Struct, key string) map[string]string {
	obj := Object(in, key)
	if obj == nil {
		return nil
	}
	out := make(map[string]string, len(obj.GetFields()))
	for k, v := range obj.GetFields() {
		if s, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out[k] = s.StringValue
		}
	}
	return out
}

// Out builds a response message. Values must be JSON-like: strings, bools, numbers, nil,
// []any and map[string]any.
func Out(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// Time formats t as RFC 3339 in UTC; the zero time becomes "".
func Time(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// TimePtr is Time for optional timestamps; nil becomes nil.
func TimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Time(*t)
}

// Page clamps 1-based paging parameters. page is capped so that (page-1)*pageSize still fits
// in an int32 row offset.
func Page(page, pageSize, def, max int) (int, int) {
	if pageSize <= 0 {
		pageSize = def
	}
	if pageSize > max {
		pageSize = max
	}
	if page < 1 {
		page = 1
	}
	if last := math.MaxInt32 / pageSize; page > last {
		page = last
	}
	return page, pageSize
}
