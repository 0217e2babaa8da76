package interceptors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/telemetry"
)

// AccessLogUnary returns a unary server interceptor that writes one structured log line per RPC.
// skipMethods is the set of full method names to not log (e.g. health checks).
// Session ids are truncated; tokens are never logged.
func AccessLogUnary(skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		var ev *zerolog.Event
		switch code {
		case codes.OK:
			ev = log.Info()
		case codes.Internal, codes.Unknown, codes.DataLoss:
			ev = log.Error()
		default:
			ev = log.Warn()
		}
		userID, _ := GetUserID(ctx)
		sessionID, _ := GetSessionID(ctx)
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Str("client_ip", ClientIP(ctx)).
			Str("user_id", userID).
			Str("session", telemetry.ShortID(sessionID)).
			Msg("grpc request")
		return resp, err
	}
}
