package interceptors

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"multidept-session-trust/backend/internal/platform/errs"
	sessionservice "multidept-session-trust/backend/internal/session/service"
	"multidept-session-trust/backend/internal/telemetry"
)

// SessionValidator validates the session bound to a request; *sessionservice.Manager implements it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*sessionservice.ValidationResult, error)
}

// SessionUnary returns a unary server interceptor that validates the caller's session on every
// method that is neither Public nor SkipSession. Rejected sessions fail with a generic
// Unauthenticated. A high-risk verdict also fails and sets the x-reauth-required header;
// a pending MFA re-check sets x-mfa-required and lets the call through.
func SessionUnary(validator SessionValidator, routes Routes) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		route, _ := routes.Lookup(info.FullMethod)
		if route.Public || route.SkipSession {
			return handler(ctx, req)
		}
		userID, _ := GetUserID(ctx)
		sessionID, _ := GetSessionID(ctx)
		if userID == "" || sessionID == "" {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		res, err := validator.ValidateSession(ctx, sessionID, ClientIP(ctx), UserAgent(ctx))
		if err != nil {
			if !sessionservice.IsRejection(err) {
				log.Error().Err(err).Str("session", telemetry.ShortID(sessionID)).Str("method", info.FullMethod).Msg("session validation failed")
			}
			return nil, errs.ToStatus(err)
		}
		if res.Session == nil || res.Session.UserID != userID {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		if res.RequiresReauthentication {
			_ = grpc.SetHeader(ctx, metadata.Pairs(MDReauthRequired, "true"))
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		if res.RequiresMfaReverification {
			_ = grpc.SetHeader(ctx, metadata.Pairs(MDMfaRequired, "true"))
		}
		return handler(ctx, req)
	}
}
