package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// Metadata keys read from incoming requests.
const (
	// MDClientUserAgent carries the end-user's browser user agent when a gateway fronts the client.
	MDClientUserAgent = "x-client-user-agent"
	// MDDepartmentID names the department a request targets.
	MDDepartmentID = "x-department-id"
	// MDReauthRequired and MDMfaRequired are response headers set by the session interceptor.
	MDReauthRequired = "x-reauth-required"
	MDMfaRequired    = "x-mfa-required"
)

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns the forwarded client user agent, falling back to the gRPC user-agent header.
func UserAgent(ctx context.Context) string {
	return firstMD(ctx, MDClientUserAgent, "user-agent")
}

// TargetDepartment returns the department named by the request, or "" for the caller's own.
func TargetDepartment(ctx context.Context) string {
	return firstMD(ctx, MDDepartmentID)
}

func firstMD(ctx context.Context, keys ...string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, k := range keys {
		if vals := md.Get(k); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	return ""
}
