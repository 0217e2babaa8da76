// Package handler exposes the device trust engine over gRPC.
package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"multidept-session-trust/backend/internal/device/domain"
	"multidept-session-trust/backend/internal/device/service"
	permdomain "multidept-session-trust/backend/internal/permission/domain"
	"multidept-session-trust/backend/internal/platform/errs"
	"multidept-session-trust/backend/internal/platform/rbac"
	"multidept-session-trust/backend/internal/platform/rpc"
)

// Server implements DeviceService (proto server) for device trust.
type Server struct {
	engine  *service.Engine
	checker rbac.PermissionChecker
}

// NewServer returns a new Device gRPC server.
func NewServer(engine *service.Engine, checker rbac.PermissionChecker) *Server {
	return &Server{engine: engine, checker: checker}
}

// RegisterFingerprint records the caller's device from its attributes and returns its hash.
func (s *Server) RegisterFingerprint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	attrs := rpc.Object(in, "fingerprint")
	if attrs == nil {
		return nil, status.Error(codes.InvalidArgument, "fingerprint required")
	}
	id, hash, err := s.engine.RegisterFingerprint(ctx, fingerprintFromStruct(attrs), c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	trusted, err := s.engine.IsTrusted(ctx, hash, c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	blocked, err := s.engine.IsBlocked(ctx, hash, c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{
		"fingerprint_id":   id,
		"fingerprint_hash": hash,
		"is_trusted":       trusted,
		"is_blocked":       blocked,
	})
}

// VerifyFingerprint reports whether a device is known to the caller. The device is named by
// fingerprint_hash or by its attributes under fingerprint.
func (s *Server) VerifyFingerprint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := rbac.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := hashFrom(in)
	if err != nil {
		return nil, err
	}
	known, err := s.engine.VerifyFingerprint(ctx, hash, c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	trusted, err := s.engine.IsTrusted(ctx, hash, c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	blocked, err := s.engine.IsBlocked(ctx, hash, c.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{
		"fingerprint_hash": hash,
		"known":            known,
		"is_trusted":       trusted,
		"is_blocked":       blocked,
	})
}

// TrustDevice marks a device trusted for user_id (default: the caller).
func (s *Server) TrustDevice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.target(ctx, in)
	if err != nil {
		return nil, err
	}
	hash, err := rpc.RequireString(in, "fingerprint_hash")
	if err != nil {
		return nil, err
	}
	ok, err := s.engine.TrustDevice(ctx, hash, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"trusted": ok})
}

// BlockDevice blocks a device for user_id (default: the caller). Sessions opened from the device
// are terminated on their next validation.
func (s *Server) BlockDevice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.target(ctx, in)
	if err != nil {
		return nil, err
	}
	hash, err := rpc.RequireString(in, "fingerprint_hash")
	if err != nil {
		return nil, err
	}
	reason := rpc.String(in, "reason")
	if reason == "" {
		reason = "blocked by user"
	}
	ok, err := s.engine.BlockDevice(ctx, hash, userID, reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return rpc.Out(map[string]any{"blocked": ok})
}

// ListDevices returns the devices of user_id (default: the caller), most recently seen first.
func (s *Server) ListDevices(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := s.target(ctx, in)
	if err != nil {
		return nil, err
	}
	list, err := s.engine.ListDevices(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]any, len(list))
	for i, d := range list {
		items[i] = deviceToMap(d)
	}
	return rpc.Out(map[string]any{"devices": items})
}

func (s *Server) target(ctx context.Context, in *structpb.Struct) (string, error) {
	target := rpc.String(in, "user_id")
	c, err := rbac.RequireSelfOrPermission(ctx, s.checker, target, permdomain.PermDeviceManage)
	if err != nil {
		return "", err
	}
	if target == "" {
		target = c.UserID
	}
	return target, nil
}

func hashFrom(in *structpb.Struct) (string, error) {
	if h := rpc.String(in, "fingerprint_hash"); h != "" {
		return h, nil
	}
	if attrs := rpc.Object(in, "fingerprint"); attrs != nil {
		return domain.ComputeHash(fingerprintFromStruct(attrs)), nil
	}
	return "", status.Error(codes.InvalidArgument, "fingerprint_hash or fingerprint required")
}

func fingerprintFromStruct(in *structpb.Struct) domain.FingerprintData {
	return domain.FingerprintData{
		ScreenResolution: rpc.String(in, "screen_resolution"),
		Timezone:         rpc.String(in, "timezone"),
		Language:         rpc.String(in, "language"),
		Platform:         rpc.String(in, "platform"),
		Plugins:          rpc.Strings(in, "plugins"),
		ColorDepth:       rpc.Int(in, "color_depth"),
		UserAgent:        rpc.String(in, "user_agent"),
	}
}

// toStatus maps device errors. A missing or blocked device is reported as such.
func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "device not found")
	case errors.Is(err, errs.ErrBlocked):
		return status.Error(codes.FailedPrecondition, "device blocked")
	case errors.Is(err, service.ErrUserRequired):
		return status.Error(codes.InvalidArgument, "user_id required")
	}
	log.Error().Err(err).Msg("device service error")
	return status.Error(codes.Internal, "internal error")
}

func deviceToMap(d *domain.DeviceFingerprint) map[string]any {
	plugins := make([]any, len(d.Attributes.Plugins))
	for i, p := range d.Attributes.Plugins {
		plugins[i] = p
	}
	return map[string]any{
		"id":               d.ID,
		"fingerprint_hash": d.FingerprintHash,
		"user_id":          d.UserID,
		"attributes": map[string]any{
			"screen_resolution": d.Attributes.ScreenResolution,
			"timezone":          d.Attributes.Timezone,
			"language":          d.Attributes.Language,
			"platform":          d.Attributes.Platform,
			"plugins":           plugins,
			"color_depth":       d.Attributes.ColorDepth,
			"user_agent":        d.Attributes.UserAgent,
		},
		"first_seen":     rpc.Time(d.FirstSeen),
		"last_seen":      rpc.Time(d.LastSeen),
		"is_trusted":     d.IsTrusted,
		"is_blocked":     d.IsBlocked,
		"blocked_reason": d.BlockedReason,
		"blocked_at":     rpc.TimePtr(d.BlockedAt),
	}
}
