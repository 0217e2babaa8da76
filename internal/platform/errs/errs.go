// Package errs holds the error taxonomy shared by the session, device, permission and audit components.
package errs

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound is returned when a session, user or device does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExpired is returned when a session is past its expiry or idle limit.
	ErrExpired = errors.New("session expired")
	// ErrRevoked is returned when a session has been terminated.
	ErrRevoked = errors.New("session revoked")
	// ErrLimitExceeded is returned when the concurrent session limit cannot be enforced.
	ErrLimitExceeded = errors.New("concurrent session limit exceeded")
	// ErrBlocked is returned when the device fingerprint is blocked for the user.
	ErrBlocked = errors.New("device blocked")
	// ErrSuspiciousActivity is returned when the detector refuses the request.
	ErrSuspiciousActivity = errors.New("suspicious activity")
	// ErrInvalidConfiguration is returned when a session configuration fails validation.
	ErrInvalidConfiguration = errors.New("invalid session configuration")
	// ErrSinkUnavailable is reported when an audit event could not be persisted.
	ErrSinkUnavailable = errors.New("audit sink unavailable")
)

// ToStatus maps an error to a gRPC status error. Lifecycle and trust failures collapse into
// generic Unauthenticated or PermissionDenied responses so that callers cannot tell why a
// session was refused; the specific reason lives only in the audit log.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrRevoked),
		errors.Is(err, ErrBlocked):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrSuspiciousActivity):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, ErrInvalidConfiguration):
		return status.Error(codes.InvalidArgument, "invalid session configuration")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
