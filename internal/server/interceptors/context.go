package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey       = contextKey{"user_id"}
	usernameKey     = contextKey{"username"}
	departmentIDKey = contextKey{"department_id"}
	sessionIDKey    = contextKey{"session_id"}
)

// WithIdentity returns a context with user_id, department_id, session_id and username set.
// Handlers and the gate read these via GetUserID, GetDepartmentID, GetSessionID, GetUsername.
func WithIdentity(ctx context.Context, userID, departmentID, sessionID, username string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, departmentIDKey, departmentID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, usernameKey, username)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetDepartmentID returns the caller's department from context and true if set; otherwise "", false.
func GetDepartmentID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(departmentIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

func GetUsername(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(usernameKey).(string)
	return v, ok
}
