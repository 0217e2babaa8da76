// Package lock serializes session creation per user so the concurrent-session limit holds
// under parallel logins.
package lock

import "context"

// Locker acquires a mutual-exclusion lock for key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
