package domain

// SessionStatistics is an aggregate snapshot over all sessions.
type SessionStatistics struct {
	TotalActiveSessions int
	TotalSessions       int
	RevokedSessions     int
	ExpiredSessions     int
	SuspiciousSessions  int
	RememberMeSessions  int // active remember-me sessions
	UniqueActiveUsers   int
	SessionsLast24h     int
}
