// Package detector classifies a single session access by risk. It is pure: the caller gathers
// the inputs and acts on the verdict.
package detector

import (
	"strings"
	"time"

	"multidept-session-trust/backend/internal/session/domain"
)

// Reasons reported for each rule.
const (
	ReasonIPChange       = "ip change"
	ReasonDeviceMismatch = "device mismatch"
	ReasonFailedAttempts = "repeated failures"
	ReasonBlockedDevice  = "blocked device"
	reasonIncompletePfx  = "incomplete data: "
)

// Thresholds are the tunable limits of the rules.
type Thresholds struct {
	// IPChangeWindow: an address change counts as suspicious when the previous address was
	// last seen less than this long ago.
	IPChangeWindow time.Duration
	// FailedAttemptThreshold: this many failed access attempts on the session raise high risk.
	FailedAttemptThreshold int
}

// DefaultThresholds returns the limits used when configuration leaves them unset.
func DefaultThresholds() Thresholds {
	return Thresholds{IPChangeWindow: 30 * time.Minute, FailedAttemptThreshold: 5}
}

// Input is everything the detector looks at for one access.
type Input struct {
	Session        *domain.Session
	NewIP          string
	NewUserAgent   string
	RecentActivity []*domain.SessionActivity // newest first
	DeviceBlocked  *bool                     // nil when the device lookup was unavailable
	Now            time.Time
}

// Result is the detector verdict. Degraded means some rules were skipped for lack of data;
// the level then only reflects the rules that could run.
type Result struct {
	Level    domain.RiskLevel
	Reason   string
	Flags    []string
	Degraded bool
}

// Evaluate applies the rules in order and keeps the highest level; on ties the earlier rule wins.
func Evaluate(in Input, th Thresholds) Result {
	if th.IPChangeWindow <= 0 || th.FailedAttemptThreshold <= 0 {
		def := DefaultThresholds()
		if th.IPChangeWindow <= 0 {
			th.IPChangeWindow = def.IPChangeWindow
		}
		if th.FailedAttemptThreshold <= 0 {
			th.FailedAttemptThreshold = def.FailedAttemptThreshold
		}
	}
	res := Result{Level: domain.RiskLow}
	if in.Session == nil {
		res.Degraded = true
		res.Reason = reasonIncompletePfx + "session"
		return res
	}
	s := in.Session
	var missing []string

	raise := func(level domain.RiskLevel, reason string) {
		res.Flags = append(res.Flags, reason)
		if level.Rank() > res.Level.Rank() {
			res.Level = level
			res.Reason = reason
		}
	}

	if in.NewIP == "" || s.IPAddress == "" {
		missing = append(missing, "ip")
	} else if in.NewIP != s.IPAddress && in.Now.Sub(lastSeenAt(s, in.RecentActivity)) < th.IPChangeWindow {
		raise(domain.RiskMedium, ReasonIPChange)
	}

	if in.NewUserAgent == "" || s.UserAgent == "" {
		missing = append(missing, "user agent")
	} else if in.NewUserAgent != s.UserAgent {
		raise(domain.RiskHigh, ReasonDeviceMismatch)
	}

	if s.FailedAccessAttempts >= th.FailedAttemptThreshold {
		raise(domain.RiskHigh, ReasonFailedAttempts)
	}

	if in.DeviceBlocked == nil {
		missing = append(missing, "device")
	} else if *in.DeviceBlocked {
		raise(domain.RiskCritical, ReasonBlockedDevice)
	}

	if len(missing) > 0 {
		res.Degraded = true
		if res.Level == domain.RiskLow {
			res.Reason = reasonIncompletePfx + strings.Join(missing, ", ")
		}
	}
	return res
}

// lastSeenAt is the latest time the session's current address was observed.
func lastSeenAt(s *domain.Session, recent []*domain.SessionActivity) time.Time {
	seen := s.LastAccessedAt
	for _, a := range recent {
		if a.IPAddress == s.IPAddress && a.Timestamp.After(seen) {
			seen = a.Timestamp
		}
	}
	return seen
}
