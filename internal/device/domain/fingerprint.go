package domain

import (
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// FingerprintData is the set of client attributes a fingerprint is derived from.
type FingerprintData struct {
	ScreenResolution string   `json:"screen_resolution"`
	Timezone         string   `json:"timezone"`
	Language         string   `json:"language"`
	Platform         string   `json:"platform"`
	Plugins          []string `json:"plugins"`
	ColorDepth       int      `json:"color_depth"`
	UserAgent        string   `json:"user_agent"`
}

// DeviceFingerprint is a registered device for one user. A fingerprint is never both
// trusted and blocked.
type DeviceFingerprint struct {
	ID              string
	FingerprintHash string
	UserID          string
	Attributes      FingerprintData
	FirstSeen       time.Time
	LastSeen        time.Time
	IsTrusted       bool
	IsBlocked       bool
	BlockedReason   string
	BlockedAt       *time.Time
}

// Canonical renders data as newline-separated key=value lines in a fixed key order. Values are
// trimmed and lowercased; plugins are sorted and de-duplicated, so attribute order on the client
// does not change the result.
func (d FingerprintData) Canonical() string {
	plugins := make([]string, 0, len(d.Plugins))
	for _, p := range d.Plugins {
		if p = norm(p); p != "" {
			plugins = append(plugins, p)
		}
	}
	slices.Sort(plugins)
	plugins = slices.Compact(plugins)

	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	line("color_depth", strconv.Itoa(d.ColorDepth))
	line("language", norm(d.Language))
	line("platform", norm(d.Platform))
	line("plugins", strings.Join(plugins, ","))
	line("screen_resolution", norm(d.ScreenResolution))
	line("timezone", norm(d.Timezone))
	line("user_agent", norm(d.UserAgent))
	return b.String()
}

// ComputeHash returns the hex BLAKE2b-256 digest of the canonical attribute set.
func ComputeHash(d FingerprintData) string {
	sum := blake2b.Sum256([]byte(d.Canonical()))
	return hex.EncodeToString(sum[:])
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
