package domain

import (
	"testing"
	"time"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestResolve(t *testing.T) {
	roles := []string{PermReportsRead, PermSessionManage}
	tests := []struct {
		name       string
		permission string
		dept       string
		overrides  []*Override
		granted    bool
		source     string
	}{
		{"role grant", PermReportsRead, "", nil, true, SourceRole},
		{"no grant", PermAuditRead, "", nil, false, SourceNone},
		{
			"override denial beats role",
			PermReportsRead, "",
			[]*Override{{Permission: PermReportsRead, IsGranted: false}},
			false, SourceOverride,
		},
		{
			"override grant without role",
			PermAuditRead, "",
			[]*Override{{Permission: PermAuditRead, IsGranted: true, ExpiresAt: at(time.Hour)}},
			true, SourceOverride,
		},
		{
			"expired grant falls back to roles",
			PermAuditRead, "",
			[]*Override{{Permission: PermAuditRead, IsGranted: true, ExpiresAt: at(-time.Minute)}},
			false, SourceNone,
		},
		{
			"expired denial falls back to roles",
			PermReportsRead, "",
			[]*Override{{Permission: PermReportsRead, IsGranted: false, ExpiresAt: at(-time.Second)}},
			true, SourceRole,
		},
		{
			"expiry boundary is exclusive",
			PermAuditRead, "",
			[]*Override{{Permission: PermAuditRead, IsGranted: true, ExpiresAt: at(0)}},
			false, SourceNone,
		},
		{
			"department override ignored for other department",
			PermAuditRead, "hr",
			[]*Override{{Permission: PermAuditRead, IsGranted: true, DepartmentID: "finance"}},
			false, SourceNone,
		},
		{
			"department override beats global",
			PermReportsRead, "finance",
			[]*Override{
				{Permission: PermReportsRead, IsGranted: false},
				{Permission: PermReportsRead, IsGranted: true, DepartmentID: "finance"},
			},
			true, SourceOverride,
		},
		{
			"denial wins at same specificity",
			PermAuditRead, "",
			[]*Override{
				{Permission: PermAuditRead, IsGranted: true},
				{Permission: PermAuditRead, IsGranted: false},
			},
			false, SourceOverride,
		},
		{
			"other permission ignored",
			PermAuditRead, "",
			[]*Override{{Permission: PermDeviceManage, IsGranted: true}},
			false, SourceNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			granted, source := Resolve(now, tt.permission, tt.dept, roles, tt.overrides)
			if granted != tt.granted || source != tt.source {
				t.Errorf("Resolve = (%v, %q), want (%v, %q)", granted, source, tt.granted, tt.source)
			}
		})
	}
}
