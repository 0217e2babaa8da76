package migrate

import (
	"errors"
	"strings"
	"testing"

	"multidept-session-trust/backend/internal/db"
)

func TestUp_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Up(dsn); !errors.Is(err, ErrNoDSN) {
			t.Errorf("Up(%q) = %v, want ErrNoDSN", dsn, err)
		}
	}
}

func TestDown_EmptyDSN(t *testing.T) {
	if err := Down("", 1); !errors.Is(err, ErrNoDSN) {
		t.Errorf("Down = %v, want ErrNoDSN", err)
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, err := Version(""); !errors.Is(err, ErrNoDSN) {
		t.Errorf("Version = %v, want ErrNoDSN", err)
	}
}

func TestUp_InvalidDSN(t *testing.T) {
	if err := Up("postgres://invalid-host-that-does-not-exist:5432/test?connect_timeout=1"); err == nil {
		t.Error("Up against an unreachable host should fail")
	}
}

func TestMigrationFS_HasPairedFiles(t *testing.T) {
	entries, err := db.MigrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("migrations: %d up, %d down", ups, downs)
	}
}
