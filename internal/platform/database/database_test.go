package database

import (
	"path/filepath"
	"testing"

	"hookguard/internal/platform/config"
)

func TestOpenAndMigrate(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := Migrate(db, "up"); err != nil {
		t.Fatalf("Migrate(up) error = %v", err)
	}
	// idempotent
	if err := Migrate(db, "up"); err != nil {
		t.Fatalf("second Migrate(up) error = %v", err)
	}

	for _, table := range []string{"endpoints", "deliveries", "inbound_events", "audit_logs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	if err := Migrate(db, "down"); err != nil {
		t.Fatalf("Migrate(down) error = %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'endpoints'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("endpoints table still present after down migration")
	}
}

func TestMigrate_InvalidDirection(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := Migrate(db, "sideways"); err == nil {
		t.Error("expected error for invalid direction")
	}
}

func TestOpen_FilePrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hookguard.db")
	db, err := Open(config.DatabaseConfig{Path: "file:" + path, MaxConnections: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := Migrate(db, "up"); err != nil {
		t.Fatalf("Migrate(up) error = %v", err)
	}
}
