package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "a", "b", "test.db")

		db, err := Open(config.DatabaseConfig{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if err := db.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck() error = %v", err)
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		want    []string
		notWant []string
	}{
		{
			name: "wal enabled",
			cfg:  config.DatabaseConfig{Path: "/tmp/x.db", WALMode: true, BusyTimeout: 5},
			want: []string{"file:/tmp/x.db?", "_busy_timeout=5000", "_foreign_keys=on", "_journal_mode=WAL"},
		},
		{
			name:    "wal disabled",
			cfg:     config.DatabaseConfig{Path: "/tmp/x.db", BusyTimeout: 1},
			want:    []string{"_busy_timeout=1000"},
			notWant: []string{"_journal_mode"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(dsn, w) {
					t.Errorf("dsn %q missing %q", dsn, w)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(dsn, nw) {
					t.Errorf("dsn %q should not contain %q", dsn, nw)
				}
			}
		})
	}
}

func TestClose_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}
