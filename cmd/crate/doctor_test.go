package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/store"
)

func TestCheckToken(t *testing.T) {
	if result := checkToken(""); !result.warned() {
		t.Error("expected warning for missing token")
	}

	result := checkToken("abc123")
	if result.failed() || result.warned() {
		t.Errorf("token check failed: %s", result.message)
	}
	if strings.Contains(result.message, "abc123") {
		t.Error("token must not be printed")
	}
}

func TestCheckDiscogs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Discogs token=good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7, "username": "digger"}`))
	}))
	defer srv.Close()

	tests := []struct {
		token     string
		wantError bool
	}{
		{"good", false},
		{"bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			client := discogs.NewClient(discogs.Config{BaseURL: srv.URL, Token: tt.token, RateLimit: -1})
			result := checkDiscogs(context.Background(), client)
			if result.failed() != tt.wantError {
				t.Errorf("error = %v, want %v (%s)", result.failed(), tt.wantError, result.message)
			}
			if !tt.wantError && !strings.Contains(result.message, "digger") {
				t.Errorf("expected username in message, got %q", result.message)
			}
		})
	}
}

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.failed() {
		t.Errorf("SQLite check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	// Check a database that doesn't exist
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath)

	// Should not error - database will be created on first run
	if result.failed() {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected message about database creation")
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	// Create a real database
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Add a finished sync run
	run, err := db.BeginSyncRun("digger", time.Now())
	if err != nil {
		t.Fatalf("failed to begin sync run: %v", err)
	}
	run.FinishedAt = time.Now()
	run.Items = 12
	if err := db.FinishSyncRun(run); err != nil {
		t.Fatalf("failed to finish sync run: %v", err)
	}
	db.Close()

	// Now check the database
	result := checkDatabase(dbPath)

	if result.failed() {
		t.Errorf("database check failed: %s", result.message)
	}

	if !strings.Contains(result.message, "1 syncs") {
		t.Errorf("expected sync count in message, got %q", result.message)
	}
}

func TestCheckDatabase_Empty(t *testing.T) {
	// Test with empty database path
	result := checkDatabase("")

	if !result.warned() {
		t.Error("expected warning for empty database path")
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	result := checkDatabase(t.TempDir())

	if !result.failed() {
		t.Error("expected error when the database path is a directory")
	}
}

func TestCheckCacheDirectory_Valid(t *testing.T) {
	dir := t.TempDir()

	result := checkCacheDirectory(dir)

	if result.failed() {
		t.Errorf("cache directory check failed: %s", result.message)
	}

	// The probe file must not be left behind
	if _, err := os.Stat(filepath.Join(dir, ".crate_write_test")); !os.IsNotExist(err) {
		t.Error("write test file was not removed")
	}
}

func TestCheckCacheDirectory_Create(t *testing.T) {
	tmpDir := t.TempDir()
	newDir := filepath.Join(tmpDir, "newdir")

	result := checkCacheDirectory(newDir)

	if result.failed() {
		t.Errorf("cache directory check failed: %s", result.message)
	}

	// Verify directory was created
	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}

func TestCheckCacheDirectory_File(t *testing.T) {
	// Create a file instead of directory
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(filePath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := checkCacheDirectory(filePath)

	if !result.failed() {
		t.Error("expected error when path is a file, not a directory")
	}
}

func TestCheckSnapshot(t *testing.T) {
	items := []collection.Item{{ID: 1, Title: "Blue Train", Artist: "John Coltrane"}}

	tests := []struct {
		name        string
		snap        *collection.Snapshot
		raw         string
		wantWarning bool
		wantText    string
	}{
		{
			name:        "missing",
			wantWarning: true,
			wantText:    "crate sync",
		},
		{
			name:     "fresh",
			snap:     &collection.Snapshot{Timestamp: time.Now(), Items: items},
			wantText: "1 releases",
		},
		{
			name:        "stale",
			snap:        &collection.Snapshot{Timestamp: time.Now().Add(-48 * time.Hour), Items: items},
			wantWarning: true,
			wantText:    "stale",
		},
		{
			name:        "partial",
			snap:        &collection.Snapshot{Timestamp: time.Now(), Items: items, Truncated: true, ExpectedItems: 40},
			wantWarning: true,
			wantText:    "40 expected",
		},
		{
			name:        "corrupt",
			raw:         "{not json",
			wantWarning: true,
			wantText:    "unreadable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cache := collection.NewSnapshotCache(&collection.CacheConfig{Dir: dir})
			if tt.snap != nil {
				if err := cache.Write(tt.snap); err != nil {
					t.Fatalf("failed to write snapshot: %v", err)
				}
			}
			if tt.raw != "" {
				if err := os.WriteFile(cache.Path(), []byte(tt.raw), 0644); err != nil {
					t.Fatal(err)
				}
			}

			result := checkSnapshot(dir, 24*time.Hour)

			if result.failed() {
				t.Errorf("snapshot check should never error: %s", result.message)
			}
			if result.warned() != tt.wantWarning {
				t.Errorf("warning = %v, want %v (%s)", result.warned(), tt.wantWarning, result.message)
			}
			if !strings.Contains(result.message, tt.wantText) {
				t.Errorf("message %q does not contain %q", result.message, tt.wantText)
			}
		})
	}
}

func TestCheckDiskSpace(t *testing.T) {
	// Use temp directory which should have disk space info
	dir := t.TempDir()

	result := checkDiskSpace(dir, "test")

	// Should not error
	if result.failed() {
		t.Errorf("disk space check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected message with disk space info")
	}
}

func TestCheckDiskSpace_NonExistent(t *testing.T) {
	result := checkDiskSpace("/nonexistent/path", "test")

	// Should produce a warning (not error)
	if !result.warned() {
		t.Error("expected warning for non-existent path")
	}
}
