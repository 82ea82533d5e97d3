package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/crate/internal/util"
	"github.com/spf13/viper"
)

func TestOpenApp(t *testing.T) {
	resetConfig(t)
	dir := filepath.Join(t.TempDir(), "cache")
	eventsDir := filepath.Join(t.TempDir(), "events")
	viper.Set("cache-dir", dir)
	viper.Set("events-dir", eventsDir)
	viper.Set("quiet", true)

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(filepath.Join(dir, dbFileName)); err != nil {
		t.Errorf("database not created in cache dir: %v", err)
	}
	if a.events.Path() == "" || filepath.Dir(a.events.Path()) != eventsDir {
		t.Errorf("event log path = %q, want it in %s", a.events.Path(), eventsDir)
	}
	if a.svc.Username() != "" {
		t.Errorf("Username() = %q before any auth", a.svc.Username())
	}
}

func TestOpenApp_NoEventsDir(t *testing.T) {
	resetConfig(t)
	viper.Set("cache-dir", t.TempDir())
	viper.Set("quiet", true)

	a, err := openApp()
	if err != nil {
		t.Fatalf("openApp failed: %v", err)
	}
	defer a.Close()

	if a.events.Path() != "" {
		t.Errorf("expected no event log, got %q", a.events.Path())
	}
}

func TestLockCache(t *testing.T) {
	dir := t.TempDir()

	first := &app{}
	if err := first.lockCache(dir); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	second := &app{}
	err := second.lockCache(dir)
	if !errors.Is(err, util.ErrBusy) {
		t.Fatalf("second lock: got %v, want ErrBusy", err)
	}

	first.Close()
	if err := second.lockCache(dir); err != nil {
		t.Fatalf("lock after release failed: %v", err)
	}
	second.Close()
}
