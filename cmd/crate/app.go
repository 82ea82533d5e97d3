package main

import (
	"fmt"
	"path/filepath"

	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/report"
	"github.com/franz/crate/internal/service"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
	"github.com/gofrs/flock"
	"github.com/spf13/viper"
)

// lockFileName guards the cache directory against concurrent writers
const lockFileName = ".crate.lock"

// app bundles everything a command needs; Close releases it
type app struct {
	svc    *service.CollectionService
	db     *store.Store
	events *report.EventLogger
	lock   *flock.Flock
}

// openApp builds the Discogs client, the history database, the event log
// and the collection service from the current configuration
func openApp() (*app, error) {
	setupLogging()

	token := GetConfigString("token", "")
	if token == "" {
		util.WarnLog("No Discogs token configured (set CRATE_TOKEN); only cached data is available")
	}

	client := discogs.NewClient(discogs.Config{
		Token:     token,
		RateLimit: GetConfigDuration("rate-limit", defaultRateLimit),
	})

	dir := cacheDir()
	if err := util.RetryableMkdirAll(dir, 0o755, nil); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	opts := &store.OpenOptions{}
	if info, err := util.DetectNetworkFilesystem(dir); err == nil && info.IsNetwork {
		util.InfoLog("Cache is on a network filesystem (%s), tuning the database for it", info.Protocol)
		opts.NetworkOptimized = true
	}

	db, err := store.OpenWithOptions(dbPath(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{db: db, events: report.NullLogger()}

	if eventsDir := GetConfigString("events-dir", ""); eventsDir != "" {
		level := report.ParseLevel(GetConfigString("event-level", string(report.LevelInfo)))
		events, err := report.NewEventLogger(eventsDir, level)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create event logger: %w", err)
		}
		a.events = events
		util.DebugLog("Event log: %s", events.Path())
	}

	svc, err := service.New(&service.Config{
		Catalog:  client,
		Username: GetConfigString("username", ""),
		PerPage:  GetConfigInt("per-page", defaultPerPage),
		MaxItems: viper.GetInt("max-items"),
		CacheDir: dir,
		MaxAge:   GetConfigDuration("max-age", defaultMaxAge),
		Covers: covers.Config{
			UserAgent:    discogs.UserAgent,
			MaxDimension: viper.GetInt("cover-max-dim"),
		},
		Store:  db,
		Events: a.events,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// lockCache takes the cache directory lock. Commands that sync or download
// hold it so a cron sync and the kiosk server never write at the same time.
func (a *app) lockCache(dir string) error {
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: another crate process is using %s", util.ErrBusy, dir)
	}
	a.lock = lock
	return nil
}

// Close flushes the event log, closes the database and releases the lock
func (a *app) Close() {
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			util.WarnLog("Failed to release cache lock: %v", err)
		}
		a.lock = nil
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
