package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

const (
	// minFreeSpace is what a cover cache of a large collection needs
	minFreeSpace  = 1 << 30
	maxUsedPct    = 95.0
	onlineTimeout = 15 * time.Second
	writeProbe    = ".crate_write_test"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the kiosk can run with the current configuration",
	Long: `Run diagnostic checks before starting the kiosk:

  - Discogs token (and, with --online, that Discogs accepts it)
  - embedded SQLite and the history database
  - cache directory permissions, free space and network storage
  - collection snapshot presence, completeness and age`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().Bool("online", false, "also authenticate against the Discogs API")
}

type checkStatus int

const (
	statusOK checkStatus = iota
	statusWarn
	statusFail
)

func (s checkStatus) symbol() string {
	switch s {
	case statusWarn:
		return "⚠"
	case statusFail:
		return "✗"
	}
	return "✓"
}

type checkResult struct {
	name    string
	status  checkStatus
	message string
}

func (r checkResult) failed() bool { return r.status == statusFail }
func (r checkResult) warned() bool { return r.status == statusWarn }

func pass(name, format string, args ...any) checkResult {
	return checkResult{name: name, status: statusOK, message: fmt.Sprintf(format, args...)}
}

func warn(name, format string, args ...any) checkResult {
	return checkResult{name: name, status: statusWarn, message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) checkResult {
	return checkResult{name: name, status: statusFail, message: fmt.Sprintf(format, args...)}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	setupLogging()

	token := GetConfigString("token", "")
	dir := cacheDir()

	results := []checkResult{checkToken(token)}
	if online, _ := cmd.Flags().GetBool("online"); online && token != "" {
		client := discogs.NewClient(discogs.Config{Token: token})
		results = append(results, checkDiscogs(cmd.Context(), client))
	}
	results = append(results,
		checkSQLite(),
		checkDatabase(dbPath()),
		checkCacheDirectory(dir),
		checkSnapshot(dir, GetConfigDuration("max-age", defaultMaxAge)),
		checkDiskSpace(dir, "cache"),
	)

	rows := make([][]string, 0, len(results))
	var failures, warnings int
	for _, r := range results {
		rows = append(rows, []string{r.status.symbol(), r.name, r.message})
		switch r.status {
		case statusFail:
			failures++
		case statusWarn:
			warnings++
		}
	}
	fmt.Println(renderTable([]string{"", "Check", "Details"}, rows, nil))

	switch {
	case failures > 0:
		util.ErrorLog("%d check(s) failed; resolve them before running crate", failures)
		return fmt.Errorf("%d diagnostic check(s) failed", failures)
	case warnings > 0:
		util.WarnLog("%d check(s) produced warnings", warnings)
	default:
		util.SuccessLog("All checks passed, the kiosk is ready")
	}
	return nil
}

// checkToken never prints the token itself
func checkToken(token string) checkResult {
	if token == "" {
		return warn("Discogs token", "not configured (set CRATE_TOKEN); only cached data will be served")
	}
	return pass("Discogs token", "configured (%d characters)", len(token))
}

func checkDiscogs(ctx context.Context, client *discogs.Client) checkResult {
	ctx, cancel := context.WithTimeout(ctx, onlineTimeout)
	defer cancel()

	if !client.Authenticate(ctx) {
		return fail("Discogs API", "authentication failed (check the token and network)")
	}
	return pass("Discogs API", "authenticated as %s", client.Identity().Username)
}

func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return fail("SQLite", "unable to determine version")
	}
	return pass("SQLite", "version %s (built-in)", version)
}

// checkDatabase opens the history database and verifies its integrity.
// A missing file is fine: it is created on first sync.
func checkDatabase(path string) checkResult {
	const name = "Database"
	if path == "" {
		return warn(name, "no database path specified (use --db or the db config key)")
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return pass(name, "%s (will be created on first run)", path)
	case err != nil:
		return fail(name, "cannot access %s: %v", path, err)
	case !info.Mode().IsRegular():
		return fail(name, "%s is not a regular file", path)
	}

	db, err := store.Open(path)
	if err != nil {
		return fail(name, "cannot open %s: %v", path, err)
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return fail(name, "%v", err)
	}

	runs, failed, _ := db.CountSyncRuns()
	return pass(name, "%s (%s, %d syncs, %d failed)", path, humanize.Bytes(uint64(info.Size())), runs, failed)
}

// checkCacheDirectory creates the cache directory if needed and probes it for writes
func checkCacheDirectory(path string) checkResult {
	const name = "Cache directory"

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fail(name, "cannot create %s: %v", path, err)
		}
		return pass(name, "%s (created)", path)
	}
	if err != nil {
		return fail(name, "cannot access %s: %v", path, err)
	}
	if !info.IsDir() {
		return fail(name, "%s is not a directory", path)
	}

	probe := filepath.Join(path, writeProbe)
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fail(name, "cannot write to %s: %v", path, err)
	}
	os.Remove(probe)

	return pass(name, "%s (writable)", path)
}

// checkSnapshot reports whether a usable collection snapshot is cached.
// Problems are warnings: the kiosk refetches on its next sync.
func checkSnapshot(dir string, maxAge time.Duration) checkResult {
	const name = "Snapshot"

	cache := collection.NewSnapshotCache(&collection.CacheConfig{Dir: dir, MaxAge: maxAge})
	snap, err := cache.Read()
	if errors.Is(err, fs.ErrNotExist) {
		return warn(name, "no cached collection (run 'crate sync')")
	}
	if err != nil {
		return warn(name, "unreadable, will be refetched: %v", err)
	}

	msg := fmt.Sprintf("%d releases, %s", snap.Len(), humanize.Time(snap.Timestamp))
	switch {
	case snap.Partial():
		return warn(name, "%s (partial, %d expected)", msg, snap.ExpectedItems)
	case snap.IsStale(time.Now(), cache.MaxAge()):
		return warn(name, "%s (stale)", msg)
	}
	return pass(name, "%s", msg)
}

// checkDiskSpace warns below minFreeSpace or above maxUsedPct and names
// the protocol when the cache lives on a network share
func checkDiskSpace(path, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return warn(name, "cannot determine disk space: %v", err)
	}

	bsize := uint64(stat.Bsize)
	avail := stat.Bavail * bsize
	total := stat.Blocks * bsize
	usedPct := 0.0
	if total > 0 {
		usedPct = float64(total-stat.Bfree*bsize) / float64(total) * 100
	}

	msg := humanize.Bytes(avail) + " available"
	if info, err := util.DetectNetworkFilesystem(path); err == nil && info.IsNetwork {
		msg += fmt.Sprintf(" on %s share", info.Protocol)
	}

	switch {
	case avail < minFreeSpace:
		return warn(name, "%s (low space)", msg)
	case usedPct > maxUsedPct:
		return warn(name, "%s (%.0f%% used)", msg, usedPct)
	}
	return pass(name, "%s", msg)
}
