package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "crate.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"sync_runs", "cover_downloads", "schema_version"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	for _, index := range []string{"idx_sync_runs_started_at", "idx_cover_downloads_outcome"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crate.db")

	store, err := OpenWithOptions(path, &OpenOptions{NetworkOptimized: true})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	run, err := store.BeginSyncRun("digger", time.Now())
	if err != nil {
		t.Fatalf("BeginSyncRun failed: %v", err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	got, err := store.GetSyncRun(run.ID)
	if err != nil || got == nil {
		t.Fatalf("expected run after reopen, got %v, %v", got, err)
	}
}

func TestSyncRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	run, err := store.BeginSyncRun("digger", started)
	if err != nil {
		t.Fatalf("BeginSyncRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected run ID to be set")
	}

	got, err := store.GetSyncRun(run.ID)
	if err != nil {
		t.Fatalf("GetSyncRun failed: %v", err)
	}
	if !got.FinishedAt.IsZero() {
		t.Error("unfinished run should have zero FinishedAt")
	}

	run.FinishedAt = started.Add(90 * time.Second)
	run.Items = 150
	run.Expected = 250
	run.PagesRead = 2
	run.Truncated = true
	if err := store.FinishSyncRun(run); err != nil {
		t.Fatalf("FinishSyncRun failed: %v", err)
	}

	got, err = store.GetSyncRun(run.ID)
	if err != nil {
		t.Fatalf("GetSyncRun failed: %v", err)
	}
	if got.Items != 150 || got.Expected != 250 || got.PagesRead != 2 || !got.Truncated {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.Username != "digger" {
		t.Errorf("expected username digger, got %q", got.Username)
	}
	if got.Duration() != 90*time.Second {
		t.Errorf("expected 90s duration, got %v", got.Duration())
	}
	if !got.OK() {
		t.Error("run without error should be OK")
	}
}

func TestFinishSyncRun_Unknown(t *testing.T) {
	store := openTestStore(t)
	if err := store.FinishSyncRun(&SyncRun{ID: "missing"}); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestLastSyncRuns(t *testing.T) {
	store := openTestStore(t)

	if run, err := store.LastSyncRun(); err != nil || run != nil {
		t.Fatalf("expected no run on empty store, got %v, %v", run, err)
	}

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	outcomes := []string{"", "", "discogs: HTTP 503"}
	var ids []string
	for i, errMsg := range outcomes {
		run, err := store.BeginSyncRun("digger", base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("BeginSyncRun failed: %v", err)
		}
		run.FinishedAt = run.StartedAt.Add(time.Minute)
		run.Items = 10 * (i + 1)
		run.Error = errMsg
		if err := store.FinishSyncRun(run); err != nil {
			t.Fatalf("FinishSyncRun failed: %v", err)
		}
		ids = append(ids, run.ID)
	}

	last, err := store.LastSyncRun()
	if err != nil {
		t.Fatalf("LastSyncRun failed: %v", err)
	}
	if last.ID != ids[2] || last.OK() {
		t.Errorf("expected last run to be the failed one, got %+v", last)
	}

	good, err := store.LastSuccessfulSyncRun()
	if err != nil {
		t.Fatalf("LastSuccessfulSyncRun failed: %v", err)
	}
	if good.ID != ids[1] || good.Items != 20 {
		t.Errorf("expected second run, got %+v", good)
	}

	runs, err := store.ListSyncRuns(2)
	if err != nil {
		t.Fatalf("ListSyncRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("expected newest two runs, got %d", len(runs))
	}

	all, err := store.ListSyncRuns(0)
	if err != nil || len(all) != 3 {
		t.Errorf("expected 3 runs without limit, got %d (%v)", len(all), err)
	}

	total, failed, err := store.CountSyncRuns()
	if err != nil || total != 3 || failed != 1 {
		t.Errorf("CountSyncRuns() = %d, %d, %v; want 3, 1, nil", total, failed, err)
	}
}

func TestCoverDownloads(t *testing.T) {
	store := openTestStore(t)

	records := []*CoverDownload{
		{ReleaseID: 1, URL: "https://img/1.jpg", Outcome: "downloaded", Attempts: 1, StatusCode: 200, Bytes: 1000},
		{ReleaseID: 2, URL: "https://img/2.jpg", Outcome: "downloaded", Attempts: 2, StatusCode: 200, Bytes: 500},
		{ReleaseID: 3, URL: "https://img/3.jpg", Outcome: "failed", Attempts: 1, StatusCode: 404, Error: "unexpected status code 404"},
		{ReleaseID: 4, Outcome: "no_url"},
	}
	for _, dl := range records {
		if err := store.RecordCoverDownload(dl); err != nil {
			t.Fatalf("RecordCoverDownload failed: %v", err)
		}
	}

	// A later outcome replaces the earlier one
	if err := store.RecordCoverDownload(&CoverDownload{ReleaseID: 3, URL: "https://img/3.jpg", Outcome: "downloaded", Attempts: 3, StatusCode: 200, Bytes: 250}); err != nil {
		t.Fatalf("RecordCoverDownload failed: %v", err)
	}

	got, err := store.GetCoverDownload(3)
	if err != nil {
		t.Fatalf("GetCoverDownload failed: %v", err)
	}
	if got.Outcome != "downloaded" || got.Attempts != 3 || got.Error != "" {
		t.Errorf("expected replaced record, got %+v", got)
	}

	if missing, err := store.GetCoverDownload(99); err != nil || missing != nil {
		t.Errorf("expected nil for unknown release, got %v, %v", missing, err)
	}

	counts, err := store.CountCoverDownloadsByOutcome()
	if err != nil {
		t.Fatalf("CountCoverDownloadsByOutcome failed: %v", err)
	}
	if counts["downloaded"] != 3 || counts["no_url"] != 1 || counts["failed"] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}

	total, err := store.GetTotalCoverBytes()
	if err != nil || total != 1750 {
		t.Errorf("GetTotalCoverBytes() = %d, %v; want 1750", total, err)
	}

	noURL, err := store.GetCoverDownloadsByOutcome("no_url", 10)
	if err != nil || len(noURL) != 1 || noURL[0].ReleaseID != 4 {
		t.Errorf("unexpected no_url records: %v, %v", noURL, err)
	}

	removed, err := store.DeleteCoverDownloads(map[int64]bool{1: true, 2: true})
	if err != nil || removed != 2 {
		t.Errorf("DeleteCoverDownloads() = %d, %v; want 2", removed, err)
	}
	counts, _ = store.CountCoverDownloadsByOutcome()
	if counts["downloaded"] != 2 || counts["no_url"] != 0 {
		t.Errorf("unexpected counts after delete: %v", counts)
	}
}

func TestSQLiteVersion(t *testing.T) {
	if SQLiteVersion() == "" {
		t.Error("expected a SQLite version")
	}
}

func TestOpenWithOptions_NetworkOptimized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crate.db")
	store, err := OpenWithOptions(path, &OpenOptions{NetworkOptimized: true})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}

	// 1 = NORMAL
	var synchronous int
	if err := store.db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	if synchronous != 1 {
		t.Errorf("synchronous = %d, want 1 (NORMAL)", synchronous)
	}

	var mode string
	if err := store.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}
