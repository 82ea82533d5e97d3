// Package store keeps the history of collection syncs and cover downloads
// in a SQLite database next to the cache.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/crate/internal/util"
	_ "modernc.org/sqlite" // SQLite driver
)

// migrations are applied in order; each one runs at most once per database
var migrations = []struct {
	version int
	sql     string
}{
	{1, schemaV1},
	{2, schemaV2}, // lookup indexes for status and summary queries
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Store holds the sync and cover download history
type Store struct {
	db   *sql.DB
	path string
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	NetworkOptimized bool // Apply pragmas for caches on network shares
}

// Open opens or creates the history database with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates the history database and migrates it
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The kiosk worker and the HTTP server share one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path}

	if opts.NetworkOptimized {
		// NORMAL is safe with WAL: fsync only at checkpoints
		for _, pragma := range []string{
			"PRAGMA synchronous = NORMAL",
			"PRAGMA temp_store = MEMORY",
			"PRAGMA cache_size = -16000",
		} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
			}
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// SQLiteVersion returns the version of the embedded SQLite, or "" on failure
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check says %s", util.ErrCorrupt, result)
	}
	return nil
}

// migrate brings the schema up to currentSchemaVersion in one transaction
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		for _, m := range migrations {
			if m.version <= version {
				continue
			}
			if _, err := tx.Exec(m.sql); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", m.version, err)
			}
			if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
				return fmt.Errorf("failed to set schema version: %w", err)
			}
			util.DebugLog("Database schema migrated to v%d", m.version)
		}
		return nil
	})
}

func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&exists)
	if err != nil || exists == 0 {
		return 0, err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// Transaction runs fn inside a transaction, rolling back on error
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SyncRun is one attempt to fetch the collection from Discogs
type SyncRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Username   string    `json:"username"`
	Items      int       `json:"items"`
	Expected   int       `json:"expected"`
	PagesRead  int       `json:"pages_read"`
	Truncated  bool      `json:"truncated"`
	Error      string    `json:"error,omitempty"`
}

// OK reports whether the run produced a snapshot
func (r *SyncRun) OK() bool {
	return r.Error == ""
}

// Duration returns how long the run took
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CoverDownload is the latest download outcome for one release's cover
type CoverDownload struct {
	ReleaseID  int64
	URL        string
	Outcome    string
	Attempts   int
	StatusCode int
	Bytes      int64
	DurationMs int64
	Error      string
	UpdatedAt  time.Time
}
