package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BeginSyncRun records the start of a collection fetch
func (s *Store) BeginSyncRun(username string, startedAt time.Time) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.NewString(),
		StartedAt: startedAt.UTC(),
		Username:  username,
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_runs (id, started_at, username)
		VALUES (?, ?, ?)
	`, run.ID, run.StartedAt, run.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sync run: %w", err)
	}

	return run, nil
}

// FinishSyncRun stores the outcome of a run started with BeginSyncRun
func (s *Store) FinishSyncRun(run *SyncRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	truncated := 0
	if run.Truncated {
		truncated = 1
	}

	res, err := s.db.Exec(`
		UPDATE sync_runs
		SET finished_at = ?, items = ?, expected = ?, pages_read = ?, truncated = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt, run.Items, run.Expected, run.PagesRead, truncated, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync run %s not found", run.ID)
	}
	return nil
}

const syncRunColumns = `id, started_at, finished_at, COALESCE(username, ''), items, expected,
	pages_read, truncated, COALESCE(error, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (*SyncRun, error) {
	var run SyncRun
	var finished sql.NullTime
	var truncated int

	err := row.Scan(&run.ID, &run.StartedAt, &finished, &run.Username, &run.Items, &run.Expected,
		&run.PagesRead, &truncated, &run.Error)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Truncated = truncated == 1
	return &run, nil
}

// GetSyncRun gets a sync run by id
func (s *Store) GetSyncRun(id string) (*SyncRun, error) {
	row := s.db.QueryRow(`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// LastSyncRun returns the most recently started run, or nil if there is none
func (s *Store) LastSyncRun() (*SyncRun, error) {
	row := s.db.QueryRow(`
		SELECT ` + syncRunColumns + `
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT 1
	`)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// LastSuccessfulSyncRun returns the most recent finished run without error
func (s *Store) LastSuccessfulSyncRun() (*SyncRun, error) {
	row := s.db.QueryRow(`
		SELECT ` + syncRunColumns + `
		FROM sync_runs
		WHERE finished_at IS NOT NULL AND COALESCE(error, '') = ''
		ORDER BY started_at DESC
		LIMIT 1
	`)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListSyncRuns returns up to limit runs, newest first
func (s *Store) ListSyncRuns(limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT `+syncRunColumns+`
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountSyncRuns returns the number of recorded runs and how many of them failed
func (s *Store) CountSyncRuns() (total, failed int, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN COALESCE(error, '') != '' THEN 1 ELSE 0 END), 0)
		FROM sync_runs
	`).Scan(&total, &failed)
	return total, failed, err
}
