package store

import (
	"database/sql"
	"time"
)

// RecordCoverDownload inserts or replaces the latest outcome for a cover
func (s *Store) RecordCoverDownload(dl *CoverDownload) error {
	if dl.UpdatedAt.IsZero() {
		dl.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO cover_downloads
		(release_id, url, outcome, attempts, status_code, bytes, duration_ms, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, dl.ReleaseID, dl.URL, dl.Outcome, dl.Attempts, dl.StatusCode, dl.Bytes, dl.DurationMs, dl.Error, dl.UpdatedAt)

	return err
}

const coverColumns = `release_id, COALESCE(url, ''), outcome, attempts, status_code, bytes,
	duration_ms, COALESCE(error, ''), updated_at`

func scanCoverDownload(row rowScanner) (*CoverDownload, error) {
	var dl CoverDownload
	err := row.Scan(&dl.ReleaseID, &dl.URL, &dl.Outcome, &dl.Attempts, &dl.StatusCode, &dl.Bytes,
		&dl.DurationMs, &dl.Error, &dl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dl, nil
}

// GetCoverDownload gets the latest outcome for a release cover
func (s *Store) GetCoverDownload(releaseID int64) (*CoverDownload, error) {
	row := s.db.QueryRow(`SELECT `+coverColumns+` FROM cover_downloads WHERE release_id = ?`, releaseID)

	dl, err := scanCoverDownload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return dl, err
}

// GetCoverDownloadsByOutcome returns up to limit records with the given outcome
func (s *Store) GetCoverDownloadsByOutcome(outcome string, limit int) ([]*CoverDownload, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`
		SELECT `+coverColumns+`
		FROM cover_downloads
		WHERE outcome = ?
		ORDER BY updated_at DESC, release_id
		LIMIT ?
	`, outcome, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*CoverDownload
	for rows.Next() {
		dl, err := scanCoverDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, dl)
	}

	return downloads, rows.Err()
}

// CountCoverDownloadsByOutcome returns the number of records per outcome
func (s *Store) CountCoverDownloadsByOutcome() (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT outcome, COUNT(*) FROM cover_downloads GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		counts[outcome] = count
	}

	return counts, rows.Err()
}

// GetTotalCoverBytes returns the bytes written by successful downloads
func (s *Store) GetTotalCoverBytes() (int64, error) {
	var total int64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(bytes), 0) FROM cover_downloads WHERE outcome = 'downloaded'
	`).Scan(&total)

	return total, err
}

// DeleteCoverDownloads removes records of releases not in keep
func (s *Store) DeleteCoverDownloads(keep map[int64]bool) (int, error) {
	removed := 0
	err := s.Transaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT release_id FROM cover_downloads`)
		if err != nil {
			return err
		}
		var stale []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range stale {
			if _, err := tx.Exec(`DELETE FROM cover_downloads WHERE release_id = ?`, id); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
