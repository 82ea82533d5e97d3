package store

// Schema v1 - sync history and cover download outcomes
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per collection fetch attempt
CREATE TABLE IF NOT EXISTS sync_runs (
  id TEXT PRIMARY KEY,
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  username TEXT,
  items INTEGER DEFAULT 0,
  expected INTEGER DEFAULT 0,
  pages_read INTEGER DEFAULT 0,
  truncated INTEGER DEFAULT 0,
  error TEXT
);

-- Latest download outcome per release cover
CREATE TABLE IF NOT EXISTS cover_downloads (
  release_id INTEGER PRIMARY KEY,
  url TEXT,
  outcome TEXT NOT NULL,
  attempts INTEGER DEFAULT 0,
  status_code INTEGER DEFAULT 0,
  bytes INTEGER DEFAULT 0,
  duration_ms INTEGER DEFAULT 0,
  error TEXT,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Schema v2 - indexes for status and summary queries
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_cover_downloads_outcome ON cover_downloads(outcome);
`
