package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/util"
)

const (
	// SnapshotFileName is the snapshot file inside the cache directory
	SnapshotFileName = "collection.json"

	// DefaultMaxAge is the staleness threshold of a snapshot
	DefaultMaxAge = 24 * time.Hour
)

// Source tells where a loaded snapshot came from
type Source string

const (
	SourceCache   Source = "cache"   // fresh cache hit
	SourceNetwork Source = "network" // fetched and persisted
	SourceStale   Source = "stale"   // fetch failed, stale cache served
	SourceEmpty   Source = "empty"   // no cache and no fetch
)

// Snapshot is a complete, timestamped copy of the collection
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Items         []Item    `json:"items"`
	Truncated     bool      `json:"truncated,omitempty"`
	ExpectedItems int       `json:"expected_items,omitempty"`

	Source Source `json:"-"`
}

// legacyTimestampLayouts are ISO-8601 forms without a zone, as written by
// earlier versions of the kiosk. They are read as local time.
var legacyTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON accepts RFC 3339 timestamps and zone-less ISO-8601 ones
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var raw struct {
		plain
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	*s = Snapshot(raw.plain)
	s.Timestamp = ts
	return nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	for _, layout := range legacyTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// Len returns the number of items
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Items)
}

// Age returns how old the snapshot is at now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// IsStale reports whether the snapshot is at least maxAge old
func (s *Snapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) >= maxAge
}

// Partial reports whether the fetch that produced this snapshot stopped early
func (s *Snapshot) Partial() bool {
	return s.Truncated
}

// Fetcher performs a full paginated collection fetch
type Fetcher interface {
	FetchCollection(ctx context.Context) (*discogs.FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (*discogs.FetchResult, error)

// FetchCollection calls f(ctx)
func (f FetcherFunc) FetchCollection(ctx context.Context) (*discogs.FetchResult, error) {
	return f(ctx)
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	Dir     string
	MaxAge  time.Duration
	Fetcher Fetcher
	Now     func() time.Time
}

// SnapshotCache persists the collection in a single JSON file and refetches
// it when it is missing, unreadable or older than MaxAge.
// It assumes a single writer.
type SnapshotCache struct {
	path    string
	maxAge  time.Duration
	fetcher Fetcher
	now     func() time.Time
}

// NewSnapshotCache creates a snapshot cache in cfg.Dir
func NewSnapshotCache(cfg *CacheConfig) *SnapshotCache {
	c := &SnapshotCache{
		path:    filepath.Join(cfg.Dir, SnapshotFileName),
		maxAge:  cfg.MaxAge,
		fetcher: cfg.Fetcher,
		now:     cfg.Now,
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Path returns the snapshot file path
func (c *SnapshotCache) Path() string {
	return c.path
}

// MaxAge returns the staleness threshold
func (c *SnapshotCache) MaxAge() time.Duration {
	return c.maxAge
}

// Load returns the collection. Unless forceRefresh is set, a fresh
// persisted snapshot is returned as is without touching the network.
// Otherwise the whole collection is fetched and persisted. Load never
// fails: if fetching fails or ctx is cancelled it serves the stale cache,
// or an empty snapshot when there is none. An interrupted fetch is never
// persisted.
func (c *SnapshotCache) Load(ctx context.Context, forceRefresh bool) *Snapshot {
	if !forceRefresh {
		snap, err := c.Read()
		switch {
		case err == nil && !snap.IsStale(c.now(), c.maxAge):
			util.InfoLog("Loading collection from cache (%d records)", snap.Len())
			snap.Source = SourceCache
			return snap
		case err == nil:
			util.InfoLog("Cache is %dh old, refreshing...", int(snap.Age(c.now()).Hours()))
		case errors.Is(err, fs.ErrNotExist):
			util.DebugLog("No cached collection at %s", c.path)
		default:
			util.WarnLog("Cache read error: %v, fetching fresh data...", err)
		}
	}

	fresh, err := c.fetch(ctx)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("fetch interrupted: %w", ctx.Err())
	}
	if err != nil {
		util.ErrorLog("Error fetching collection: %v", err)
		if stale, readErr := c.Read(); readErr == nil {
			util.WarnLog("Serving stale collection from %s (%d records)",
				stale.Timestamp.Format(time.RFC3339), stale.Len())
			stale.Source = SourceStale
			return stale
		}
		return &Snapshot{Timestamp: c.now(), Items: []Item{}, Source: SourceEmpty}
	}

	if err := c.Write(fresh); err != nil {
		util.WarnLog("Cache write error: %v", err)
	} else {
		util.InfoLog("Collection cached (%d records)", fresh.Len())
	}
	return fresh
}

// fetch runs a full fetch and converts it into a snapshot
func (c *SnapshotCache) fetch(ctx context.Context) (*Snapshot, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no collection fetcher configured", util.ErrInvalidConfig)
	}

	util.InfoLog("Fetching collection from Discogs API...")
	result, err := c.fetcher.FetchCollection(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Timestamp:     c.now(),
		Items:         make([]Item, 0, len(result.Releases)),
		Truncated:     result.Truncated,
		ExpectedItems: result.TotalItems,
		Source:        SourceNetwork,
	}

	seen := make(map[int64]bool, len(result.Releases))
	duplicates := 0
	for _, info := range result.Releases {
		if info.ID == 0 {
			continue
		}
		if seen[info.ID] {
			duplicates++
			continue
		}
		seen[info.ID] = true
		snap.Items = append(snap.Items, FromRelease(info))
	}
	if duplicates > 0 {
		util.DebugLog("Dropped %d duplicate copies of releases already in the collection", duplicates)
	}
	if snap.Truncated {
		util.WarnLog("Collection is partial: %d of %d records", snap.Len(), snap.ExpectedItems)
	}

	return snap, nil
}

// Read loads the persisted snapshot. A missing file yields an error
// matching fs.ErrNotExist; an empty or unparseable one matches
// util.ErrCorrupt.
func (c *SnapshotCache) Read() (*Snapshot, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", util.ErrCorrupt, c.path)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrCorrupt, c.path, err)
	}
	if snap.Items == nil {
		snap.Items = []Item{}
	}
	return &snap, nil
}

// Write persists the snapshot atomically
func (c *SnapshotCache) Write(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := util.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Clear removes the persisted snapshot so the next Load refetches
func (c *SnapshotCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
