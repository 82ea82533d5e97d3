// Package service composes the catalog client, the snapshot cache, the cover
// cache and the query engine into the single object the kiosk front end
// talks to.
package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/report"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

// Catalog is the part of the Discogs client the service uses
type Catalog interface {
	Authenticate(ctx context.Context) bool
	Identity() *discogs.Identity
	FetchCollection(ctx context.Context, username string, perPage, maxItems int) (*discogs.FetchResult, error)
	FetchReleaseDetail(ctx context.Context, releaseID int64) *discogs.ReleaseDetail
}

// Config holds service configuration
type Config struct {
	Catalog  Catalog
	Username string // empty means the authenticated identity
	PerPage  int
	MaxItems int // 0 means no cap

	CacheDir string
	MaxAge   time.Duration

	// Covers configures the cover cache. Dir defaults to CacheDir and
	// Observer is replaced by the service.
	Covers covers.Config

	Store  *store.Store        // optional sync/download history
	Events *report.EventLogger // optional JSONL event log

	Rand *rand.Rand
	Now  func() time.Time
}

// CollectionService is constructed once and passed to every consumer.
// All methods are safe for concurrent use.
type CollectionService struct {
	catalog  Catalog
	username string
	perPage  int
	maxItems int

	snapshots *collection.SnapshotCache
	covers    *covers.Cache
	store     *store.Store
	events    *report.EventLogger
	rng       *rand.Rand
	now       func() time.Time

	authMu        sync.Mutex
	authenticated bool

	loadMu sync.Mutex // one snapshot load at a time

	mu       sync.RWMutex
	snapshot *collection.Snapshot
	engine   *collection.Engine
}

// New creates the service. Nothing is loaded until GetCollection is called.
func New(cfg *Config) (*CollectionService, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: no catalog client", util.ErrInvalidConfig)
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("%w: cache directory is empty", util.ErrInvalidConfig)
	}

	s := &CollectionService{
		catalog:  cfg.Catalog,
		username: cfg.Username,
		perPage:  cfg.PerPage,
		maxItems: cfg.MaxItems,
		store:    cfg.Store,
		events:   cfg.Events,
		rng:      cfg.Rand,
		now:      cfg.Now,
	}
	if s.perPage <= 0 {
		s.perPage = discogs.DefaultPerPage
	}
	if s.now == nil {
		s.now = time.Now
	}

	coverCfg := cfg.Covers
	if coverCfg.Dir == "" {
		coverCfg.Dir = cfg.CacheDir
	}
	coverCfg.Observer = s.recordDownload
	coverCache, err := covers.NewCache(&coverCfg)
	if err != nil {
		return nil, err
	}
	s.covers = coverCache

	s.snapshots = collection.NewSnapshotCache(&collection.CacheConfig{
		Dir:     cfg.CacheDir,
		MaxAge:  cfg.MaxAge,
		Fetcher: collection.FetcherFunc(s.fetch),
		Now:     s.now,
	})

	return s, nil
}

// Authenticate establishes identity with Discogs. Failures are logged and
// reported as false.
func (s *CollectionService) Authenticate(ctx context.Context) bool {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authenticateLocked(ctx)
}

func (s *CollectionService) authenticateLocked(ctx context.Context) bool {
	ok := s.catalog.Authenticate(ctx)
	s.authenticated = ok
	s.events.LogAuth(s.usernameLocked(), ok)
	if ok {
		util.SuccessLog("Authenticated with Discogs as %s", s.usernameLocked())
	}
	return ok
}

// Authenticated reports whether the last authentication succeeded
func (s *CollectionService) Authenticated() bool {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authenticated
}

// Username returns the configured username, or the authenticated one
func (s *CollectionService) Username() string {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.usernameLocked()
}

func (s *CollectionService) usernameLocked() string {
	if s.username != "" {
		return s.username
	}
	if ident := s.catalog.Identity(); ident != nil {
		return ident.Username
	}
	return ""
}

// fetch runs a full collection fetch, authenticating first if needed, and
// records the run
func (s *CollectionService) fetch(ctx context.Context) (*discogs.FetchResult, error) {
	s.authMu.Lock()
	if !s.authenticated && !s.authenticateLocked(ctx) {
		s.authMu.Unlock()
		return nil, fmt.Errorf("%w: Discogs authentication failed", util.ErrUnauthorized)
	}
	username := s.usernameLocked()
	s.authMu.Unlock()

	if username == "" {
		return nil, fmt.Errorf("%w: no Discogs username", util.ErrInvalidConfig)
	}

	start := s.now()
	var run *store.SyncRun
	if s.store != nil {
		var err error
		if run, err = s.store.BeginSyncRun(username, start); err != nil {
			util.WarnLog("Failed to record sync run: %v", err)
		}
	}

	result, err := s.catalog.FetchCollection(ctx, username, s.perPage, s.maxItems)

	runID := ""
	if run != nil {
		runID = run.ID
		run.FinishedAt = s.now()
		if err != nil {
			run.Error = err.Error()
		} else {
			run.Items = len(result.Releases)
			run.Expected = result.TotalItems
			run.PagesRead = result.PagesRead
			run.Truncated = result.Truncated
		}
		if ferr := s.store.FinishSyncRun(run); ferr != nil {
			util.WarnLog("Failed to record sync run: %v", ferr)
		}
	}

	if err != nil {
		s.events.LogSync(runID, username, 0, 0, 0, false, s.now().Sub(start), err)
		return nil, err
	}
	s.events.LogSync(runID, username, len(result.Releases), result.TotalItems, result.PagesRead,
		result.Truncated, s.now().Sub(start), nil)
	return result, nil
}

// GetCollection loads the collection, from the cache when it is fresh and
// forceRefresh is false, and makes it the current snapshot. It never fails;
// with no cache and no network the collection is empty.
func (s *CollectionService) GetCollection(ctx context.Context, forceRefresh bool) []collection.Item {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snap := s.snapshots.Load(ctx, forceRefresh)
	s.setSnapshot(snap)
	return snap.Items
}

// LoadCached makes the persisted snapshot current without touching the
// network. It reports false when there is no readable snapshot.
func (s *CollectionService) LoadCached() bool {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snap, err := s.snapshots.Read()
	if err != nil {
		util.DebugLog("No cached collection: %v", err)
		return false
	}
	snap.Source = collection.SourceCache
	if snap.IsStale(s.now(), s.snapshots.MaxAge()) {
		snap.Source = collection.SourceStale
	}
	s.setSnapshot(snap)
	return true
}

func (s *CollectionService) setSnapshot(snap *collection.Snapshot) {
	engine := collection.NewEngine(snap.Items, s.rng)

	s.mu.Lock()
	s.snapshot = snap
	s.engine = engine
	s.mu.Unlock()
}

// Snapshot returns the current snapshot, or nil before the first load
func (s *CollectionService) Snapshot() *collection.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// current returns the engine of the current snapshot. Before the first
// load it is an empty engine.
func (s *CollectionService) current() *collection.Engine {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine == nil {
		return collection.NewEngine(nil, s.rng)
	}
	return engine
}

// Items returns the current collection in snapshot order
func (s *CollectionService) Items() []collection.Item {
	return s.current().Items()
}

// GetItem returns one release of the current collection
func (s *CollectionService) GetItem(id int64) (collection.Item, bool) {
	return s.current().Get(id)
}

// GetReleaseDetails fetches the full record of a release; nil on failure
func (s *CollectionService) GetReleaseDetails(ctx context.Context, releaseID int64) *discogs.ReleaseDetail {
	return s.catalog.FetchReleaseDetail(ctx, releaseID)
}

// SearchCollection returns releases whose title, artist or tags contain query
func (s *CollectionService) SearchCollection(query string) []collection.Item {
	return s.current().Search(query)
}

// GetRandomByMood picks a release matching mood, or any release if none match
func (s *CollectionService) GetRandomByMood(mood string) (collection.Item, bool) {
	return s.current().RandomByMood(mood)
}

// GetRandomByGenre picks a release carrying genre
func (s *CollectionService) GetRandomByGenre(genre string) (collection.Item, bool) {
	return s.current().RandomByGenre(genre)
}

// GetRandom picks any release
func (s *CollectionService) GetRandom() (collection.Item, bool) {
	return s.current().Random()
}

// GetAllGenres returns every genre and style in the collection, sorted
func (s *CollectionService) GetAllGenres() []string {
	return s.current().AllGenres()
}

// GetMoods returns the moods offered by GetRandomByMood
func (s *CollectionService) GetMoods() []string {
	return collection.Moods()
}

// DownloadCover returns the local cover of a release, downloading it if needed
func (s *CollectionService) DownloadCover(ctx context.Context, url string, releaseID int64) (string, bool) {
	return s.covers.GetOrDownload(ctx, url, releaseID)
}

// CoverPath returns the cached cover of a release without any download
func (s *CollectionService) CoverPath(releaseID int64) (string, bool) {
	if !s.covers.Exists(releaseID) {
		return "", false
	}
	return s.covers.Path(releaseID), true
}

// DownloadAllCovers caches the cover of every release in the current
// collection. See covers.Cache.DownloadAll for the progress contract.
func (s *CollectionService) DownloadAllCovers(ctx context.Context, progress covers.ProgressFunc, prewarmCount int) covers.Result {
	return s.covers.DownloadAll(ctx, s.Items(), progress, prewarmCount)
}

// PruneCovers removes cached covers and download records of releases that
// are no longer in the current collection. It does nothing before a
// collection is loaded.
func (s *CollectionService) PruneCovers() (int, error) {
	snap := s.Snapshot()
	if snap == nil || snap.Len() == 0 {
		return 0, nil
	}
	if snap.Source == collection.SourceEmpty || snap.Truncated {
		util.DebugLog("Skipping cover prune: collection is incomplete")
		return 0, nil
	}

	keep := make(map[int64]bool, snap.Len())
	for _, item := range snap.Items {
		keep[item.ID] = true
	}

	removed, err := s.covers.Prune(keep)
	if err != nil {
		return removed, err
	}
	if s.store != nil {
		if _, err := s.store.DeleteCoverDownloads(keep); err != nil {
			return removed, fmt.Errorf("prune download records: %w", err)
		}
	}
	s.events.LogPrune(removed)
	return removed, nil
}

// ClearCache removes the persisted snapshot so the next load refetches
func (s *CollectionService) ClearCache() error {
	return s.snapshots.Clear()
}

// Covers returns the cover cache
func (s *CollectionService) Covers() *covers.Cache {
	return s.covers
}

// recordDownload stores and logs one cover download outcome
func (s *CollectionService) recordDownload(dl covers.Download) {
	errMsg := ""
	if dl.Err != nil {
		errMsg = dl.Err.Error()
	}

	if s.store != nil {
		err := s.store.RecordCoverDownload(&store.CoverDownload{
			ReleaseID:  dl.ReleaseID,
			URL:        dl.URL,
			Outcome:    string(dl.Outcome),
			Attempts:   dl.Attempts,
			StatusCode: dl.StatusCode,
			Bytes:      dl.Bytes,
			DurationMs: dl.Duration.Milliseconds(),
			Error:      errMsg,
		})
		if err != nil {
			util.DebugLog("Failed to record cover download %d: %v", dl.ReleaseID, err)
		}
	}

	s.events.LogCover(dl.ReleaseID, dl.URL, string(dl.Outcome), dl.Attempts, dl.Bytes, dl.Duration, dl.Err)
}

// Status summarizes the service state
type Status struct {
	Username      string            `json:"username"`
	Authenticated bool              `json:"authenticated"`
	Loaded        bool              `json:"loaded"`
	Source        collection.Source `json:"source,omitempty"`
	Items         int               `json:"items"`
	ExpectedItems int               `json:"expected_items,omitempty"`
	Truncated     bool              `json:"truncated"`
	SnapshotAt    time.Time         `json:"snapshot_at,omitzero"`
	Stale         bool              `json:"stale"`
	CoversCached  int               `json:"covers_cached"`
	CoverBytes    int64             `json:"cover_bytes"`
	LastSync      *store.SyncRun    `json:"last_sync,omitempty"`
}

// Status reports what is loaded and cached
func (s *CollectionService) Status() Status {
	st := Status{
		Username:      s.Username(),
		Authenticated: s.Authenticated(),
	}

	if snap := s.Snapshot(); snap != nil {
		st.Loaded = true
		st.Source = snap.Source
		st.Items = snap.Len()
		st.ExpectedItems = snap.ExpectedItems
		st.Truncated = snap.Truncated
		st.SnapshotAt = snap.Timestamp
		st.Stale = snap.IsStale(s.now(), s.snapshots.MaxAge())
	}

	if count, size, err := s.covers.Stats(); err == nil {
		st.CoversCached = count
		st.CoverBytes = size
	}

	if s.store != nil {
		if run, err := s.store.LastSyncRun(); err == nil {
			st.LastSync = run
		}
	}

	return st
}
