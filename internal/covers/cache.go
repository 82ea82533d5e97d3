// Package covers keeps one JPEG per release in the cache directory and
// downloads missing ones politely: requests are spaced out, 429 answers back
// off and other errors give up.
package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/util"
)

const (
	// MaxAttempts is the number of download attempts per cover
	MaxAttempts = 3

	// DefaultMinInterval is slept before every download attempt
	DefaultMinInterval = 200 * time.Millisecond

	// RateLimitBackoff is multiplied by the attempt number after a 429
	RateLimitBackoff = 2 * time.Second

	// DefaultTimeout bounds a single image request
	DefaultTimeout = 10 * time.Second

	// DefaultPrewarm is how many covers DownloadAll handles with per-item progress
	DefaultPrewarm = 20

	// ProgressEvery is the reporting interval after the prewarm phase
	ProgressEvery = 10

	maxImageBytes = 32 << 20
	fileExt       = ".jpg"
)

// Outcome classifies what happened to one cover
type Outcome string

const (
	OutcomeCached     Outcome = "cached"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeNoURL      Outcome = "no_url"
	OutcomeFailed     Outcome = "failed"
)

// Download describes one finished GetOrDownload call that hit the network
// or had nothing to fetch
type Download struct {
	ReleaseID  int64
	URL        string
	Outcome    Outcome
	Attempts   int
	StatusCode int
	Bytes      int64
	Duration   time.Duration
	Err        error
}

// Config holds cover cache configuration
type Config struct {
	Dir          string
	HTTPClient   *http.Client
	Timeout      time.Duration
	UserAgent    string
	MinInterval  time.Duration
	MaxDimension int // 0 keeps the original size
	JPEGQuality  int

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Observer is told about every download attempt sequence. Optional.
	Observer func(Download)
}

// Cache is the on-disk cover store
type Cache struct {
	dir          string
	httpClient   *http.Client
	userAgent    string
	minInterval  time.Duration
	maxDimension int
	quality      int
	sleep        func(ctx context.Context, d time.Duration) error
	observer     func(Download)
}

// NewCache creates the cache directory if needed
func NewCache(cfg *Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: cover cache directory is empty", util.ErrInvalidConfig)
	}
	if err := util.RetryableMkdirAll(cfg.Dir, 0o755, nil); err != nil {
		return nil, fmt.Errorf("create cover directory: %w", err)
	}

	c := &Cache{
		dir:          cfg.Dir,
		httpClient:   cfg.HTTPClient,
		userAgent:    cfg.UserAgent,
		minInterval:  cfg.MinInterval,
		maxDimension: cfg.MaxDimension,
		quality:      cfg.JPEGQuality,
		sleep:        cfg.Sleep,
		observer:     cfg.Observer,
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.minInterval < DefaultMinInterval {
		c.minInterval = DefaultMinInterval
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the deterministic cover path for a release
func (c *Cache) Path(releaseID int64) string {
	return filepath.Join(c.dir, strconv.FormatInt(releaseID, 10)+fileExt)
}

// Exists reports whether the cover of a release is cached
func (c *Cache) Exists(releaseID int64) bool {
	return util.FileExists(c.Path(releaseID))
}

// GetOrDownload returns the local cover path of a release, downloading it
// if needed. A cached file is returned without any request, whatever url
// is. ok is false if there is no url or the download failed.
func (c *Cache) GetOrDownload(ctx context.Context, url string, releaseID int64) (path string, ok bool) {
	path = c.Path(releaseID)
	if util.FileExists(path) {
		return path, true
	}
	if url == "" {
		c.observe(Download{ReleaseID: releaseID, Outcome: OutcomeNoURL})
		return "", false
	}

	start := time.Now()
	dl := Download{ReleaseID: releaseID, URL: url, Outcome: OutcomeFailed}
	defer func() {
		dl.Duration = time.Since(start)
		c.observe(dl)
	}()

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		dl.Attempts = attempt
		if err := c.sleep(ctx, c.minInterval); err != nil {
			dl.Err = err
			return "", false
		}

		data, status, err := c.fetch(ctx, url)
		dl.StatusCode = status
		if err == nil {
			switch {
			case status == http.StatusOK:
				var n int64
				n, err = c.save(path, data)
				if err == nil {
					dl.Outcome, dl.Bytes, dl.Err = OutcomeDownloaded, n, nil
					util.DebugLog("Cover %d cached (%d bytes)", releaseID, n)
					return path, true
				}
			case status == http.StatusTooManyRequests:
				wait := time.Duration(attempt) * RateLimitBackoff
				dl.Err = util.ErrRateLimited
				util.InfoLog("Rate limited, waiting %v...", wait)
				if err := c.sleep(ctx, wait); err != nil {
					dl.Err = err
					return "", false
				}
				continue
			default:
				dl.Err = fmt.Errorf("cover %d: unexpected status code %d", releaseID, status)
				util.DebugLog("Cover %d: giving up after HTTP %d", releaseID, status)
				return "", false
			}
		}

		dl.Err = err
		if attempt == MaxAttempts {
			util.WarnLog("Error downloading cover %d: %v", releaseID, err)
		} else {
			util.DebugLog("Cover %d attempt %d/%d failed: %v", releaseID, attempt, MaxAttempts, err)
		}
	}

	return "", false
}

// fetch GETs url and returns the body of a 200 answer
func (c *Cache) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// save transcodes data to JPEG and writes it atomically
func (c *Cache) save(path string, data []byte) (int64, error) {
	jpegData, err := transcode(data, c.maxDimension, c.quality)
	if err != nil {
		return 0, err
	}
	if err := util.WriteFileAtomic(path, jpegData, 0o644); err != nil {
		return 0, err
	}
	return int64(len(jpegData)), nil
}

func (c *Cache) observe(dl Download) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			util.DebugLog("Cover observer panicked: %v", r)
		}
	}()
	c.observer(dl)
}

// ProgressFunc receives (current, total, downloadedSoFar, skippedSoFar).
// Releases without artwork and failed downloads are in neither count, so
// at the final report downloaded+skipped falls short of total by exactly
// the number of failures (Result.Failed).
type ProgressFunc func(current, total, downloaded, skipped int)

// Result summarizes a DownloadAll run.
// Downloaded+Skipped+Failed always equals Total.
type Result struct {
	Total      int
	Downloaded int
	Skipped    int // already cached
	Failed     int // no artwork URL or download failed
	Duration   time.Duration
}

// DownloadAll makes sure every item has a cached cover, in order.
// The first prewarmCount items report progress after each item; the rest
// report every ProgressEvery items, and a final report is always sent.
// Panics raised by progress are swallowed.
func (c *Cache) DownloadAll(ctx context.Context, items []collection.Item, progress ProgressFunc, prewarmCount int) Result {
	start := time.Now()
	total := len(items)
	res := Result{Total: total}

	report := func(current int) {
		if progress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				util.DebugLog("Progress callback panicked: %v", r)
			}
		}()
		progress(current, total, res.Downloaded, res.Skipped)
	}

	prewarmCount = min(max(prewarmCount, 0), total)

	for i, item := range items {
		switch {
		case c.Exists(item.ID):
			res.Skipped++
		case !item.HasCover():
			res.Failed++
			c.observe(Download{ReleaseID: item.ID, Outcome: OutcomeNoURL})
		default:
			if _, ok := c.GetOrDownload(ctx, item.CoverURL(), item.ID); ok {
				res.Downloaded++
			} else {
				res.Failed++
			}
		}

		if i < prewarmCount || (i+1)%ProgressEvery == 0 {
			report(i + 1)
		}
	}

	report(total)

	res.Duration = time.Since(start)
	util.SuccessLog("Cover download complete: %d new, %d cached, %d unavailable", res.Downloaded, res.Skipped, res.Failed)
	return res
}

// Stats returns the number of cached covers and their total size
func (c *Cache) Stats() (count int, bytes int64, err error) {
	err = c.walk(func(_ int64, info os.FileInfo) error {
		count++
		bytes += info.Size()
		return nil
	})
	return count, bytes, err
}

// Prune removes covers of releases not in keep
func (c *Cache) Prune(keep map[int64]bool) (removed int, err error) {
	err = c.walk(func(id int64, _ os.FileInfo) error {
		if keep[id] {
			return nil
		}
		if err := os.Remove(c.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove cover %d: %w", id, err)
		}
		removed++
		return nil
	})
	if removed > 0 {
		util.InfoLog("Pruned %d covers of releases no longer in the collection", removed)
	}
	return removed, err
}

// walk visits every <id>.jpg in the cache directory
func (c *Cache) walk(fn func(id int64, info os.FileInfo) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cover directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, fileExt), 10, 64)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if err := fn(id, info); err != nil {
			return err
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
