package discogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/franz/crate/internal/util"
)

const (
	// BaseURL is the Discogs API base URL
	BaseURL = "https://api.discogs.com"

	// WebURL is the Discogs website
	WebURL = "https://www.discogs.com"

	// UserAgent identifies this application to Discogs.
	// Discogs rejects requests without a descriptive user agent.
	UserAgent = "CrateVinylKiosk/1.0 (+https://github.com/franz/crate)"

	// RateLimit is the minimum spacing between API requests.
	// Authenticated clients get 60 requests per minute.
	RateLimit = 1 * time.Second

	// DefaultTimeout bounds every single HTTP call
	DefaultTimeout = 30 * time.Second

	// DefaultPerPage is the page size used for collection pagination
	DefaultPerPage = 100

	maxErrorBody = 512
)

// Config holds client settings. Zero values fall back to defaults.
type Config struct {
	BaseURL    string
	Token      string
	UserAgent  string
	Timeout    time.Duration
	RateLimit  time.Duration // negative disables client-side throttling
	HTTPClient *http.Client
}

// Client handles Discogs API requests with rate limiting
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	rateLimit  time.Duration

	mu          sync.Mutex
	lastRequest time.Time
	identity    *Identity
}

// NewClient creates a new Discogs API client
func NewClient(cfg Config) *Client {
	c := &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		rateLimit:  cfg.RateLimit,
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.baseURL == "" {
		c.baseURL = BaseURL
	}
	if c.userAgent == "" {
		c.userAgent = UserAgent
	}
	if c.rateLimit == 0 {
		c.rateLimit = RateLimit
	}
	return c
}

// Identity returns the identity established by Authenticate, or nil
func (c *Client) Identity() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Authenticate establishes identity with Discogs using the configured token.
// It never returns an error; failures are logged and reported as false.
func (c *Client) Authenticate(ctx context.Context) bool {
	if c.token == "" {
		util.WarnLog("Discogs authentication skipped: no user token configured")
		return false
	}

	var ident Identity
	if err := c.getJSON(ctx, "/oauth/identity", nil, &ident); err != nil {
		util.WarnLog("Discogs authentication failed: %v", err)
		return false
	}
	if ident.Username == "" {
		util.WarnLog("Discogs authentication failed: identity response has no username")
		return false
	}

	c.mu.Lock()
	c.identity = &ident
	c.mu.Unlock()

	util.DebugLog("Discogs: authenticated as '%s' (id %d)", ident.Username, ident.ID)
	return true
}

// FetchCollectionPage fetches one page of the user's "All" folder.
// Non-200 answers are returned as *StatusError and never retried.
func (c *Client) FetchCollectionPage(ctx context.Context, username string, page, perPage int) (*CollectionPage, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	path := fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(username))
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	util.DebugLog("Discogs API: fetching collection page %d for '%s'", page, username)

	var result CollectionPage
	if err := c.getJSON(ctx, path, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchResult is the outcome of a full paginated collection fetch
type FetchResult struct {
	Releases   []BasicInformation
	TotalItems int // as reported by the server
	TotalPages int
	PagesRead  int
	Truncated  bool  // a page failed before all pages were read
	Err        error // the page error that caused truncation
}

// FetchCollection walks every page of the collection.
// The page count comes from the first response. The walk stops when all
// pages are read or maxItems releases were collected (0 means no cap).
// A failed page ends the walk and the releases read so far are returned with
// Truncated set. An error is returned if not even the first page could be
// read or ctx was cancelled during the walk.
func (c *Client) FetchCollection(ctx context.Context, username string, perPage, maxItems int) (*FetchResult, error) {
	result := &FetchResult{}

	for page := 1; ; page++ {
		resp, err := c.FetchCollectionPage(ctx, username, page, perPage)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch collection: %w", err)
			}
			// A cancelled walk is not a short collection
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("fetch collection: %w", ctxErr)
			}
			if IsRateLimited(err) {
				util.WarnLog("Discogs: rate limited on page %d/%d; consider a longer --rate-limit",
					page, result.TotalPages)
			}
			util.WarnLog("Discogs: page %d/%d failed, keeping %d records: %v",
				page, result.TotalPages, len(result.Releases), err)
			result.Truncated = true
			result.Err = err
			return result, nil
		}

		if page == 1 {
			result.TotalPages = resp.Pagination.Pages
			result.TotalItems = resp.Pagination.Items
			util.InfoLog("Fetching %d records across %d pages...", result.TotalItems, result.TotalPages)
		}
		result.PagesRead++

		for _, r := range resp.Releases {
			info := r.BasicInformation
			if info.ID == 0 {
				info.ID = r.ID
			}
			result.Releases = append(result.Releases, info)
		}

		util.InfoLog("Loaded page %d/%d (%d records so far)", page, result.TotalPages, len(result.Releases))

		if maxItems > 0 && len(result.Releases) >= maxItems {
			result.Releases = result.Releases[:maxItems]
			util.InfoLog("Reached limit of %d records", maxItems)
			return result, nil
		}
		if page >= result.TotalPages {
			return result, nil
		}
	}
}

// FetchReleaseDetail fetches the full record of one release.
// Transient network errors, 429 and 5xx answers are retried; any final failure
// is logged and nil is returned.
func (c *Client) FetchReleaseDetail(ctx context.Context, releaseID int64) *ReleaseDetail {
	if releaseID <= 0 {
		util.WarnLog("Discogs: invalid release id %d", releaseID)
		return nil
	}

	path := fmt.Sprintf("/releases/%d", releaseID)
	release, err := util.RetryWithBackoff(ctx, util.NetworkRetryConfig(), fmt.Sprintf("release(%d)", releaseID), func(ctx context.Context) (*Release, error) {
		var r Release
		if err := c.getJSON(ctx, path, nil, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		util.WarnLog("Error fetching release details for %d: %v", releaseID, err)
		return nil
	}
	if release.ID == 0 {
		util.WarnLog("Discogs: release %d response has no id", releaseID)
		return nil
	}

	util.DebugLog("Discogs: retrieved release %d '%s' with %d tracks",
		release.ID, release.Title, len(release.Tracklist))
	return release.Detail()
}

// getJSON performs a rate-limited GET against the API and decodes the body
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.waitForRateLimit(ctx); err != nil {
		return err
	}

	urlStr := c.baseURL + path
	if len(params) > 0 {
		urlStr += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.discogs.v2.discogs+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// waitForRateLimit spaces requests at least rateLimit apart
func (c *Client) waitForRateLimit(ctx context.Context) error {
	if c.rateLimit < 0 {
		return nil
	}

	c.mu.Lock()
	wait := c.rateLimit - time.Since(c.lastRequest)
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// IsRateLimited reports whether err came from a 429 answer
func IsRateLimited(err error) bool {
	return errors.Is(err, util.ErrRateLimited)
}
