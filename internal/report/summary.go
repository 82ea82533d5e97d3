package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/store"
)

// SummaryReport describes the state of the local collection cache
type SummaryReport struct {
	GeneratedAt time.Time

	// Snapshot
	SnapshotTakenAt time.Time
	Items           int
	ExpectedItems   int
	Truncated       bool
	UnknownYears    int
	TopGenres       []TagCount
	Decades         []TagCount

	// Covers
	CoversCached  int
	CoverBytes    int64
	CoversMissing int
	CoversNoURL   int
	FailedCovers  []FailedCover
	CoverOutcomes map[string]int

	// Sync history
	SyncRuns     int
	SyncFailures int
	RecentRuns   []*store.SyncRun

	// Metadata
	CacheDir     string
	DatabasePath string
	EventLogPath string
}

// TagCount is a label with the number of releases carrying it
type TagCount struct {
	Name  string
	Count int
}

// FailedCover is a release whose cover could not be downloaded
type FailedCover struct {
	ReleaseID int64
	Title     string
	Error     string
}

// GenerateSummaryReport builds a report from the snapshot, the cover cache
// and, when db is not nil, the sync and download history
func GenerateSummaryReport(snap *collection.Snapshot, coverCache *covers.Cache, db *store.Store) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		TopGenres:     make([]TagCount, 0),
		Decades:       make([]TagCount, 0),
		FailedCovers:  make([]FailedCover, 0),
		CoverOutcomes: make(map[string]int),
	}

	titles := make(map[int64]string)
	if snap != nil {
		report.SnapshotTakenAt = snap.Timestamp
		report.Items = snap.Len()
		report.ExpectedItems = snap.ExpectedItems
		report.Truncated = snap.Truncated

		for _, item := range snap.Items {
			titles[item.ID] = item.String()
			if !item.Year.Known() {
				report.UnknownYears++
			}
			if coverCache != nil && !coverCache.Exists(item.ID) {
				report.CoversMissing++
				if !item.HasCover() {
					report.CoversNoURL++
				}
			}
		}
		report.TopGenres = countGenres(snap.Items, 15)
		report.Decades = countDecades(snap.Items)
	}

	if coverCache != nil {
		report.CacheDir = coverCache.Dir()
		count, size, err := coverCache.Stats()
		if err != nil {
			return nil, fmt.Errorf("cover stats: %w", err)
		}
		report.CoversCached = count
		report.CoverBytes = size
	}

	if db != nil {
		total, failed, err := db.CountSyncRuns()
		if err != nil {
			return nil, fmt.Errorf("count sync runs: %w", err)
		}
		report.SyncRuns = total
		report.SyncFailures = failed

		if report.RecentRuns, err = db.ListSyncRuns(10); err != nil {
			return nil, fmt.Errorf("list sync runs: %w", err)
		}
		if report.CoverOutcomes, err = db.CountCoverDownloadsByOutcome(); err != nil {
			return nil, fmt.Errorf("count cover outcomes: %w", err)
		}

		failedCovers, err := db.GetCoverDownloadsByOutcome(string(covers.OutcomeFailed), 20)
		if err != nil {
			return nil, fmt.Errorf("list failed covers: %w", err)
		}
		for _, dl := range failedCovers {
			title := titles[dl.ReleaseID]
			if title == "" {
				title = fmt.Sprintf("Release %d", dl.ReleaseID)
			}
			report.FailedCovers = append(report.FailedCovers, FailedCover{
				ReleaseID: dl.ReleaseID,
				Title:     title,
				Error:     dl.Error,
			})
		}
	}

	return report, nil
}

// countGenres returns the limit most common genres and styles
func countGenres(items []collection.Item, limit int) []TagCount {
	counts := make(map[string]int)
	for _, item := range items {
		seen := make(map[string]bool)
		for _, tag := range item.Tags() {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			counts[tag]++
		}
	}

	tags := make([]TagCount, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, TagCount{Name: name, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})

	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

// countDecades groups releases with a known year by decade, oldest first
func countDecades(items []collection.Item) []TagCount {
	counts := make(map[int]int)
	for _, item := range items {
		if !item.Year.Known() {
			continue
		}
		counts[int(item.Year)/10*10]++
	}

	decades := make([]int, 0, len(counts))
	for d := range counts {
		decades = append(decades, d)
	}
	sort.Ints(decades)

	result := make([]TagCount, 0, len(decades))
	for _, d := range decades {
		result = append(result, TagCount{Name: fmt.Sprintf("%ds", d), Count: counts[d]})
	}
	return result
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Crate - Collection Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.CacheDir != "" {
		md.WriteString(fmt.Sprintf("**Cache:** `%s`\n\n", report.CacheDir))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Collection\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Releases | %d |\n", report.Items))
	if report.Truncated {
		md.WriteString(fmt.Sprintf("| Expected Releases | %d (partial fetch) |\n", report.ExpectedItems))
	}
	if !report.SnapshotTakenAt.IsZero() {
		md.WriteString(fmt.Sprintf("| Snapshot | %s (%s) |\n",
			report.SnapshotTakenAt.Format("2006-01-02 15:04"), humanize.RelTime(report.SnapshotTakenAt, report.GeneratedAt, "ago", "from now")))
	}
	if report.UnknownYears > 0 {
		md.WriteString(fmt.Sprintf("| Unknown Year | %d |\n", report.UnknownYears))
	}
	md.WriteString("\n")

	if len(report.TopGenres) > 0 {
		md.WriteString("## 🎵 Top Genres & Styles\n\n")
		md.WriteString("| Genre | Releases |\n")
		md.WriteString("|-------|----------|\n")
		for _, g := range report.TopGenres {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", g.Name, g.Count))
		}
		md.WriteString("\n")
	}

	if len(report.Decades) > 0 {
		md.WriteString("## 📅 Decades\n\n")
		md.WriteString("| Decade | Releases |\n")
		md.WriteString("|--------|----------|\n")
		for _, d := range report.Decades {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", d.Name, d.Count))
		}
		md.WriteString("\n")
	}

	// Covers
	md.WriteString("## 🖼️ Covers\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Cached | %d |\n", report.CoversCached))
	md.WriteString(fmt.Sprintf("| Disk Usage | %s |\n", humanize.Bytes(uint64(report.CoverBytes))))
	if report.CoversMissing > 0 {
		md.WriteString(fmt.Sprintf("| Missing | %d |\n", report.CoversMissing))
	}
	if report.CoversNoURL > 0 {
		md.WriteString(fmt.Sprintf("| No Artwork on Discogs | %d |\n", report.CoversNoURL))
	}
	md.WriteString("\n")

	if len(report.FailedCovers) > 0 {
		md.WriteString("### ⚠️ Failed Downloads\n\n")
		md.WriteString("| Release | Title | Error |\n")
		md.WriteString("|---------|-------|-------|\n")
		for _, fc := range report.FailedCovers {
			md.WriteString(fmt.Sprintf("| %d | %s | %s |\n", fc.ReleaseID, truncateText(fc.Title, 60), truncateText(fc.Error, 60)))
		}
		md.WriteString("\n")
	}

	// Sync history
	if report.SyncRuns > 0 {
		md.WriteString("## 🔄 Sync History\n\n")
		md.WriteString(fmt.Sprintf("%d runs, %d failed\n\n", report.SyncRuns, report.SyncFailures))
		md.WriteString("| Started | Releases | Duration | Result |\n")
		md.WriteString("|---------|----------|----------|--------|\n")
		for _, run := range report.RecentRuns {
			result := "ok"
			switch {
			case run.FinishedAt.IsZero():
				result = "interrupted"
			case !run.OK():
				result = truncateText(run.Error, 50)
			case run.Truncated:
				result = fmt.Sprintf("partial (%d of %d)", run.Items, run.Expected)
			}
			md.WriteString(fmt.Sprintf("| %s | %d | %s | %s |\n",
				run.StartedAt.Local().Format("2006-01-02 15:04"), run.Items, run.Duration().Round(time.Millisecond), result))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by crate*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncateText shortens s to maxLen runes, keeping start and end
func truncateText(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	start := maxLen/2 - 2
	end := len(runes) - (maxLen/2 - 2)
	return string(runes[:start]) + "..." + string(runes[end:])
}
