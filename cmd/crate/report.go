package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/crate/internal/report"
	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report of the collection and cache",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Collection size, unknown years and whether the snapshot is partial
- Top genres and styles, releases per decade
- Cover cache size and missing covers
- Recent failed cover downloads
- Sync history

Nothing is fetched; the report describes what is cached.
The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	util.InfoLog("Generating summary report for %s", cacheDir())

	if !a.svc.LoadCached() {
		util.WarnLog("No cached collection. Run 'crate sync' first.")
	}

	summaryReport, err := report.GenerateSummaryReport(a.svc.Snapshot(), a.svc.Covers(), a.db)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	summaryReport.CacheDir = cacheDir()
	summaryReport.DatabasePath = dbPath()
	summaryReport.EventLogPath = a.events.Path()

	// Determine output path
	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join("artifacts", "reports", timestamp)
	}

	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to %s", outputPath)

	rows := [][]string{
		{"Releases", fmt.Sprint(summaryReport.Items)},
		{"Covers cached", fmt.Sprintf("%d (%s)", summaryReport.CoversCached, formatBytes(summaryReport.CoverBytes))},
		{"Covers missing", fmt.Sprint(summaryReport.CoversMissing)},
		{"Syncs", fmt.Sprintf("%d (%d failed)", summaryReport.SyncRuns, summaryReport.SyncFailures)},
	}
	if summaryReport.Truncated {
		rows = append(rows, []string{"Partial", fmt.Sprintf("%d of %d fetched", summaryReport.Items, summaryReport.ExpectedItems)})
	}
	fmt.Println(renderTable([]string{"Summary", ""}, rows, []columnAlignment{alignLeft, alignRight}))

	return nil
}
