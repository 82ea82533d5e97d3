package main

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/service"
	"github.com/franz/crate/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var coversCmd = &cobra.Command{
	Use:   "covers",
	Short: "Download missing cover art for the cached collection",
	Long: `Make sure every release in the collection has a cached cover.

The collection is loaded from the snapshot (fetched first if it is missing
or stale). Covers already on disk are skipped; missing ones are downloaded
one at a time with a pause between requests. Covers of releases that left
the collection are removed afterwards unless --no-prune is given.`,
	RunE: runCovers,
}

func init() {
	rootCmd.AddCommand(coversCmd)

	coversCmd.Flags().Bool("no-prune", false, "keep covers of releases no longer in the collection")
	coversCmd.Flags().Bool("stats", false, "only print cache statistics")
}

func runCovers(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	statsOnly, _ := cmd.Flags().GetBool("stats")
	if statsOnly {
		count, size, err := a.svc.Covers().Stats()
		if err != nil {
			return fmt.Errorf("failed to read cover cache: %w", err)
		}
		util.InfoLog("%d covers cached in %s (%s)", count, a.svc.Covers().Dir(), formatBytes(size))
		return nil
	}

	if err := a.lockCache(cacheDir()); err != nil {
		return err
	}

	ctx := cmd.Context()
	items := a.svc.GetCollection(ctx, false)
	if len(items) == 0 {
		util.WarnLog("Collection is empty. Run 'crate sync' first.")
		return nil
	}

	noPrune, _ := cmd.Flags().GetBool("no-prune")
	res := downloadCovers(ctx, a.svc, GetConfigInt("prewarm", defaultPrewarm))
	printCoverResult(res)

	if !noPrune {
		if _, err := a.svc.PruneCovers(); err != nil {
			return fmt.Errorf("failed to prune covers: %w", err)
		}
	}
	return ctx.Err()
}

// downloadCovers runs DownloadAllCovers with a progress bar on a terminal
// and periodic log lines otherwise
func downloadCovers(ctx context.Context, svc *service.CollectionService, prewarm int) covers.Result {
	util.InfoLog("=== Downloading Covers ===")

	var bar *progressbar.ProgressBar
	progress := func(current, total, downloaded, skipped int) {
		if !util.ShowProgress() {
			util.InfoLog("Covers: %d/%d (%d new, %d cached)", current, total, downloaded, skipped)
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Downloading covers"),
				progressbar.OptionSetWidth(progressWidth(util.GetTerminalWidth())),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("covers"),
				progressbar.OptionThrottle(200*time.Millisecond),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetRenderBlankState(true),
			)
		}
		bar.Describe(fmt.Sprintf("Covers (%d new)", downloaded))
		bar.Set(current)
	}

	res := svc.DownloadAllCovers(ctx, progress, prewarm)
	if bar != nil {
		bar.Finish()
	}
	return res
}

// progressWidth leaves room for the description, count and rate beside the bar
func progressWidth(termWidth int) int {
	return min(max(termWidth-60, 10), 40)
}

func printCoverResult(res covers.Result) {
	util.InfoLog("")
	util.InfoLog("Covers:     %d", res.Total)
	util.InfoLog("Downloaded: %d", res.Downloaded)
	util.InfoLog("Cached:     %d", res.Skipped)
	if res.Failed > 0 {
		util.WarnLog("Missing:    %d (no artwork or download failed)", res.Failed)
	}
	util.InfoLog("Time:       %v", res.Duration.Round(time.Millisecond))
}
