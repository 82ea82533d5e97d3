package main

import (
	"fmt"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the collection from Discogs and cache its covers",
	Long: `Sync the local snapshot with the Discogs collection.

A fresh snapshot (younger than --max-age) is reused unless --force is
given. If the fetch fails the previous snapshot is kept and served as
stale. After the collection is loaded, missing covers are downloaded
unless --no-covers is given.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolP("force", "f", false, "refetch even if the snapshot is fresh")
	syncCmd.Flags().Bool("no-covers", false, "skip cover downloads")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.lockCache(cacheDir()); err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	noCovers, _ := cmd.Flags().GetBool("no-covers")
	ctx := cmd.Context()

	util.InfoLog("=== Syncing Collection ===")
	util.InfoLog("Cache: %s", cacheDir())

	items := a.svc.GetCollection(ctx, force)
	snap := a.svc.Snapshot()

	switch snap.Source {
	case collection.SourceEmpty:
		return fmt.Errorf("no collection available: fetch failed and nothing is cached")
	case collection.SourceStale:
		util.WarnLog("Fetch failed, serving the snapshot from %s", formatAge(snap.Timestamp))
	case collection.SourceCache:
		util.InfoLog("Snapshot is fresh (%s), use --force to refetch", formatAge(snap.Timestamp))
	}

	util.SuccessLog("Collection of %s: %d releases", a.svc.Username(), len(items))
	if snap.Partial() {
		util.WarnLog("Partial collection: %d of %d releases fetched", len(items), snap.ExpectedItems)
	}

	if noCovers || len(items) == 0 {
		return nil
	}

	res := downloadCovers(ctx, a.svc, GetConfigInt("prewarm", defaultPrewarm))
	printCoverResult(res)

	if _, err := a.svc.PruneCovers(); err != nil {
		util.WarnLog("Failed to prune covers: %v", err)
	}
	return ctx.Err()
}
