package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what is cached and how the last sync went",
	Long: `Print the state of the local cache without touching the network:
the snapshot age and size, the number of cached covers and the recent
sync history.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("json", false, "print as JSON")
	statusCmd.Flags().Int("history", 5, "number of recent sync runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	history, _ := cmd.Flags().GetInt("history")

	// Status must not fetch
	a.svc.LoadCached()
	st := a.svc.Status()

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), st)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Cache:      %s\n", cacheDir())
	fmt.Fprintf(w, "Database:   %s\n", dbPath())
	if !st.Loaded {
		fmt.Fprintln(w, "Snapshot:   none (run 'crate sync')")
	} else {
		state := "fresh"
		if st.Stale {
			state = "stale"
		}
		fmt.Fprintf(w, "Snapshot:   %d releases, %s (%s)\n", st.Items, formatAge(st.SnapshotAt), state)
		if st.Truncated {
			fmt.Fprintf(w, "            partial: %d of %d releases\n", st.Items, st.ExpectedItems)
		}
	}
	fmt.Fprintf(w, "Covers:     %d cached (%s)\n", st.CoversCached, formatBytes(st.CoverBytes))

	total, failed, err := a.db.CountSyncRuns()
	if err != nil {
		return fmt.Errorf("failed to count sync runs: %w", err)
	}
	fmt.Fprintf(w, "Syncs:      %d (%d failed)\n", total, failed)

	runs, err := a.db.ListSyncRuns(history)
	if err != nil {
		return fmt.Errorf("failed to list sync runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		result := "ok"
		switch {
		case !run.OK():
			result = "failed: " + run.Error
		case run.Truncated:
			result = fmt.Sprintf("partial (%d expected)", run.Expected)
		}
		rows = append(rows, []string{
			formatAge(run.StartedAt),
			run.Username,
			fmt.Sprintf("%d", run.Items),
			run.Duration().Round(100 * time.Millisecond).String(),
			result,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Started", "User", "Items", "Took", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}
