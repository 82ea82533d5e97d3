package main

import (
	"fmt"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
)

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Pick a random release by mood or genre",
	Long: `Pick a random release from the collection.

With --mood the release's genres or styles should contain one of the mood's
keywords (see 'crate moods'); if none do, any release is picked. With --genre the release must carry that
genre or style. Without either flag any release may be picked.`,
	RunE: runRandom,
}

func init() {
	rootCmd.AddCommand(randomCmd)

	randomCmd.Flags().StringP("mood", "m", "", "mood to match")
	randomCmd.Flags().StringP("genre", "g", "", "genre or style to match")
	randomCmd.Flags().Bool("json", false, "print the pick as JSON")
	randomCmd.MarkFlagsMutuallyExclusive("mood", "genre")
}

func runRandom(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	mood, _ := cmd.Flags().GetString("mood")
	genre, _ := cmd.Flags().GetString("genre")
	asJSON, _ := cmd.Flags().GetBool("json")

	items := a.svc.GetCollection(cmd.Context(), false)

	var (
		item collection.Item
		ok   bool
	)
	switch {
	case mood != "":
		item, ok = a.svc.GetRandomByMood(mood)
	case genre != "":
		item, ok = a.svc.GetRandomByGenre(genre)
	default:
		item, ok = a.svc.GetRandom()
	}

	if !ok {
		if len(items) == 0 {
			return fmt.Errorf("collection is empty, run 'crate sync' first")
		}
		util.WarnLog("No release matches")
		return nil
	}

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), item)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatItem(item))
	return nil
}
