package main

import (
	"strings"

	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the collection by title, artist, genre or style",
	Long: `Search the cached collection. Matching is case-insensitive and ignores
accents, so "bjork" finds "Björk". Results keep collection order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntP("limit", "n", 0, "show at most this many results (0 = all)")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	a.svc.GetCollection(cmd.Context(), false)
	query := strings.Join(args, " ")
	results := a.svc.SearchCollection(query)

	if !asJSON {
		util.InfoLog("%d releases match %q", len(results), query)
	}
	return printItems(cmd.OutOrStdout(), results, limit, asJSON)
}
