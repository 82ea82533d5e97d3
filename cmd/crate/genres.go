package main

import (
	"fmt"
	"strings"

	"github.com/franz/crate/internal/collection"
	"github.com/spf13/cobra"
)

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List every genre and style in the collection",
	RunE:  runGenres,
}

var moodsCmd = &cobra.Command{
	Use:   "moods",
	Short: "List the moods usable with 'crate random --mood'",
	Args:  cobra.NoArgs,
	RunE:  runMoods,
}

func init() {
	rootCmd.AddCommand(genresCmd)
	rootCmd.AddCommand(moodsCmd)

	genresCmd.Flags().Bool("json", false, "print as JSON")
	moodsCmd.Flags().Bool("keywords", false, "show the keywords of each mood")
}

func runGenres(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	asJSON, _ := cmd.Flags().GetBool("json")

	a.svc.GetCollection(cmd.Context(), false)
	genres := a.svc.GetAllGenres()

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), genres)
	}
	for _, genre := range genres {
		fmt.Fprintln(cmd.OutOrStdout(), genre)
	}
	return nil
}

func runMoods(cmd *cobra.Command, args []string) error {
	showKeywords, _ := cmd.Flags().GetBool("keywords")

	for _, mood := range collection.Moods() {
		if showKeywords {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", mood, strings.Join(collection.MoodKeywords(mood), ", "))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), mood)
		}
	}
	return nil
}
