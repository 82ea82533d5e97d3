package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/crate/internal/discogs"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Show the full record of a release",
	Long: `Fetch a release from Discogs and print its details and tracklist.
Release details are never cached.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelease,
}

func init() {
	rootCmd.AddCommand(releaseCmd)

	releaseCmd.Flags().Bool("json", false, "print as JSON")
	releaseCmd.Flags().Bool("qr", false, "print a QR code linking to the release page")
}

func runRelease(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid release id %q", args[0])
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	detail := a.svc.GetReleaseDetails(cmd.Context(), id)
	if detail == nil {
		return fmt.Errorf("release %d not found", id)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), detail)
	}
	printRelease(cmd, detail)

	if showQR, _ := cmd.Flags().GetBool("qr"); showQR {
		qr, err := qrcode.New(discogs.ReleaseURL(id), qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to encode QR code: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), qr.ToSmallString(false))
		fmt.Fprintln(cmd.OutOrStdout(), discogs.ReleaseURL(id))
	}
	return nil
}

func printRelease(cmd *cobra.Command, d *discogs.ReleaseDetail) {
	w := cmd.OutOrStdout()
	year := "N/A"
	if d.Year > 0 {
		year = strconv.Itoa(d.Year)
	}

	fmt.Fprintf(w, "%s - %s\n", d.Artist, d.Title)
	fmt.Fprintf(w, "  Year:    %s\n", year)
	fmt.Fprintf(w, "  Label:   %s\n", d.Label)
	fmt.Fprintf(w, "  Country: %s\n", d.Country)
	if len(d.Genres) > 0 {
		fmt.Fprintf(w, "  Genres:  %s\n", strings.Join(d.Genres, ", "))
	}
	if len(d.Styles) > 0 {
		fmt.Fprintf(w, "  Styles:  %s\n", strings.Join(d.Styles, ", "))
	}

	if len(d.Tracklist) > 0 {
		fmt.Fprintln(w)
		for _, track := range d.Tracklist {
			if track.Type == "heading" {
				fmt.Fprintf(w, "  %s\n", track.Title)
				continue
			}
			line := fmt.Sprintf("  %-4s %s", track.Position, track.Title)
			if track.Duration != "" {
				line += " (" + track.Duration + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if notes := strings.TrimSpace(d.Notes); notes != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, notes)
	}
}
