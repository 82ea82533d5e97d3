package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/crate/internal/collection"
)

// formatAge renders t relative to now, "never" for the zero time
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func formatBytes(n int64) string {
	return humanize.Bytes(uint64(max(n, 0)))
}

// printItems writes a table of items, or a JSON array with asJSON
func printItems(w io.Writer, items []collection.Item, limit int, asJSON bool) error {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if asJSON {
		return writeJSON(w, items)
	}
	if len(items) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.ArtistOrDefault(),
			item.Title,
			item.YearOrUnknown(),
			strings.Join(item.Tags(), ", "),
		})
	}
	_, err := fmt.Fprintln(w, renderTable(
		[]string{"ID", "Artist", "Title", "Year", "Genres / Styles"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return err
}

// formatItem is "id  Artist - Title (Year)  [Genre, Style]"
func formatItem(item collection.Item) string {
	line := fmt.Sprintf("%-10d %s", item.ID, item.String())
	if tags := item.Tags(); len(tags) > 0 {
		line += "  [" + strings.Join(tags, ", ") + "]"
	}
	return line
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
