// Package collection holds the local copy of a Discogs collection: the item
// model, the on-disk snapshot cache and the in-memory query engine.
package collection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/crate/internal/discogs"
)

// UnknownArtist is used when a release has no artist credit
const UnknownArtist = discogs.UnknownValue

// UnknownYear is how a missing release year is displayed
const UnknownYear = "N/A"

// Year is a release year where 0 means unknown.
// It decodes from a number, a numeric string, "N/A" or null.
type Year int

// String returns the year or UnknownYear
func (y Year) String() string {
	if y <= 0 {
		return UnknownYear
	}
	return strconv.Itoa(int(y))
}

// Known reports whether the year is set
func (y Year) Known() bool {
	return y > 0
}

// UnmarshalJSON accepts 1972, "1972", "N/A" and null
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*y = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			*y = 0
			return nil
		}
		*y = Year(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid year %s: %w", data, err)
	}
	*y = Year(n)
	return nil
}

// Item is one owned release
type Item struct {
	ID     int64    `json:"id"`
	Title  string   `json:"title"`
	Artist string   `json:"artist"`
	Year   Year     `json:"year"`
	Thumb  string   `json:"thumb,omitempty"`
	Cover  string   `json:"cover,omitempty"`
	Genres []string `json:"genres"`
	Styles []string `json:"styles"`
}

// FromRelease builds an Item from collection-page data, filling defaults
// for anything the catalog left out
func FromRelease(info discogs.BasicInformation) Item {
	item := Item{
		ID:     info.ID,
		Title:  info.Title,
		Artist: discogs.FirstArtist(info.Artists),
		Year:   Year(info.Year),
		Thumb:  strings.TrimSpace(info.Thumb),
		Cover:  strings.TrimSpace(info.CoverImage),
		Genres: info.Genres,
		Styles: info.Styles,
	}
	if item.Genres == nil {
		item.Genres = []string{}
	}
	if item.Styles == nil {
		item.Styles = []string{}
	}
	return item
}

// ArtistOrDefault returns the artist or UnknownArtist
func (i Item) ArtistOrDefault() string {
	if strings.TrimSpace(i.Artist) == "" {
		return UnknownArtist
	}
	return i.Artist
}

// YearOrUnknown returns the year as text, or UnknownYear
func (i Item) YearOrUnknown() string {
	return i.Year.String()
}

// CoverURL prefers the full-size cover and falls back to the thumbnail.
// Empty means the release has no artwork at all.
func (i Item) CoverURL() string {
	if i.Cover != "" {
		return i.Cover
	}
	return i.Thumb
}

// HasCover reports whether any artwork URL is known
func (i Item) HasCover() bool {
	return i.CoverURL() != ""
}

// Tags returns genres followed by styles
func (i Item) Tags() []string {
	tags := make([]string, 0, len(i.Genres)+len(i.Styles))
	tags = append(tags, i.Genres...)
	return append(tags, i.Styles...)
}

// String renders the item as "Artist - Title (Year)"
func (i Item) String() string {
	return fmt.Sprintf("%s - %s (%s)", i.ArtistOrDefault(), i.Title, i.YearOrUnknown())
}
