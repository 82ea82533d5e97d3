package collection

import (
	"encoding/json"
	"testing"

	"github.com/franz/crate/internal/discogs"
)

func TestYearUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  Year
		text  string
	}{
		{`1972`, 1972, "1972"},
		{`"1985"`, 1985, "1985"},
		{`"N/A"`, 0, UnknownYear},
		{`null`, 0, UnknownYear},
		{`0`, 0, UnknownYear},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var y Year
			if err := json.Unmarshal([]byte(tt.input), &y); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", tt.input, err)
			}
			if y != tt.want {
				t.Errorf("Unmarshal(%s) = %d, want %d", tt.input, y, tt.want)
			}
			if y.String() != tt.text {
				t.Errorf("String() = %q, want %q", y.String(), tt.text)
			}
		})
	}
}

func TestFromRelease_Defaults(t *testing.T) {
	item := FromRelease(discogs.BasicInformation{ID: 3, Title: "White Label"})

	if item.Artist != UnknownArtist {
		t.Errorf("Expected artist %q, got %q", UnknownArtist, item.Artist)
	}
	if item.YearOrUnknown() != UnknownYear {
		t.Errorf("Expected year %q, got %q", UnknownYear, item.YearOrUnknown())
	}
	if item.HasCover() {
		t.Error("Item without image URLs should report no cover")
	}
	if item.Genres == nil || item.Styles == nil {
		t.Error("Genres and styles should be empty slices, not nil")
	}
}

func TestItemAccessors(t *testing.T) {
	item := Item{
		ID:     1,
		Title:  "Blue Train",
		Artist: "John Coltrane",
		Year:   1958,
		Thumb:  "https://img.example/t.jpg",
		Genres: []string{"Jazz"},
		Styles: []string{"Hard Bop"},
	}

	if got := item.CoverURL(); got != item.Thumb {
		t.Errorf("CoverURL should fall back to thumb, got %q", got)
	}
	item.Cover = "https://img.example/c.jpg"
	if got := item.CoverURL(); got != item.Cover {
		t.Errorf("CoverURL should prefer cover, got %q", got)
	}
	tags := item.Tags()
	if len(tags) != 2 || tags[0] != "Jazz" || tags[1] != "Hard Bop" {
		t.Errorf("Unexpected tags: %v", tags)
	}
	if item.String() != "John Coltrane - Blue Train (1958)" {
		t.Errorf("Unexpected String(): %q", item.String())
	}
	item.Artist = " "
	if item.ArtistOrDefault() != UnknownArtist {
		t.Errorf("Blank artist should default, got %q", item.ArtistOrDefault())
	}
}
