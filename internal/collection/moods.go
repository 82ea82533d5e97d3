package collection

import "strings"

// moodKeywords maps a coarse mood onto genre/style keywords.
// Keywords are Discogs genre and style names.
var moodKeywords = map[string][]string{
	"energetic":   {"Rock", "Punk", "Electronic", "Dance", "Hip Hop"},
	"chill":       {"Jazz", "Ambient", "Classical", "Folk", "Soul"},
	"melancholic": {"Blues", "Folk", "Classical", "Indie"},
	"happy":       {"Pop", "Funk", "Soul", "Disco"},
	"dark":        {"Metal", "Industrial", "Gothic", "Post-Punk"},
	"groovy":      {"Funk", "Soul", "Disco", "R&B"},
}

// moodOrder is the display order of the jukebox mood buttons
var moodOrder = []string{"energetic", "chill", "melancholic", "happy", "dark", "groovy"}

// Moods returns the known mood names in display order
func Moods() []string {
	out := make([]string, len(moodOrder))
	copy(out, moodOrder)
	return out
}

// MoodKeywords returns the keywords of a mood, or nil if it is unknown.
// Lookup ignores case and surrounding space.
func MoodKeywords(mood string) []string {
	keywords, ok := moodKeywords[strings.ToLower(strings.TrimSpace(mood))]
	if !ok {
		return nil
	}
	out := make([]string, len(keywords))
	copy(out, keywords)
	return out
}
