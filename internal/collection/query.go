package collection

import (
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// fold returns the case-folded NFC form of s used for comparisons
func fold(caser cases.Caser, s string) string {
	return caser.String(norm.NFC.String(strings.TrimSpace(s)))
}

// indexedItem carries precomputed folded fields for matching
type indexedItem struct {
	title  string
	artist string
	tags   []string // genres then styles
}

// Engine serves queries over one snapshot's items. It never does I/O
// and its item list is never modified; a refresh builds a new Engine.
type Engine struct {
	items []Item
	index []indexedItem

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewEngine indexes items for querying. rng may be nil, in which case the
// process-wide random source is used.
func NewEngine(items []Item, rng *rand.Rand) *Engine {
	caser := cases.Fold()
	index := make([]indexedItem, len(items))
	for i, item := range items {
		tags := item.Tags()
		folded := make([]string, len(tags))
		for j, tag := range tags {
			folded[j] = fold(caser, tag)
		}
		index[i] = indexedItem{
			title:  fold(caser, item.Title),
			artist: fold(caser, item.ArtistOrDefault()),
			tags:   folded,
		}
	}
	return &Engine{items: items, index: index, rng: rng}
}

// Len returns the number of items
func (e *Engine) Len() int {
	return len(e.items)
}

// Items returns the items in snapshot order. The slice must not be modified.
func (e *Engine) Items() []Item {
	return e.items
}

// Get returns the item with the given release id
func (e *Engine) Get(id int64) (Item, bool) {
	for _, item := range e.items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// Search returns items whose title, artist or any genre/style contains
// query, ignoring case. Results keep snapshot order. An empty query
// matches everything.
func (e *Engine) Search(query string) []Item {
	q := fold(cases.Fold(), query)
	results := make([]Item, 0)
	for i, idx := range e.index {
		if q == "" || strings.Contains(idx.title, q) || strings.Contains(idx.artist, q) || anyContains(idx.tags, q) {
			results = append(results, e.items[i])
		}
	}
	return results
}

// RandomByMood picks a random item whose genres or styles include one of
// the mood's keywords. An empty or unknown mood, or a mood nothing matches,
// picks from the whole collection. ok is false only for an empty collection.
func (e *Engine) RandomByMood(mood string) (item Item, ok bool) {
	if keywords := MoodKeywords(mood); keywords != nil {
		caser := cases.Fold()
		targets := make(map[string]bool, len(keywords))
		for _, k := range keywords {
			targets[fold(caser, k)] = true
		}

		var matching []int
		for i, idx := range e.index {
			for _, tag := range idx.tags {
				if targets[tag] {
					matching = append(matching, i)
					break
				}
			}
		}
		if len(matching) > 0 {
			return e.items[matching[e.intN(len(matching))]], true
		}
	}

	return e.Random()
}

// RandomByGenre picks a random item with a genre or style equal to genre,
// ignoring case. ok is false if nothing matches.
func (e *Engine) RandomByGenre(genre string) (item Item, ok bool) {
	target := fold(cases.Fold(), genre)
	if target == "" {
		return Item{}, false
	}

	var matching []int
	for i, idx := range e.index {
		for _, tag := range idx.tags {
			if tag == target {
				matching = append(matching, i)
				break
			}
		}
	}
	if len(matching) == 0 {
		return Item{}, false
	}
	return e.items[matching[e.intN(len(matching))]], true
}

// Random picks a uniformly random item
func (e *Engine) Random() (Item, bool) {
	if len(e.items) == 0 {
		return Item{}, false
	}
	return e.items[e.intN(len(e.items))], true
}

// AllGenres returns every genre and style in the collection, deduplicated
// and sorted
func (e *Engine) AllGenres() []string {
	seen := make(map[string]bool)
	genres := make([]string, 0)
	for _, item := range e.items {
		for _, tag := range item.Tags() {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			genres = append(genres, tag)
		}
	}
	sort.Strings(genres)
	return genres
}

func (e *Engine) intN(n int) int {
	if e.rng == nil {
		return rand.IntN(n)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}

func anyContains(values []string, q string) bool {
	for _, v := range values {
		if strings.Contains(v, q) {
			return true
		}
	}
	return false
}
