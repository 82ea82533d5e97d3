package discogs

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/franz/crate/internal/util"
)

// Identity is the authenticated user as reported by /oauth/identity
type Identity struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	ResourceURL string `json:"resource_url"`
}

// Pagination describes the paging envelope of list endpoints
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// CollectionPage is one page of /users/{username}/collection/folders/0/releases
type CollectionPage struct {
	Pagination Pagination          `json:"pagination"`
	Releases   []CollectionRelease `json:"releases"`
}

// CollectionRelease is one owned copy of a release
type CollectionRelease struct {
	ID               int64            `json:"id"`
	InstanceID       int64            `json:"instance_id"`
	DateAdded        string           `json:"date_added"`
	Rating           int              `json:"rating"`
	BasicInformation BasicInformation `json:"basic_information"`
}

// BasicInformation is the release summary embedded in collection pages.
// Any field may be missing upstream.
type BasicInformation struct {
	ID         int64       `json:"id"`
	MasterID   int64       `json:"master_id"`
	Title      string      `json:"title"`
	Year       int         `json:"year"`
	Thumb      string      `json:"thumb"`
	CoverImage string      `json:"cover_image"`
	Artists    []ArtistRef `json:"artists"`
	Labels     []Label     `json:"labels"`
	Genres     []string    `json:"genres"`
	Styles     []string    `json:"styles"`
}

// ArtistRef is an artist credit
type ArtistRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Anv  string `json:"anv"`
	Join string `json:"join"`
}

// Label is a label credit
type Label struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Catno string `json:"catno"`
}

// Track is one tracklist entry
type Track struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	Type     string `json:"type_"`
}

// Image is a release image reference
type Image struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	URI150 string `json:"uri150"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Release is the payload of /releases/{id}
type Release struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Year      int         `json:"year"`
	Country   string      `json:"country"`
	Notes     string      `json:"notes"`
	Artists   []ArtistRef `json:"artists"`
	Labels    []Label     `json:"labels"`
	Genres    []string    `json:"genres"`
	Styles    []string    `json:"styles"`
	Tracklist []Track     `json:"tracklist"`
	Images    []Image     `json:"images"`
}

// UnknownValue is shown when the catalog has no value for a text field
const UnknownValue = "Unknown"

// ReleaseDetail is the flattened view of a release served to detail screens.
// It is never cached; every request refetches it.
type ReleaseDetail struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist"`
	Year      int      `json:"year"`
	Cover     string   `json:"cover,omitempty"`
	Genres    []string `json:"genres"`
	Styles    []string `json:"styles"`
	Tracklist []Track  `json:"tracklist"`
	Label     string   `json:"label"`
	Country   string   `json:"country"`
	Notes     string   `json:"notes"`
}

// Detail flattens a Release, substituting defaults for missing fields
func (r *Release) Detail() *ReleaseDetail {
	d := &ReleaseDetail{
		ID:        r.ID,
		Title:     r.Title,
		Artist:    FirstArtist(r.Artists),
		Year:      r.Year,
		Genres:    nonNil(r.Genres),
		Styles:    nonNil(r.Styles),
		Tracklist: r.Tracklist,
		Label:     UnknownValue,
		Country:   UnknownValue,
		Notes:     r.Notes,
	}
	if d.Tracklist == nil {
		d.Tracklist = []Track{}
	}
	if len(r.Labels) > 0 && r.Labels[0].Name != "" {
		d.Label = r.Labels[0].Name
	}
	if strings.TrimSpace(r.Country) != "" {
		d.Country = r.Country
	}
	if len(r.Images) > 0 {
		d.Cover = r.Images[0].URI
	}
	return d
}

// ReleaseURL is the public web page of a release
func ReleaseURL(releaseID int64) string {
	return fmt.Sprintf("%s/release/%d", WebURL, releaseID)
}

// FirstArtist returns the first credited artist name or UnknownValue
func FirstArtist(artists []ArtistRef) string {
	if len(artists) == 0 || strings.TrimSpace(artists[0].Name) == "" {
		return UnknownValue
	}
	return artists[0].Name
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// StatusError reports a non-200 answer from the API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

// Transient reports whether the same request may succeed later
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Unwrap maps well-known codes onto util sentinel errors
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusTooManyRequests:
		return util.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return util.ErrUnauthorized
	case http.StatusNotFound:
		return util.ErrNotFound
	}
	return nil
}
