package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/service"
)

type stubCatalog struct {
	releases []discogs.BasicInformation
	detail   *discogs.ReleaseDetail
}

func (c *stubCatalog) Authenticate(ctx context.Context) bool { return true }

func (c *stubCatalog) Identity() *discogs.Identity {
	return &discogs.Identity{ID: 1, Username: "digger"}
}

func (c *stubCatalog) FetchCollection(ctx context.Context, username string, perPage, maxItems int) (*discogs.FetchResult, error) {
	return &discogs.FetchResult{Releases: c.releases, TotalItems: len(c.releases), TotalPages: 1, PagesRead: 1}, nil
}

func (c *stubCatalog) FetchReleaseDetail(ctx context.Context, id int64) *discogs.ReleaseDetail {
	if c.detail != nil && c.detail.ID == id {
		return c.detail
	}
	return nil
}

func imageHost(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	svc    *service.CollectionService
	worker *service.Worker
	api    *httptest.Server
}

func newFixture(t *testing.T, withWorker, load bool) *fixture {
	t.Helper()
	host := imageHost(t)
	catalog := &stubCatalog{
		releases: []discogs.BasicInformation{
			{ID: 1, Title: "Unknown Pleasures", Year: 1979, CoverImage: host.URL + "/1.png",
				Artists: []discogs.ArtistRef{{Name: "Joy Division"}}, Genres: []string{"Rock"}, Styles: []string{"Post-Punk"}},
			{ID: 2, Title: "Kind of Blue", Year: 1959, CoverImage: host.URL + "/2.png",
				Artists: []discogs.ArtistRef{{Name: "Miles Davis"}}, Genres: []string{"Jazz"}},
			{ID: 3, Title: "White Label", Genres: []string{"Electronic"}},
		},
		detail: &discogs.ReleaseDetail{ID: 2, Title: "Kind of Blue", Label: "Columbia", Country: "US"},
	}

	svc, err := service.New(&service.Config{
		Catalog:  catalog,
		CacheDir: t.TempDir(),
		Covers: covers.Config{Sleep: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		}},
		Rand: rand.New(rand.NewPCG(7, 7)),
	})
	if err != nil {
		t.Fatalf("service.New failed: %v", err)
	}
	if load {
		svc.GetCollection(context.Background(), false)
	}

	f := &fixture{svc: svc}
	cfg := &Config{Service: svc}
	if withWorker {
		f.worker = service.NewWorker(svc, 0)
		cfg.Worker = f.worker
	}
	f.api = httptest.NewServer(New(cfg).Handler())
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.api.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false, false)
	if resp := f.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestCollection(t *testing.T) {
	f := newFixture(t, false, true)

	var body struct {
		Count  int               `json:"count"`
		Source string            `json:"source"`
		Items  []collection.Item `json:"items"`
	}
	resp := f.do(t, http.MethodGet, "/api/collection", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Count != 3 || len(body.Items) != 3 || body.Source != "network" {
		t.Errorf("Unexpected collection: %+v", body)
	}
	if body.Items[2].ArtistOrDefault() != "Unknown" || body.Items[2].Year.Known() {
		t.Errorf("Expected defaults for missing artist and year, got %+v", body.Items[2])
	}
}

func TestCollection_BeforeLoadIsEmpty(t *testing.T) {
	f := newFixture(t, false, false)

	var body struct {
		Count int               `json:"count"`
		Items []collection.Item `json:"items"`
	}
	f.do(t, http.MethodGet, "/api/collection", &body)
	if body.Count != 0 || body.Items == nil {
		t.Errorf("Expected empty item list, got %+v", body)
	}
}

func TestRefresh_Inline(t *testing.T) {
	f := newFixture(t, false, false)

	var body struct {
		Count int `json:"count"`
	}
	resp := f.do(t, http.MethodPost, "/api/collection/refresh", &body)
	if resp.StatusCode != http.StatusOK || body.Count != 3 {
		t.Errorf("Expected inline refresh with 3 items, got %d / %d", resp.StatusCode, body.Count)
	}
}

func TestRefresh_BackgroundAndMessages(t *testing.T) {
	f := newFixture(t, true, false)

	resp := f.do(t, http.MethodPost, "/api/collection/refresh", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}
	f.worker.Wait()

	var body struct {
		Messages []struct {
			Kind       string `json:"kind"`
			Items      int    `json:"items"`
			Downloaded int    `json:"downloaded"`
			Failed     int    `json:"failed"`
		} `json:"messages"`
	}
	f.do(t, http.MethodGet, "/api/messages", &body)
	if len(body.Messages) < 2 {
		t.Fatalf("Expected at least snapshot and done messages, got %+v", body.Messages)
	}
	first, last := body.Messages[0], body.Messages[len(body.Messages)-1]
	if first.Kind != string(service.SnapshotReady) || first.Items != 3 {
		t.Errorf("Unexpected first message: %+v", first)
	}
	if last.Kind != string(service.CoversDone) || last.Downloaded != 2 || last.Failed != 1 {
		t.Errorf("Unexpected last message: %+v", last)
	}

	// Drained
	f.do(t, http.MethodGet, "/api/messages", &body)
	if len(body.Messages) != 0 {
		t.Errorf("Expected empty queue after drain, got %d", len(body.Messages))
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false, true)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"MILES", 1},
		{"post-punk", 1},
		{"polka", 0},
	}
	for _, tt := range tests {
		var body struct {
			Count int               `json:"count"`
			Items []collection.Item `json:"items"`
		}
		f.do(t, http.MethodGet, "/api/search?q="+tt.query, &body)
		if body.Count != tt.want || len(body.Items) != tt.want {
			t.Errorf("search %q: got %d, want %d", tt.query, body.Count, tt.want)
		}
	}
}

func TestRandom(t *testing.T) {
	f := newFixture(t, false, true)

	var item collection.Item
	resp := f.do(t, http.MethodGet, "/api/random?mood=chill", &item)
	if resp.StatusCode != http.StatusOK || item.ID != 2 {
		t.Errorf("Expected Kind of Blue for chill, got %d %+v", resp.StatusCode, item)
	}

	resp = f.do(t, http.MethodGet, "/api/random", &item)
	if resp.StatusCode != http.StatusOK || item.ID == 0 {
		t.Errorf("Expected any release without mood, got %d %+v", resp.StatusCode, item)
	}

	resp = f.do(t, http.MethodGet, "/api/random/genre/rock", &item)
	if resp.StatusCode != http.StatusOK || item.ID != 1 {
		t.Errorf("Expected Unknown Pleasures for rock, got %d %+v", resp.StatusCode, item)
	}

	if resp := f.do(t, http.MethodGet, "/api/random/genre/Polka", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing genre, got %d", resp.StatusCode)
	}
}

func TestRandom_EmptyCollection(t *testing.T) {
	f := newFixture(t, false, false)
	if resp := f.do(t, http.MethodGet, "/api/random?mood=dark", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on empty collection, got %d", resp.StatusCode)
	}
}

func TestGenresAndMoods(t *testing.T) {
	f := newFixture(t, false, true)

	var genres struct {
		Genres []string `json:"genres"`
	}
	f.do(t, http.MethodGet, "/api/genres", &genres)
	want := []string{"Electronic", "Jazz", "Post-Punk", "Rock"}
	if len(genres.Genres) != len(want) {
		t.Fatalf("genres = %v, want %v", genres.Genres, want)
	}
	for i := range want {
		if genres.Genres[i] != want[i] {
			t.Errorf("genres[%d] = %s, want %s", i, genres.Genres[i], want[i])
		}
	}

	var moods struct {
		Moods []string `json:"moods"`
	}
	f.do(t, http.MethodGet, "/api/moods", &moods)
	if len(moods.Moods) != 6 {
		t.Errorf("Expected 6 moods, got %v", moods.Moods)
	}
}

func TestRelease(t *testing.T) {
	f := newFixture(t, false, true)

	var detail discogs.ReleaseDetail
	resp := f.do(t, http.MethodGet, "/api/releases/2", &detail)
	if resp.StatusCode != http.StatusOK || detail.Label != "Columbia" {
		t.Errorf("Unexpected release response %d %+v", resp.StatusCode, detail)
	}

	if resp := f.do(t, http.MethodGet, "/api/releases/9", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unavailable release, got %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodGet, "/api/releases/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestCovers(t *testing.T) {
	f := newFixture(t, false, true)

	resp := f.do(t, http.MethodGet, "/covers/1.jpg", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("Expected on-demand cover download, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if _, ok := f.svc.CoverPath(1); !ok {
		t.Error("Cover should be cached after serving")
	}

	tests := []struct {
		path string
		want int
	}{
		{"/covers/3.jpg", http.StatusNotFound},  // no artwork
		{"/covers/99.jpg", http.StatusNotFound}, // not in collection
		{"/covers/1.png", http.StatusNotFound},
		{"/covers/x.jpg", http.StatusNotFound},
	}
	for _, tt := range tests {
		if resp := f.do(t, http.MethodGet, tt.path, nil); resp.StatusCode != tt.want {
			t.Errorf("%s: got %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true, true)

	var st struct {
		Username      string `json:"username"`
		Loaded        bool   `json:"loaded"`
		Items         int    `json:"items"`
		WorkerRunning bool   `json:"worker_running"`
	}
	f.do(t, http.MethodGet, "/api/status", &st)
	if !st.Loaded || st.Items != 3 || st.Username != "digger" || st.WorkerRunning {
		t.Errorf("Unexpected status: %+v", st)
	}
}

func TestCovers_PlaceholderFallback(t *testing.T) {
	f := newFixture(t, false, true)

	for _, path := range []string{"/covers/3.jpg?fallback=placeholder", "/covers/99.jpg?fallback=placeholder"} {
		resp, err := http.Get(f.api.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		img, decodeErr := jpeg.Decode(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Placeholder") != "true" {
			t.Errorf("%s: got %d placeholder=%q", path, resp.StatusCode, resp.Header.Get("X-Placeholder"))
			continue
		}
		if decodeErr != nil {
			t.Errorf("%s: placeholder is not a JPEG: %v", path, decodeErr)
			continue
		}
		if b := img.Bounds(); b.Dx() != covers.PlaceholderSize {
			t.Errorf("%s: width %d, want %d", path, b.Dx(), covers.PlaceholderSize)
		}
	}

	// Real artwork wins over the fallback
	resp := f.do(t, http.MethodGet, "/covers/1.jpg?fallback=placeholder", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Placeholder") != "" {
		t.Errorf("Expected real cover, got %d placeholder=%q", resp.StatusCode, resp.Header.Get("X-Placeholder"))
	}
}

func TestReleaseQR(t *testing.T) {
	f := newFixture(t, false, false)

	tests := []struct {
		path     string
		want     int
		wantSize int
	}{
		{"/api/releases/2/qr.png", http.StatusOK, DefaultQRSize},
		{"/api/releases/2/qr.png?size=300", http.StatusOK, 300},
		{"/api/releases/2/qr.png?size=5000", http.StatusOK, MaxQRSize},
		{"/api/releases/2/qr.png?size=big", http.StatusBadRequest, 0},
		{"/api/releases/0/qr.png", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(f.api.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Fatalf("got %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.wantSize == 0 {
				return
			}
			if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q", ct)
			}
			img, err := png.Decode(resp.Body)
			if err != nil {
				t.Fatalf("decode QR: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantSize || b.Dy() != tt.wantSize {
				t.Errorf("size = %dx%d, want %d", b.Dx(), b.Dy(), tt.wantSize)
			}
		})
	}
}
