// Package server exposes the collection service to the kiosk front end as a
// small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/skip2/go-qrcode"

	"github.com/franz/crate/internal/collection"
	"github.com/franz/crate/internal/covers"
	"github.com/franz/crate/internal/discogs"
	"github.com/franz/crate/internal/service"
	"github.com/franz/crate/internal/util"
)

// RequestTimeout bounds every API request
const RequestTimeout = 30 * time.Second

// QR code edge lengths in pixels
const (
	DefaultQRSize = 256
	MinQRSize     = 64
	MaxQRSize     = 1024
)

// Server is the kiosk HTTP API
type Server struct {
	svc     *service.CollectionService
	worker  *service.Worker
	prewarm int
	router  chi.Router
	server  *http.Server
}

// Config holds server configuration
type Config struct {
	Service *service.CollectionService
	Worker  *service.Worker // optional; refreshes run inline without it
	Prewarm int             // covers prewarmed by a background refresh
}

// New creates a new server
func New(cfg *Config) *Server {
	s := &Server{
		svc:     cfg.Service,
		worker:  cfg.Worker,
		prewarm: cfg.Prewarm,
	}
	if s.prewarm <= 0 {
		s.prewarm = covers.DefaultPrewarm
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/covers/{file}", s.handleCover)

	r.Route("/api", func(r chi.Router) {
		r.Get("/collection", s.handleCollection)
		r.Post("/collection/refresh", s.handleRefresh)
		r.Get("/search", s.handleSearch)
		r.Get("/random", s.handleRandomByMood)
		r.Get("/random/genre/{genre}", s.handleRandomByGenre)
		r.Get("/genres", s.handleGenres)
		r.Get("/moods", s.handleMoods)
		r.Get("/releases/{id}", s.handleRelease)
		r.Get("/releases/{id}/qr.png", s.handleReleaseQR)
		r.Get("/status", s.handleStatus)
		r.Get("/messages", s.handleMessages)
	})

	s.router = r
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	util.InfoLog("Serving collection API on http://%s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		util.InfoLog("Shutting down API server...")
		return s.server.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request at debug level
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		util.DebugLog("%s %s -> %d (%d bytes, %v)", r.Method, r.URL.RequestURI(), ww.Status(), ww.BytesWritten(), time.Since(start).Round(time.Microsecond))
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// collectionResponse is the payload of /api/collection and refresh
type collectionResponse struct {
	Count     int               `json:"count"`
	Source    collection.Source `json:"source,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitzero"`
	Truncated bool              `json:"truncated"`
	Expected  int               `json:"expected_items,omitempty"`
	Items     []collection.Item `json:"items"`
}

func (s *Server) collectionPayload() collectionResponse {
	resp := collectionResponse{Items: s.svc.Items()}
	resp.Count = len(resp.Items)
	if snap := s.svc.Snapshot(); snap != nil {
		resp.Source = snap.Source
		resp.Timestamp = snap.Timestamp
		resp.Truncated = snap.Truncated
		resp.Expected = snap.ExpectedItems
	}
	if resp.Items == nil {
		resp.Items = []collection.Item{}
	}
	return resp
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collectionPayload())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.worker == nil {
		s.svc.GetCollection(r.Context(), true)
		writeJSON(w, http.StatusOK, s.collectionPayload())
		return
	}

	// The job outlives the request
	err := s.worker.Sync(context.WithoutCancel(r.Context()), true, s.prewarm)
	if errors.Is(err, util.ErrBusy) {
		writeError(w, http.StatusConflict, "a refresh is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	items := s.svc.SearchCollection(r.URL.Query().Get("q"))
	if items == nil {
		items = []collection.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleRandomByMood(w http.ResponseWriter, r *http.Request) {
	item, ok := s.svc.GetRandomByMood(r.URL.Query().Get("mood"))
	if !ok {
		writeError(w, http.StatusNotFound, "collection is empty")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRandomByGenre(w http.ResponseWriter, r *http.Request) {
	genre := chi.URLParam(r, "genre")
	item, ok := s.svc.GetRandomByGenre(genre)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no release with genre %q", genre))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"genres": s.svc.GetAllGenres()})
}

func (s *Server) handleMoods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"moods": s.svc.GetMoods()})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail := s.svc.GetReleaseDetails(r.Context(), id)
	if detail == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("release %d details unavailable", id))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleCover serves <id>.jpg from the cover cache, downloading it first if
// the release is in the collection and has artwork. With
// ?fallback=placeholder a generated record is served instead of an error.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".jpg")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := parseID(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	fallback := r.URL.Query().Get("fallback") == "placeholder"

	path, ok := s.svc.CoverPath(id)
	if !ok {
		item, known := s.svc.GetItem(id)
		if !known || !item.HasCover() {
			if fallback {
				s.servePlaceholder(w, id)
				return
			}
			writeError(w, http.StatusNotFound, fmt.Sprintf("no cover for release %d", id))
			return
		}
		if path, ok = s.svc.DownloadCover(r.Context(), item.CoverURL(), id); !ok {
			if fallback {
				s.servePlaceholder(w, id)
				return
			}
			writeError(w, http.StatusBadGateway, fmt.Sprintf("cover for release %d could not be downloaded", id))
			return
		}
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

// servePlaceholder writes the generated record image of a release. It is
// not cached by clients so real artwork shows up once downloaded.
func (s *Server) servePlaceholder(w http.ResponseWriter, id int64) {
	data, err := covers.Placeholder(id, covers.PlaceholderSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Placeholder", "true")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleReleaseQR serves a QR code linking to the release's Discogs page,
// so a visitor can open it on their phone. ?size= sets the edge in pixels.
func (s *Server) handleReleaseQR(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	size := DefaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid size %q", v))
			return
		}
		size = min(max(n, MinQRSize), MaxQRSize)
	}

	png, err := qrcode.Encode(discogs.ReleaseURL(id), qrcode.Medium, size)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		service.Status
		WorkerRunning bool `json:"worker_running"`
	}{Status: s.svc.Status()}
	if s.worker != nil {
		payload.WorkerRunning = s.worker.Running()
	}
	writeJSON(w, http.StatusOK, payload)
}

// messageJSON is the wire form of a worker message
type messageJSON struct {
	Kind       service.MessageKind `json:"kind"`
	Items      int                 `json:"items,omitempty"`
	Source     collection.Source   `json:"source,omitempty"`
	Current    int                 `json:"current,omitempty"`
	Total      int                 `json:"total,omitempty"`
	Downloaded int                 `json:"downloaded,omitempty"`
	Skipped    int                 `json:"skipped,omitempty"`
	Failed     int                 `json:"failed,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func toMessageJSON(msg service.Message) messageJSON {
	out := messageJSON{
		Kind:       msg.Kind,
		Items:      msg.Items,
		Source:     msg.Source,
		Current:    msg.Current,
		Total:      msg.Total,
		Downloaded: msg.Downloaded,
		Skipped:    msg.Skipped,
	}
	if msg.Kind == service.CoversDone {
		out.Total = msg.Result.Total
		out.Downloaded = msg.Result.Downloaded
		out.Skipped = msg.Result.Skipped
		out.Failed = msg.Result.Failed
	}
	if msg.Err != nil {
		out.Error = msg.Err.Error()
	}
	return out
}

// handleMessages drains the worker queue; the kiosk polls it each tick
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := []messageJSON{}
	if s.worker != nil {
		for _, msg := range s.worker.Drain() {
			msgs = append(msgs, toMessageJSON(msg))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// --- Helpers ---

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid release id %q", value)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.DebugLog("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
