package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/converge/internal/export"
	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
	"github.com/justestif/converge/internal/matrix"
	"github.com/justestif/converge/internal/visualize"
)

// VisualizationIDHeader carries the id of a generated visualization.
const VisualizationIDHeader = "X-Visualization-ID"

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	viz    *visualize.Service
	graph  *graph.Store
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(viz *visualize.Service, gs *graph.Store, logger *slog.Logger) *Handlers {
	return &Handlers{
		viz:    viz,
		graph:  gs,
		logger: logger,
	}
}

// ClusterResponse is one exported record plus its display name.
type ClusterResponse struct {
	Name string `json:"name,omitempty"`
	export.Record
}

// VisualizationResponse is the body of GET /api/visualizations.
type VisualizationResponse struct {
	ID       string            `json:"id"`
	Root     graph.Song        `json:"root"`
	Clusters []ClusterResponse `json:"clusters"`
}

// Health reports liveness and graph counts (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.graph.Stats(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns counts over the stored graph (GET /api/stats).
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.graph.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Visualize generates a layout around a root song
// (GET /api/visualizations?title=&artist=[&clusters=K][&crawl=true]).
func (h *Handlers) Visualize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title, artist := q.Get("title"), q.Get("artist")
	if title == "" || artist == "" {
		badRequest(w, "title and artist are required")
		return
	}

	viz := h.viz
	if v := q.Get("clusters"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil || k < 1 {
			badRequest(w, "clusters must be a positive integer")
			return
		}
		viz = viz.WithClusters(k)
	}
	crawl := false
	if v := q.Get("crawl"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "crawl must be a boolean")
			return
		}
		crawl = b
	}

	generate := viz.Generate
	if crawl {
		generate = viz.GenerateFromAnywhere
	}
	result, err := generate(r.Context(), title, artist)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := VisualizationResponse{
		ID:       result.ID.String(),
		Root:     result.Root,
		Clusters: make([]ClusterResponse, len(result.Records)),
	}
	for i, rec := range result.Records {
		resp.Clusters[i] = ClusterResponse{Name: result.Clusters[i].Name, Record: rec}
	}

	w.Header().Set(VisualizationIDHeader, resp.ID)
	writeJSON(w, http.StatusOK, resp)
}

// ResolveSong looks up a stored song (GET /api/songs?title=&artist=).
// An empty artist matches the first song with the title.
func (h *Handlers) ResolveSong(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		badRequest(w, "title is required")
		return
	}
	song, err := h.graph.Resolve(r.Context(), title, r.URL.Query().Get("artist"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// Similars lists the one-hop neighbours of a song (GET /api/songs/{id}/similars).
func (h *Handlers) Similars(w http.ResponseWriter, r *http.Request) {
	song, ok := h.songParam(w, r)
	if !ok {
		return
	}
	similars, err := h.graph.SortedSimilars(r.Context(), song.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if similars == nil {
		similars = []graph.Similar{}
	}
	writeJSON(w, http.StatusOK, similars)
}

// TwoHop lists inferred two-hop bounds of a song (GET /api/songs/{id}/two-hop).
func (h *Handlers) TwoHop(w http.ResponseWriter, r *http.Request) {
	song, ok := h.songParam(w, r)
	if !ok {
		return
	}
	bounds, err := h.graph.TwoHopBounds(r.Context(), song.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bounds == nil {
		bounds = []graph.Bound{}
	}
	writeJSON(w, http.StatusOK, bounds)
}

// songParam loads the song named by the {id} path parameter, writing the
// error response itself when it cannot.
func (h *Handlers) songParam(w http.ResponseWriter, r *http.Request) (graph.Song, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(w, "song id must be a positive integer")
		return graph.Song{}, false
	}
	song, err := h.graph.Song(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return graph.Song{}, false
	}
	return song, true
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNotFound), errors.Is(err, lastfm.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, matrix.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lastfm.ErrUpstreamDecode):
		return http.StatusBadGateway
	case errors.Is(err, lastfm.ErrRateLimited):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
