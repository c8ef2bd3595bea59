package lastfm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// newTestClient returns a client pointed at the test server with no throttling
// and millisecond retry delays.
func newTestClient(server *httptest.Server) *Client {
	return &Client{
		apiKey:         "test-api-key",
		httpClient:     server.Client(),
		baseURL:        server.URL + "/",
		limiter:        rate.NewLimiter(rate.Inf, 1),
		decodeAttempts: DefaultDecodeAttempts,
		retryDelays:    []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		cache:          make(map[string][]Tag),
	}
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestGetSimilar(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []SimilarTrack
		wantErr error
	}{
		{
			name: "numeric matches",
			body: `{"similartracks":{"track":[
				{"name":"Rosanna","artist":{"name":"Toto"},"match":1},
				{"name":"Hold the Line","artist":{"name":"Toto"},"match":0.82}
			],"@attr":{"artist":"Toto"}}}`,
			want: []SimilarTrack{
				{Title: "Rosanna", Artist: "Toto", Match: 1},
				{Title: "Hold the Line", Artist: "Toto", Match: 0.82},
			},
		},
		{
			name: "string match",
			body: `{"similartracks":{"track":[{"name":"Kiss on My List","artist":{"name":"Hall & Oates"},"match":"0.41"}]}}`,
			want: []SimilarTrack{{Title: "Kiss on My List", Artist: "Hall & Oates", Match: 0.41}},
		},
		{
			name: "missing match uses default",
			body: `{"similartracks":{"track":[{"name":"Sara","artist":{"name":"Starship"}}]}}`,
			want: []SimilarTrack{{Title: "Sara", Artist: "Starship", Match: 0.5}},
		},
		{
			name: "empty list is valid",
			body: `{"similartracks":{"track":[],"@attr":{"artist":"Nobody"}}}`,
			want: []SimilarTrack{},
		},
		{
			name: "entries without artist are skipped",
			body: `{"similartracks":{"track":[{"name":"Orphan","artist":{"name":""},"match":0.3}]}}`,
			want: []SimilarTrack{},
		},
		{
			name:    "track not found",
			body:    `{"error":6,"message":"Track not found"}`,
			wantErr: ErrTrackNotFound,
		},
		{
			name:    "invalid API key",
			body:    `{"error":10,"message":"Invalid API key"}`,
			wantErr: ErrInvalidAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if method := r.URL.Query().Get("method"); method != "track.getSimilar" {
					t.Errorf("unexpected method: %s", method)
				}
				jsonHandler(tt.body)(w, r)
			}))
			defer server.Close()

			client := newTestClient(server)
			got, err := client.GetSimilar(context.Background(), "Africa", "Toto")

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetSimilar() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("GetSimilar() got %d tracks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("GetSimilar()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetSimilar_SendsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("track") != "Africa" || q.Get("artist") != "Toto" {
			t.Errorf("query = %v", q)
		}
		if q.Get("api_key") != "test-api-key" || q.Get("format") != "json" {
			t.Errorf("missing api_key/format in %v", q)
		}
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("User-Agent = %q, want %q", ua, userAgent)
		}
		jsonHandler(`{"similartracks":{"track":[]}}`)(w, r)
	}))
	defer server.Close()

	if _, err := newTestClient(server).GetSimilar(context.Background(), "Africa", "Toto"); err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
}

func TestGetSimilar_DecodeRetry(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		// Garbage on the first 2 requests, valid on the 3rd
		if count < 3 {
			io.WriteString(w, `{"similartracks":{"track":[{"name":`)
			return
		}
		jsonHandler(`{"similartracks":{"track":[{"name":"Rosanna","artist":{"name":"Toto"},"match":0.9}]}}`)(w, r)
	}))
	defer server.Close()

	tracks, err := newTestClient(server).GetSimilar(context.Background(), "Africa", "Toto")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Rosanna" {
		t.Errorf("GetSimilar() got unexpected tracks: %v", tracks)
	}
	if count := requestCount.Load(); count != 3 {
		t.Errorf("Expected 3 requests, got %d", count)
	}
}

func TestGetSimilar_DecodeExhausted(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>bad gateway</html>`},
		{name: "missing envelope", body: `{"unexpected":true}`},
		{name: "bad match", body: `{"similartracks":{"track":[{"name":"x","artist":{"name":"y"},"match":"high"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestCount atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requestCount.Add(1)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server).GetSimilar(context.Background(), "Africa", "Toto")
			if !errors.Is(err, ErrUpstreamDecode) {
				t.Fatalf("GetSimilar() error = %v, want ErrUpstreamDecode", err)
			}
			if count := requestCount.Load(); count != DefaultDecodeAttempts {
				t.Errorf("Expected %d requests, got %d", DefaultDecodeAttempts, count)
			}
		})
	}
}

func TestGetSimilar_RateLimitRetry(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		// Fail first 2 requests with rate limit, succeed on 3rd
		if count < 3 {
			jsonHandler(`{"error":29,"message":"Rate limit exceeded"}`)(w, r)
			return
		}
		jsonHandler(`{"similartracks":{"track":[{"name":"Rosanna","artist":{"name":"Toto"},"match":0.9}]}}`)(w, r)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracks, err := newTestClient(server).GetSimilar(ctx, "Africa", "Toto")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("GetSimilar() got %d tracks, want 1", len(tracks))
	}

	// Should have made 3 requests (2 rate limited + 1 success)
	if count := requestCount.Load(); count != 3 {
		t.Errorf("Expected 3 requests, got %d", count)
	}
}

func TestGetSimilar_RateLimitExhausted(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		jsonHandler(`{"error":29,"message":"Rate limit exceeded"}`)(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server).GetSimilar(context.Background(), "Africa", "Toto")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("GetSimilar() error = %v, want ErrRateLimited", err)
	}

	// Should have made 4 requests (1 initial + 3 retries)
	if count := requestCount.Load(); count != 4 {
		t.Errorf("Expected 4 requests, got %d", count)
	}
}

func TestClient_MinInterval(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		jsonHandler(`{"similartracks":{"track":[]}}`)(w, r)
	}))
	defer server.Close()

	const interval = 50 * time.Millisecond
	client := NewClient(&Config{APIKey: "k", MinInterval: interval}, WithHTTPClient(server.Client()))
	client.baseURL = server.URL + "/"

	for i := 0; i < 3; i++ {
		if _, err := client.GetSimilar(context.Background(), fmt.Sprintf("Song %d", i), "Artist"); err != nil {
			t.Fatalf("GetSimilar() error = %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(times))
	}
	// Allow some scheduler slack below the nominal interval.
	const slack = 10 * time.Millisecond
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval-slack {
			t.Errorf("request %d followed previous after %v, want >= %v", i, gap, interval)
		}
	}
}

func TestGetTopTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if method := r.URL.Query().Get("method"); method != "chart.getTopTracks" {
			t.Errorf("unexpected method: %s", method)
		}
		if limit := r.URL.Query().Get("limit"); limit != "2" {
			t.Errorf("limit = %q, want 2", limit)
		}
		jsonHandler(`{"tracks":{"track":[
			{"name":"Song A","artist":{"name":"Artist A"},"playcount":"100"},
			{"name":"Song B","artist":{"name":"Artist B"},"playcount":"90"}
		]}}`)(w, r)
	}))
	defer server.Close()

	tracks, err := newTestClient(server).GetTopTracks(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetTopTracks() error = %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("GetTopTracks() got %d tracks, want 2", len(tracks))
	}
	for _, tr := range tracks {
		if tr.Match != defaultMatch {
			t.Errorf("track %q match = %v, want default %v", tr.Title, tr.Match, defaultMatch)
		}
	}
}

func TestGetArtistTopTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "artist.getTopTracks" || q.Get("artist") != "Journey" {
			t.Errorf("unexpected query: %v", q)
		}
		jsonHandler(`{"toptracks":{"track":[
			{"name":"Don't Stop Believin'","artist":{"name":"Journey"}},
			{"name":"Separate Ways","artist":{"name":"Journey"}}
		]}}`)(w, r)
	}))
	defer server.Close()

	tracks, err := newTestClient(server).GetArtistTopTracks(context.Background(), "Journey", 0)
	if err != nil {
		t.Fatalf("GetArtistTopTracks() error = %v", err)
	}
	if len(tracks) != 2 || tracks[0].Title != "Don't Stop Believin'" {
		t.Errorf("GetArtistTopTracks() = %v", tracks)
	}
}

func TestGetTags(t *testing.T) {
	tests := []struct {
		name         string
		trackBody    string
		artistBody   string
		wantTagNames []string
		wantErr      error
	}{
		{
			name:         "track has tags",
			trackBody:    `{"toptags":{"tag":[{"name":"alternative","count":100},{"name":"rock","count":80}]}}`,
			wantTagNames: []string{"alternative", "rock"},
		},
		{
			name:         "track empty falls back to artist",
			trackBody:    `{"toptags":{"tag":[]}}`,
			artistBody:   `{"toptags":{"tag":[{"name":"pop"},{"name":"dance"}]}}`,
			wantTagNames: []string{"pop", "dance"},
		},
		{
			name:         "both empty returns empty slice",
			trackBody:    `{"toptags":{"tag":[]}}`,
			artistBody:   `{"toptags":{}}`,
			wantTagNames: []string{},
		},
		{
			name:      "invalid API key",
			trackBody: `{"error":10,"message":"Invalid API key"}`,
			wantErr:   ErrInvalidAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch method := r.URL.Query().Get("method"); method {
				case "track.getTopTags":
					jsonHandler(tt.trackBody)(w, r)
				case "artist.getTopTags":
					jsonHandler(tt.artistBody)(w, r)
				default:
					t.Errorf("unexpected method: %s", method)
				}
			}))
			defer server.Close()

			tags, err := newTestClient(server).GetTags(context.Background(), "Paranoid Android", "Radiohead")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetTags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if tags == nil {
				t.Fatal("GetTags() returned nil slice")
			}
			if len(tags) != len(tt.wantTagNames) {
				t.Fatalf("GetTags() got %d tags, want %d", len(tags), len(tt.wantTagNames))
			}
			for i, tag := range tags {
				if tag.Name != tt.wantTagNames[i] {
					t.Errorf("GetTags() tag[%d].Name = %s, want %s", i, tag.Name, tt.wantTagNames[i])
				}
			}
		})
	}
}

func TestGetTags_Caching(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		jsonHandler(`{"toptags":{"tag":[{"name":"rock","count":100}]}}`)(w, r)
	}))
	defer server.Close()

	client := newTestClient(server)

	for i := 0; i < 2; i++ {
		tags, err := client.GetTags(context.Background(), "Track", "Artist")
		if err != nil {
			t.Fatalf("GetTags() call %d error = %v", i+1, err)
		}
		if len(tags) != 1 {
			t.Fatalf("GetTags() call %d got %d tags, want 1", i+1, len(tags))
		}
	}

	if count := requestCount.Load(); count != 1 {
		t.Errorf("Expected 1 request, got %d", count)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(&Config{APIKey: "test-key"})

	if client.apiKey != "test-key" {
		t.Errorf("NewClient() apiKey = %s, want test-key", client.apiKey)
	}
	if client.httpClient == nil {
		t.Error("NewClient() httpClient is nil")
	}
	if client.cache == nil {
		t.Error("NewClient() cache is nil")
	}
	if client.baseURL != baseURL {
		t.Errorf("NewClient() baseURL = %s, want %s", client.baseURL, baseURL)
	}
	if client.decodeAttempts != DefaultDecodeAttempts {
		t.Errorf("NewClient() decodeAttempts = %d, want %d", client.decodeAttempts, DefaultDecodeAttempts)
	}
	if got := client.limiter.Limit(); got != rate.Every(DefaultMinInterval) {
		t.Errorf("NewClient() limiter = %v, want %v", got, rate.Every(DefaultMinInterval))
	}
}
