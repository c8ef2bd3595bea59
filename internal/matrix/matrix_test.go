package matrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/justestif/converge/internal/graph"
	"github.com/justestif/converge/internal/lastfm"
	"github.com/justestif/converge/internal/store"
)

type stubRecommender map[string][]lastfm.SimilarTrack

func (r stubRecommender) GetSimilar(ctx context.Context, title, artist string) ([]lastfm.SimilarTrack, error) {
	t, a := graph.Canonicalize(title, artist)
	return r[t+"|"+a], nil
}

func newGraph(t *testing.T, rec graph.Recommender) (*graph.Store, *store.SQLiteStore) {
	t.Helper()
	backend, err := store.NewStore(store.StoreConfig{DBPath: store.MemoryPath})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return graph.NewStore(backend, rec, graph.WithLogger(logger)), backend
}

// seedStar stores a root "root/x" with n similars "s0".."s(n-1)" at
// descending similarity and returns their songs.
func seedStar(t *testing.T, gs *graph.Store, n int) (graph.Song, []graph.Song) {
	t.Helper()
	ctx := context.Background()

	root, err := gs.ResolveOrCreate(ctx, "root", "x")
	if err != nil {
		t.Fatalf("creating root: %v", err)
	}
	songs := make([]graph.Song, n)
	edges := make([]graph.Edge, n)
	for i := range songs {
		songs[i], err = gs.ResolveOrCreate(ctx, fmt.Sprintf("s%d", i), "x")
		if err != nil {
			t.Fatalf("creating song %d: %v", i, err)
		}
		edges[i] = graph.Edge{From: root.ID, To: songs[i].ID, Similarity: 0.9 - float64(i)*0.05}
	}
	if err := gs.Backend().UpsertSimilars(ctx, root.ID, edges); err != nil {
		t.Fatalf("storing root edges: %v", err)
	}
	return root, songs
}

func link(t *testing.T, gs *graph.Store, from, to graph.Song, sim float64) {
	t.Helper()
	err := gs.Backend().UpsertSimilars(context.Background(), from.ID, []graph.Edge{{From: from.ID, To: to.ID, Similarity: sim}})
	if err != nil {
		t.Fatalf("linking %s -> %s: %v", from, to, err)
	}
}

func TestBuild(t *testing.T) {
	gs, _ := newGraph(t, nil)
	_, songs := seedStar(t, gs, 6)
	link(t, gs, songs[0], songs[1], 0.8)
	link(t, gs, songs[2], songs[0], 0.3)

	tests := []struct {
		name          string
		noInformation float64
	}{
		{name: "default no information", noInformation: NoInformation},
		{name: "historical no information", noInformation: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(gs, WithNoInformation(tt.noInformation))
			m, err := b.Build(context.Background(), "Root", "X", 0)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if m.Len() != 6 {
				t.Fatalf("Len() = %d, want 6", m.Len())
			}
			for i, song := range m.Songs {
				if song.ID != songs[i].ID {
					t.Errorf("Songs[%d] = %s, want %s", i, song, songs[i])
				}
			}
			if m.Ratings[0] != 0.9 {
				t.Errorf("Ratings[0] = %v, want 0.9", m.Ratings[0])
			}

			for i := range m.Values {
				if m.Values[i][i] != 0 {
					t.Errorf("Values[%d][%d] = %v, want 0", i, i, m.Values[i][i])
				}
			}

			// Known edges are 1 - similarity, in their own direction only.
			if got := m.Values[0][1]; math.Abs(got-0.2) > 1e-9 {
				t.Errorf("Values[0][1] = %v, want 0.2", got)
			}
			if got := m.Values[2][0]; math.Abs(got-0.7) > 1e-9 {
				t.Errorf("Values[2][0] = %v, want 0.7", got)
			}
			if got := m.Values[1][0]; got != tt.noInformation {
				t.Errorf("Values[1][0] = %v, want %v (reverse edge unknown)", got, tt.noInformation)
			}
			if got := m.Values[4][5]; got != tt.noInformation {
				t.Errorf("Values[4][5] = %v, want %v", got, tt.noInformation)
			}
		})
	}
}

func TestBuild_Limit(t *testing.T) {
	gs, _ := newGraph(t, nil)
	_, songs := seedStar(t, gs, 8)
	link(t, gs, songs[0], songs[7], 0.9)

	m, err := NewBuilder(gs).Build(context.Background(), "root", "x", 5)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.Len() != 5 || len(m.Values) != 5 || len(m.Values[0]) != 5 {
		t.Fatalf("Build() size = %d, want 5x5", m.Len())
	}
	if m.Songs[4].ID != songs[4].ID {
		t.Errorf("Build() kept %s last, want the five closest songs", m.Songs[4])
	}
}

func TestBuild_ZeroSimilarityEdges(t *testing.T) {
	gs, _ := newGraph(t, nil)
	root, songs := seedStar(t, gs, 5)
	ctx := context.Background()

	// A stored match of 0 means completely dissimilar, not unknown.
	link(t, gs, songs[0], songs[1], 0)
	faint, err := gs.ResolveOrCreate(ctx, "faint", "x")
	if err != nil {
		t.Fatalf("creating song: %v", err)
	}
	link(t, gs, root, faint, 0)

	m, err := NewBuilder(gs).Build(ctx, "root", "x", 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.Len() != 6 {
		t.Fatalf("Len() = %d, want 6 (zero-similarity similar kept)", m.Len())
	}
	if last := m.Songs[5]; last.ID != faint.ID || m.Ratings[5] != 0 {
		t.Errorf("last song = %s rated %v, want %s rated 0", last, m.Ratings[5], faint)
	}
	if got := m.Values[0][1]; got != 1 {
		t.Errorf("Values[0][1] = %v, want 1", got)
	}
	if got := m.Values[1][0]; got != NoInformation {
		t.Errorf("Values[1][0] = %v, want %v", got, NoInformation)
	}
}

func TestBuild_InsufficientData(t *testing.T) {
	ctx := context.Background()

	t.Run("empty marker", func(t *testing.T) {
		gs, backend := newGraph(t, nil)
		song, _ := gs.ResolveOrCreate(ctx, "obscure", "nobody")
		if err := backend.MarkEmpty(ctx, song.ID); err != nil {
			t.Fatalf("MarkEmpty() error = %v", err)
		}

		_, err := NewBuilder(gs).Build(ctx, "obscure", "nobody", 0)
		if !errors.Is(err, ErrInsufficientData) {
			t.Fatalf("Build() error = %v, want ErrInsufficientData", err)
		}
		if errors.Is(err, lastfm.ErrUpstreamDecode) {
			t.Error("Build() reported an upstream decode error for a known-empty song")
		}
	})

	t.Run("too few similars", func(t *testing.T) {
		gs, _ := newGraph(t, nil)
		seedStar(t, gs, 4)

		if _, err := NewBuilder(gs).Build(ctx, "root", "x", 0); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("Build() error = %v, want ErrInsufficientData", err)
		}
		if _, err := NewBuilder(gs, WithMinSongs(3)).Build(ctx, "root", "x", 0); err != nil {
			t.Errorf("Build() with lower minimum error = %v", err)
		}
	})
}

func TestBuild_UnknownRoot(t *testing.T) {
	gs, _ := newGraph(t, nil)

	_, err := NewBuilder(gs).Build(context.Background(), "missing", "song", 0)
	if !errors.Is(err, graph.ErrNotFound) {
		t.Errorf("Build() error = %v, want graph.ErrNotFound", err)
	}
}

func TestBuild_Backfill(t *testing.T) {
	rec := stubRecommender{}
	var rootSimilars []lastfm.SimilarTrack
	for i := 0; i < 5; i++ {
		rootSimilars = append(rootSimilars, lastfm.SimilarTrack{
			Title: fmt.Sprintf("Child %d", i), Artist: "Band", Match: 0.9 - float64(i)*0.1,
		})
	}
	rec["root|x"] = rootSimilars
	rec["child 0|band"] = []lastfm.SimilarTrack{{Title: "Child 1", Artist: "Band", Match: 0.6}}

	gs, _ := newGraph(t, rec)
	m, err := NewBuilder(gs, WithBackfill(10)).Build(context.Background(), "Root", "X", 0)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if m.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", m.Len())
	}
	if got := m.Values[0][1]; math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Values[0][1] = %v, want 0.4 from the backfilled child edge", got)
	}
}
