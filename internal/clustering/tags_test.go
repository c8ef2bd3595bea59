package clustering

import (
	"math"
	"slices"
	"testing"

	"github.com/muesli/clusters"

	"github.com/justestif/converge/internal/graph"
)

func TestBuildTagVocabulary(t *testing.T) {
	songTags := [][]Tag{
		{{Name: "rock", Count: 100}, {Name: "pop", Count: 50}},
		{{Name: "Rock", Count: 20}, {Name: "indie", Count: 80}},
		{{Name: "shoegaze"}},
	}

	tests := []struct {
		name    string
		maxTags int
		want    []string
	}{
		{"top two", 2, []string{"rock", "indie"}},
		{"all", 10, []string{"rock", "indie", "pop", "shoegaze"}},
		{"none", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildTagVocabulary(songTags, tt.maxTags)
			if !slices.Equal(got, tt.want) {
				t.Errorf("buildTagVocabulary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildTagVector(t *testing.T) {
	vocabulary := []string{"rock", "pop", "jazz"}

	got := buildTagVector([]Tag{{Name: "Rock", Count: 100}, {Name: "pop", Count: 50}, {Name: "metal", Count: 90}}, vocabulary)
	want := clusters.Coordinates{1, 0.5, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tolerance {
			t.Errorf("vector[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Uncounted tags weigh 1 each.
	got = buildTagVector([]Tag{{Name: "jazz"}}, vocabulary)
	if got[2] != 1 {
		t.Errorf("uncounted tag weight = %v, want 1", got[2])
	}
}

func TestExtractTopTags(t *testing.T) {
	vocabulary := []string{"a", "b", "c", "d"}

	tests := []struct {
		name     string
		centroid clusters.Coordinates
		n        int
		want     []string
	}{
		{"ranked", clusters.Coordinates{0.2, 0, 0.8, 0.5}, 2, []string{"c", "d"}},
		{"skips zero weights", clusters.Coordinates{0, 0, 0.3, 0}, 3, []string{"c"}},
		{"ties keep vocabulary order", clusters.Coordinates{0.5, 0.5, 0.5, 0.5}, 2, []string{"a", "b"}},
		{"empty", nil, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTopTags(tt.centroid, vocabulary, tt.n)
			if !slices.Equal(got, tt.want) {
				t.Errorf("extractTopTags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNameClusters(t *testing.T) {
	cs := []Cluster{
		{Songs: []graph.Song{{ID: 1}, {ID: 2}, {ID: 3}}},
		{Songs: []graph.Song{{ID: 4}, {ID: 5}}},
	}
	tags := map[int64][]Tag{
		1: {{Name: "rock", Count: 100}, {Name: "indie", Count: 50}},
		2: {{Name: "rock", Count: 80}, {Name: "pop", Count: 10}},
		3: {{Name: "jazz", Count: 100}},
	}

	NameClusters(cs, tags, 2)

	if cs[0].Name != "rock & indie & pop" {
		t.Errorf("cs[0].Name = %q, want %q", cs[0].Name, "rock & indie & pop")
	}
	if cs[1].Name != "Mixed" {
		t.Errorf("untagged cluster name = %q, want Mixed", cs[1].Name)
	}
}

func TestNameClusters_DefaultSampleSize(t *testing.T) {
	cs := []Cluster{{Songs: []graph.Song{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}}}
	tags := map[int64][]Tag{
		4: {{Name: "ignored", Count: 100}},
	}

	NameClusters(cs, tags, 0)

	// Only the first NameSampleSize songs are consulted.
	if cs[0].Name != "Mixed" {
		t.Errorf("Name = %q, want Mixed", cs[0].Name)
	}
}
