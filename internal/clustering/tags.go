package clustering

import (
	"sort"
	"strings"

	"github.com/muesli/clusters"
)

// Naming defaults.
const (
	NameSampleSize = 3  // Songs per cluster whose tags are consulted
	MaxVocabulary  = 50 // Most common tags kept as vector dimensions
	nameTagCount   = 3
)

// Tag is a weighted descriptive tag of a song.
type Tag struct {
	Name  string
	Count int
}

// NameClusters names every cluster after the dominant tags of its first
// sampleSize songs, e.g. "rock & indie & pop". tags maps song id to that
// song's tags; clusters with no tagged songs are named "Mixed".
func NameClusters(cs []Cluster, tags map[int64][]Tag, sampleSize int) {
	if sampleSize <= 0 {
		sampleSize = NameSampleSize
	}

	samples := make([][][]Tag, len(cs))
	var all [][]Tag
	for i, c := range cs {
		for _, song := range c.Songs[:min(sampleSize, len(c.Songs))] {
			if t := tags[song.ID]; len(t) > 0 {
				samples[i] = append(samples[i], t)
				all = append(all, t)
			}
		}
	}

	vocabulary := buildTagVocabulary(all, MaxVocabulary)
	for i := range cs {
		cs[i].Name = clusterName(samples[i], vocabulary)
	}
}

func clusterName(songTags [][]Tag, vocabulary []string) string {
	if len(songTags) == 0 || len(vocabulary) == 0 {
		return "Mixed"
	}

	centroid := make(clusters.Coordinates, len(vocabulary))
	for _, t := range songTags {
		for j, v := range buildTagVector(t, vocabulary) {
			centroid[j] += v / float64(len(songTags))
		}
	}

	top := extractTopTags(centroid, vocabulary, nameTagCount)
	if len(top) == 0 {
		return "Mixed"
	}
	return strings.Join(top, " & ")
}

// tagCount tracks tag name and total count across all songs.
type tagCount struct {
	name  string
	count int
}

// buildTagVocabulary collects all tags and returns the top N most common.
func buildTagVocabulary(songTags [][]Tag, maxTags int) []string {
	counts := make(map[string]int)
	for _, tags := range songTags {
		for _, tag := range tags {
			counts[strings.ToLower(tag.Name)] += max(tag.Count, 1)
		}
	}

	tagCounts := make([]tagCount, 0, len(counts))
	for name, count := range counts {
		tagCounts = append(tagCounts, tagCount{name: name, count: count})
	}

	// Count descending, name ascending so equal counts are stable.
	sort.Slice(tagCounts, func(i, j int) bool {
		if tagCounts[i].count != tagCounts[j].count {
			return tagCounts[i].count > tagCounts[j].count
		}
		return tagCounts[i].name < tagCounts[j].name
	})

	n := min(maxTags, len(tagCounts))
	vocabulary := make([]string, n)
	for i := 0; i < n; i++ {
		vocabulary[i] = tagCounts[i].name
	}
	return vocabulary
}

// buildTagVector creates a feature vector for a song's tags, normalized to
// its strongest tag. Artist tags carry no counts and weigh 1 each.
func buildTagVector(tags []Tag, vocabulary []string) clusters.Coordinates {
	vocabIndex := make(map[string]int, len(vocabulary))
	for i, tag := range vocabulary {
		vocabIndex[tag] = i
	}

	maxCount := 1
	for _, tag := range tags {
		maxCount = max(maxCount, tag.Count)
	}

	vector := make(clusters.Coordinates, len(vocabulary))
	for _, tag := range tags {
		if idx, ok := vocabIndex[strings.ToLower(tag.Name)]; ok {
			vector[idx] = float64(max(tag.Count, 1)) / float64(maxCount)
		}
	}
	return vector
}

// extractTopTags returns the top n tags from a centroid vector.
func extractTopTags(centroid clusters.Coordinates, vocabulary []string, n int) []string {
	if len(centroid) == 0 || len(vocabulary) == 0 {
		return nil
	}

	type tagWeight struct {
		name   string
		weight float64
	}
	weights := make([]tagWeight, len(vocabulary))
	for i, name := range vocabulary {
		weight := 0.0
		if i < len(centroid) {
			weight = centroid[i]
		}
		weights[i] = tagWeight{name: name, weight: weight}
	}

	sort.SliceStable(weights, func(i, j int) bool {
		return weights[i].weight > weights[j].weight
	})

	result := make([]string, 0, n)
	for i := 0; i < len(weights) && len(result) < n; i++ {
		if weights[i].weight > 0 {
			result = append(result, weights[i].name)
		}
	}
	return result
}
