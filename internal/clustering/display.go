package clustering

import (
	"fmt"
	"math"
	"strings"

	"github.com/justestif/converge/internal/graph"
)

const sampleSongCount = 3

// FormatSummary returns a human-readable summary of a layout around root.
// Shows each cluster's name, size, angle, color, and first 3 songs.
func FormatSummary(root graph.Song, cs []Cluster) string {
	var sb strings.Builder

	totalSongs := 0
	for _, c := range cs {
		totalSongs += c.Size()
	}

	if len(cs) == 0 {
		sb.WriteString(fmt.Sprintf("No clusters around %s\n", root))
		return sb.String()
	}

	clusterWord := "cluster"
	if len(cs) > 1 {
		clusterWord = "clusters"
	}
	sb.WriteString(fmt.Sprintf("Found %d %s around %s from %d songs\n", len(cs), clusterWord, root, totalSongs))

	for i, c := range cs {
		sb.WriteString("\n")
		sb.WriteString(formatCluster(i+1, c))
	}

	return sb.String()
}

// formatCluster formats a single cluster with its sample songs.
func formatCluster(num int, c Cluster) string {
	var sb strings.Builder

	songWord := "song"
	if c.Size() > 1 {
		songWord = "songs"
	}

	header := fmt.Sprintf("Cluster %d", num)
	if c.Name != "" {
		header += ": " + c.Name
	}
	sb.WriteString(fmt.Sprintf("%s (%d %s, %.0f°, color %d/%d, distance %.2f)\n",
		header, c.Size(), songWord, c.Angle*180/math.Pi, c.Color.Family, c.Color.Hue, c.CenterDistance))

	sampleCount := min(sampleSongCount, c.Size())
	for i := 0; i < sampleCount; i++ {
		song := c.Songs[i]
		sb.WriteString(fmt.Sprintf("  • \"%s\" - %s\n", song.Title, song.Artist))
	}

	remaining := c.Size() - sampleSongCount
	if remaining > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", remaining))
	}

	return sb.String()
}
