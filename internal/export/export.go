// Package export writes cluster layouts in the form the front end reads.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/justestif/converge/internal/clustering"
)

// titleArtistSeparator joins title and artist in exported file names.
const titleArtistSeparator = " "

// Record is one cluster as the front end draws it.
type Record struct {
	Songs          []string `json:"songs"`
	Artists        []string `json:"artists"`
	CenterDistance float64  `json:"centerDistance"`
	Angle          float64  `json:"angle"`
	Color          [2]int   `json:"color"`
}

// FromClusters converts laid-out clusters to records, keeping their order.
func FromClusters(cs []clustering.Cluster) []Record {
	records := make([]Record, len(cs))
	for i, c := range cs {
		r := Record{
			Songs:          make([]string, len(c.Songs)),
			Artists:        make([]string, len(c.Songs)),
			CenterDistance: c.CenterDistance,
			Angle:          c.Angle,
			Color:          [2]int{c.Color.Family, c.Color.Hue},
		}
		for j, s := range c.Songs {
			r.Songs[j] = s.Title
			r.Artists[j] = s.Artist
		}
		records[i] = r
	}
	return records
}

// Write encodes records as a JSON array.
func Write(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		return fmt.Errorf("encoding %d records: %w", len(records), err)
	}
	return nil
}

// FileName returns the exported file name for a root song.
func FileName(title, artist string) string {
	return strings.ReplaceAll(title, "/", "") + titleArtistSeparator + strings.ReplaceAll(artist, "/", "") + ".json"
}

// WriteFiles writes records to FileName(title, artist) in every dir,
// creating the directories as needed. It returns the written paths.
func WriteFiles(dirs []string, title, artist string, records []Record) ([]string, error) {
	name := FileName(title, artist)
	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, fmt.Errorf("creating export directory: %w", err)
		}
		path := filepath.Join(dir, name)
		if err := writeFile(path, records); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
