package lastfm

import (
	"encoding/json"
	"strconv"
	"strings"
)

// defaultMatch is used for listings that carry no match score (charts, top tracks).
const defaultMatch = 0.5

// Tag represents a Last.fm tag with popularity count.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"` // Present in track.getTopTags, absent in artist.getTopTags
	URL   string `json:"url"`
}

// SimilarTrack is one candidate returned by the recommender.
type SimilarTrack struct {
	Title  string
	Artist string
	Match  float64 // 0-1, fraction of listeners of the source who also like this track
}

// trackJSON is the track shape shared by track.getSimilar, chart.getTopTracks
// and artist.getTopTracks.
type trackJSON struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
		MBID string `json:"mbid"`
	} `json:"artist"`
	Match *flexFloat `json:"match"`
	MBID  string     `json:"mbid"`
}

func (t trackJSON) toSimilar() SimilarTrack {
	match := defaultMatch
	if t.Match != nil {
		match = float64(*t.Match)
	}
	return SimilarTrack{
		Title:  t.Name,
		Artist: t.Artist.Name,
		Match:  match,
	}
}

func convertTracks(tracks []trackJSON) []SimilarTrack {
	out := make([]SimilarTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Name == "" || t.Artist.Name == "" {
			continue
		}
		out = append(out, t.toSimilar())
	}
	return out
}

// similarTracksResponse is the JSON response for track.getSimilar.
// SimilarTracks is a pointer so a body without the envelope counts as malformed.
type similarTracksResponse struct {
	SimilarTracks *struct {
		Track []trackJSON `json:"track"`
		Attr  struct {
			Artist string `json:"artist"`
		} `json:"@attr"`
	} `json:"similartracks"`
}

// chartTopTracksResponse is the JSON response for chart.getTopTracks.
type chartTopTracksResponse struct {
	Tracks *struct {
		Track []trackJSON `json:"track"`
	} `json:"tracks"`
}

// artistTopTracksResponse is the JSON response for artist.getTopTracks.
type artistTopTracksResponse struct {
	TopTracks *struct {
		Track []trackJSON `json:"track"`
	} `json:"toptracks"`
}

// trackTagsResponse is the JSON response for track.getTopTags.
type trackTagsResponse struct {
	TopTags struct {
		Tag  []Tag `json:"tag"`
		Attr struct {
			Artist string `json:"artist"`
			Track  string `json:"track"`
		} `json:"@attr"`
	} `json:"toptags"`
}

// artistTagsResponse is the JSON response for artist.getTopTags.
type artistTagsResponse struct {
	TopTags struct {
		Tag  []Tag `json:"tag"`
		Attr struct {
			Artist string `json:"artist"`
		} `json:"@attr"`
	} `json:"toptags"`
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// flexFloat accepts both JSON numbers and numeric strings; Last.fm uses either
// depending on the method.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}
