// Package media defines shared types for the sourcerer application.
package media

import (
	"fmt"
	"strconv"
)

// MediaType represents whether content is a movie or TV show.
type MediaType int

const (
	Movie MediaType = iota
	TV
)

func (m MediaType) String() string {
	switch m {
	case Movie:
		return "movie"
	case TV:
		return "tv"
	default:
		return "unknown"
	}
}

// Ref identifies the media a sourcerer is asked to resolve.
// Season and Episode are only meaningful for TV.
type Ref struct {
	Type    MediaType
	TMDBID  string
	IMDBID  string
	Season  int
	Episode int
}

// NewMovie returns a movie reference.
func NewMovie(tmdbID, imdbID string) Ref {
	return Ref{Type: Movie, TMDBID: tmdbID, IMDBID: imdbID}
}

// NewShow returns a reference to a single episode of a show.
func NewShow(tmdbID, imdbID string, season, episode int) Ref {
	return Ref{Type: TV, TMDBID: tmdbID, IMDBID: imdbID, Season: season, Episode: episode}
}

// IsShow reports whether the reference points at an episode.
func (r Ref) IsShow() bool { return r.Type == TV }

func (r Ref) String() string {
	if r.IsShow() {
		return fmt.Sprintf("tv/%s S%02dE%02d", r.TMDBID, r.Season, r.Episode)
	}
	id := r.IMDBID
	if id == "" {
		id = r.TMDBID
	}
	return "movie/" + id
}

// SeasonString and EpisodeString return the numbers as path segments.
func (r Ref) SeasonString() string { return strconv.Itoa(r.Season) }
func (r Ref) EpisodeString() string { return strconv.Itoa(r.Episode) }

// EmbedRef is a candidate remote embed discovered by a sourcerer.
type EmbedRef struct {
	EmbedID string `json:"embedId"`
	URL     string `json:"url"`
}

// StreamType is the playback format of a stream.
type StreamType string

const HLS StreamType = "hls"

// Flag marks a capability of a stream or provider.
type Flag string

// CORSAllowed means a browser player can fetch the stream directly.
const CORSAllowed Flag = "cors-allowed"

// Caption represents a subtitle track attached to a stream.
type Caption struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	URL      string `json:"url"`
	Type     string `json:"type"` // "vtt" or "srt"
}

// Stream is a playable stream produced by an extractor.
type Stream struct {
	ID       string            `json:"id"`
	Type     StreamType        `json:"type"`
	Playlist string            `json:"playlist"`
	Headers  map[string]string `json:"headers,omitempty"`
	Captions []Caption         `json:"captions"`
	Flags    []Flag            `json:"flags"`
}

// HasFlag reports whether the stream carries f.
func (s Stream) HasFlag(f Flag) bool {
	for _, have := range s.Flags {
		if have == f {
			return true
		}
	}
	return false
}
