// Package extract resolves embed page URLs into playable streams.
package extract

import (
	"context"
	"sort"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

// Extractor resolves one kind of embed page into streams.
type Extractor interface {
	// ID is the stable identifier of the embed host.
	ID() string
	// Rank orders extractors when more than one can handle a URL.
	Rank() int
	// CanExtract reports whether the URL belongs to this extractor.
	CanExtract(embedURL string) bool
	// Extract resolves embedURL. It fails with media.ErrNotFound when the
	// page holds no stream.
	Extract(ctx context.Context, fc fetch.Context, embedURL string) ([]media.Stream, error)
}

// Registry selects an extractor for a URL.
type Registry struct {
	extractors []Extractor
}

// NewRegistry returns a registry holding extractors, highest rank first.
func NewRegistry(extractors ...Extractor) *Registry {
	sorted := make([]Extractor, len(extractors))
	copy(sorted, extractors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rank() > sorted[j].Rank()
	})
	return &Registry{extractors: sorted}
}

// For returns the highest ranked extractor that can handle embedURL.
func (r *Registry) For(embedURL string) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.CanExtract(embedURL) {
			return e, true
		}
	}
	return nil, false
}

// ByID returns the extractor registered under id.
func (r *Registry) ByID(id string) (Extractor, bool) {
	for _, e := range r.extractors {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// All returns the registered extractors, highest rank first.
func (r *Registry) All() []Extractor {
	out := make([]Extractor, len(r.extractors))
	copy(out, r.extractors)
	return out
}
