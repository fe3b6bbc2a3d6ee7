// Package provider defines sourcerers, which turn a media reference into
// candidate embeds, and the strategies they are built from.
package provider

import (
	"context"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

// Sourcerer is the interface media sources must implement.
type Sourcerer interface {
	// ID is the stable identifier of the source.
	ID() string

	// Name is the display name of the source.
	Name() string

	// Rank orders sources for callers that try several.
	Rank() int

	// Flags describes capabilities shared by everything the source returns.
	Flags() []media.Flag

	// Scrape resolves ref into embeds. It never returns an empty slice
	// with a nil error; nothing found is media.ErrNotFound.
	Scrape(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error)
}

// Strategy is one tier of a sourcerer. An empty result means the tier had
// nothing to offer; the next tier is tried.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error)
}
