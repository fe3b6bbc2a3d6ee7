package provider

import (
	"context"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

// Autoembed resolves movies and episodes through autoembed: the structured
// API first, then the legacy player page.
type Autoembed struct {
	chain *Chain
	log   logrus.FieldLogger
}

// NewAutoembed creates the autoembed sourcerer. Empty arguments select the
// default player base and API endpoint.
func NewAutoembed(playerBase, apiEndpoint string, log logrus.FieldLogger) *Autoembed {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("source", "autoembed")
	return &Autoembed{
		chain: NewChain(log,
			NewAPIStrategy(apiEndpoint, log),
			NewScrapeStrategy(playerBase, log),
		),
		log: log,
	}
}

func (a *Autoembed) ID() string { return "autoembed" }

func (a *Autoembed) Name() string { return "Autoembed" }

func (a *Autoembed) Rank() int { return 10 }

func (a *Autoembed) Flags() []media.Flag { return []media.Flag{media.CORSAllowed} }

// Scrape resolves ref into embeds.
func (a *Autoembed) Scrape(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error) {
	a.log.WithField("media", ref.String()).Debug("scraping")
	return a.chain.Resolve(ctx, fc, ref)
}
