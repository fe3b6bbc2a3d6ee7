package provider

import (
	"context"
	"errors"

	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

// Chain runs strategies in priority order and returns the first non-empty
// result. Later strategies are never invoked once one succeeds.
type Chain struct {
	strategies []Strategy
	log        logrus.FieldLogger
}

// NewChain returns a chain trying strategies in the given order.
func NewChain(log logrus.FieldLogger, strategies ...Strategy) *Chain {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Chain{strategies: strategies, log: log}
}

// Resolve runs the chain. Failures of individual strategies are logged and
// absorbed; when every strategy comes back empty the result is a single
// not-found error.
func (c *Chain) Resolve(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error) {
	var last error
	for i, s := range c.strategies {
		res := mo.TupleToResult(s.Resolve(ctx, fc, ref))
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := c.log.WithField("strategy", s.Name())
		embeds, err := res.Get()
		switch {
		case err != nil:
			log.WithError(err).Debug("strategy failed")
			last = err
		case len(embeds) == 0:
			log.Debug("strategy found nothing")
		default:
			log.WithField("embeds", len(embeds)).Debug("strategy succeeded")
			fetch.Report(fc, 100, c.log)
			return embeds, nil
		}

		if i < len(c.strategies)-1 {
			fetch.Report(fc, (i+1)*100/len(c.strategies), c.log)
		}
	}

	var nf *media.NotFoundError
	if errors.As(last, &nf) {
		return nil, nf
	}
	return nil, &media.NotFoundError{Reason: "no embeds found", Err: last}
}
