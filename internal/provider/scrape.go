package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/httputil"
	"sourcerer/internal/media"
	"sourcerer/internal/pattern"
)

// DefaultAutoembedBase is the player site the scrape tier reads.
const DefaultAutoembedBase = "https://player.autoembed.cc/"

var (
	// serverPattern captures every mirror reference listed on a player page.
	serverPattern = regexp.MustCompile(`data-server="([^"]*)"`)

	// sourcesPatterns locate the inline source array; mirror templates
	// embed it under different keys.
	sourcesPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sources:\s*(\[[^\]]*\])`),
		regexp.MustCompile(`file":\s*(\[[^\]]*\])`),
	}
)

// ScrapeStrategy reads the legacy player page, discovers its mirrors and
// pulls the source list out of every mirror page.
type ScrapeStrategy struct {
	base string
	log  logrus.FieldLogger
}

// NewScrapeStrategy creates the scrape tier against the player site base.
func NewScrapeStrategy(base string, log logrus.FieldLogger) *ScrapeStrategy {
	if base == "" {
		base = DefaultAutoembedBase
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ScrapeStrategy{base: base, log: log.WithField("strategy", "scrape")}
}

func (s *ScrapeStrategy) Name() string { return "scrape" }

// sourceEntry is one element of a mirror's inline source array.
// Label is kept raw: mirrors put strings, numbers or nothing there.
type sourceEntry struct {
	File  string          `json:"file"`
	Label json.RawMessage `json:"label"`
}

// Resolve scrapes every mirror of ref. It fails with not-found only when
// the player page lists no mirrors; a mirror that fails is skipped.
func (s *ScrapeStrategy) Resolve(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error) {
	segments, err := playerPath(ref)
	if err != nil {
		return nil, media.NotFound(err.Error())
	}

	page, err := fc.Fetch(ctx, httputil.BuildURL(s.base, segments...), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching player page: %w", err)
	}

	servers := pattern.FindAll(serverPattern, page)
	if len(servers) == 0 {
		return nil, media.NotFound("no servers on player page")
	}
	s.log.WithField("servers", len(servers)).Debug("discovered mirrors")

	results := make([]mo.Result[[]media.EmbedRef], 0, len(servers))
	for _, server := range servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, s.resolveServer(ctx, fc, server))
	}

	for _, r := range results {
		if r.IsError() {
			s.log.WithError(r.Error()).Debug("mirror skipped")
		}
	}

	embeds := lo.FlatMap(results, func(r mo.Result[[]media.EmbedRef], _ int) []media.EmbedRef {
		return r.OrEmpty()
	})
	return lo.UniqBy(embeds, func(e media.EmbedRef) string { return e.EmbedID }), nil
}

// resolveServer turns one mirror reference into embeds. Every failure is
// reported as a *media.CandidateError naming the stage that broke.
func (s *ScrapeStrategy) resolveServer(ctx context.Context, fc fetch.Context, server string) mo.Result[[]media.EmbedRef] {
	fail := func(stage media.Stage, err error) mo.Result[[]media.EmbedRef] {
		return mo.Err[[]media.EmbedRef](&media.CandidateError{Candidate: server, Stage: stage, Err: err})
	}

	mirrorURL, err := DecodeServer(server)
	if err != nil {
		return fail(media.StageDecode, err)
	}

	page, err := fc.ProxiedFetch(ctx, mirrorURL, nil)
	if err != nil {
		return fail(media.StageFetch, err)
	}

	fragments := pattern.EachOf(sourcesPatterns, page)
	if len(fragments) == 0 {
		return fail(media.StageMatch, errors.New("no source list on mirror page"))
	}

	var (
		entries  []sourceEntry
		parseErr error
		parsed   bool
	)
	for _, fragment := range fragments {
		var batch []sourceEntry
		if err := json.Unmarshal([]byte(fragment), &batch); err != nil {
			parseErr = err
			continue
		}
		parsed = true
		entries = append(entries, batch...)
	}
	if !parsed {
		return fail(media.StageParse, parseErr)
	}

	kept := lo.Filter(entries, func(e sourceEntry, _ int) bool {
		return e.File != "" && keepRawLabel(e.Label)
	})
	return mo.Ok(lo.Map(kept, func(e sourceEntry, _ int) media.EmbedRef {
		return media.EmbedRef{EmbedID: EmbedID(server, labelText(e.Label)), URL: e.File}
	}))
}

// DecodeServer turns a mirror reference into the mirror page URL.
// References are base64, sometimes without padding.
func DecodeServer(server string) (string, error) {
	trimmed := strings.TrimSpace(server)
	if trimmed == "" {
		return "", errors.New("empty server reference")
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(trimmed, "="))
		if err != nil {
			return "", fmt.Errorf("decoding server reference: %w", err)
		}
	}

	mirrorURL := string(raw)
	if err := httputil.ValidateFetchURL(mirrorURL); err != nil {
		return "", fmt.Errorf("server reference is not a URL: %w", err)
	}
	return mirrorURL, nil
}

// KeepLabel reports whether a source with this label is kept: unlabeled
// sources and those whose label starts with "eng" in any case.
func KeepLabel(label string) bool {
	return label == "" || strings.HasPrefix(strings.ToLower(label), "eng")
}

// EmbedID derives a stable embed identifier from the mirror reference and
// source label, so parsing the same page twice yields the same IDs.
func EmbedID(server, label string) string {
	return fmt.Sprintf("auto-embed-%s-%s", server, label)
}

// keepRawLabel applies KeepLabel to a raw JSON label. Absent, null and
// non-string labels cannot be read as a language and are kept.
func keepRawLabel(raw json.RawMessage) bool {
	var label string
	if err := json.Unmarshal(raw, &label); err != nil {
		return true
	}
	return KeepLabel(label)
}

// labelText renders a raw JSON label for use in an embed ID.
func labelText(raw json.RawMessage) string {
	var label string
	if err := json.Unmarshal(raw, &label); err == nil {
		return label
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

// playerPath returns the player page path segments for ref:
// embed/tv/<tmdb>/<season>/<episode> or embed/movie/<imdb>.
func playerPath(ref media.Ref) ([]string, error) {
	if ref.IsShow() {
		if err := validateShow(ref); err != nil {
			return nil, err
		}
		return []string{"embed", "tv", ref.TMDBID, ref.SeasonString(), ref.EpisodeString()}, nil
	}
	id, err := movieID(ref)
	if err != nil {
		return nil, err
	}
	return []string{"embed", "movie", id}, nil
}

func validateShow(ref media.Ref) error {
	if err := httputil.ValidateNumericID(ref.TMDBID); err != nil {
		return fmt.Errorf("invalid tmdb id: %w", err)
	}
	if ref.Season < 0 || ref.Episode < 1 {
		return fmt.Errorf("invalid episode S%dE%d", ref.Season, ref.Episode)
	}
	return nil
}

// movieID prefers the IMDb ID and falls back to TMDB.
func movieID(ref media.Ref) (string, error) {
	id := ref.IMDBID
	if id == "" {
		id = ref.TMDBID
	}
	if err := httputil.ValidateID(id); err != nil {
		return "", fmt.Errorf("invalid movie id: %w", err)
	}
	return id, nil
}
