package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sourcerer/internal/extract"
	"sourcerer/internal/media"
	"sourcerer/internal/provider"
)

var (
	flagTMDB      string
	flagIMDB      string
	flagExtractor string
)

var movieCmd = &cobra.Command{
	Use:   "movie <imdb-id>",
	Short: "Find embeds for a movie",
	Args:  cobra.ExactArgs(1),
	RunE:  movieRun,
}

var showCmd = &cobra.Command{
	Use:   "show <tmdb-id> <season> <episode>",
	Short: "Find embeds for an episode",
	Args:  cobra.ExactArgs(3),
	RunE:  showRun,
}

var embedCmd = &cobra.Command{
	Use:   "embed <url>",
	Short: "Resolve an embed page into streams",
	Args:  cobra.ExactArgs(1),
	RunE:  embedRun,
}

func init() {
	movieCmd.Flags().StringVar(&flagTMDB, "tmdb", "", "TMDB ID, used when no IMDb ID is given")
	showCmd.Flags().StringVar(&flagIMDB, "imdb", "", "IMDb ID of the show")
	embedCmd.Flags().StringVarP(&flagExtractor, "extractor", "e", "", "Extractor ID to use instead of matching the URL")
}

// result is the JSON shape printed by movie, show and embed.
type result struct {
	Media   string            `json:"media,omitempty"`
	Embeds  []media.EmbedRef  `json:"embeds,omitempty"`
	Streams []resolvedStreams `json:"streams,omitempty"`
}

type resolvedStreams struct {
	EmbedID   string         `json:"embedId,omitempty"`
	Extractor string         `json:"extractor"`
	Streams   []media.Stream `json:"streams"`
}

func movieRun(cmd *cobra.Command, args []string) error {
	return sourceRun(cmd, media.NewMovie(flagTMDB, args[0]))
}

func showRun(cmd *cobra.Command, args []string) error {
	season, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid season %q", args[1])
	}
	episode, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid episode %q", args[2])
	}
	return sourceRun(cmd, media.NewShow(args[0], flagIMDB, season, episode))
}

// sourceRun scrapes ref with the autoembed sourcerer and optionally
// resolves every embed that has a matching extractor.
func sourceRun(cmd *cobra.Command, ref media.Ref) error {
	ctx := cmd.Context()
	src := provider.NewAutoembed(cfg.AutoembedBase, cfg.AutoembedAPI, logrus.StandardLogger())
	debugf("scraping %s with %s", ref, src.Name())

	embeds, err := src.Scrape(ctx, newFetcher(src.ID()), ref)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return fmt.Errorf("no embeds found for %s", ref)
		}
		return fmt.Errorf("scraping %s: %w", ref, err)
	}

	out := result{Media: ref.String(), Embeds: embeds}
	if flagResolve {
		registry := newRegistry()
		for _, e := range embeds {
			ext, ok := registry.For(e.URL)
			if !ok {
				debugf("no extractor for %s", e.URL)
				continue
			}
			streams, err := ext.Extract(ctx, newFetcher(ext.ID()), e.URL)
			if err != nil {
				debugf("%s failed on %s: %v", ext.ID(), e.EmbedID, err)
				continue
			}
			out.Streams = append(out.Streams, resolvedStreams{EmbedID: e.EmbedID, Extractor: ext.ID(), Streams: streams})
		}
	}

	return printResult(out)
}

func embedRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ext, err := pickExtractor(newRegistry(), args[0], flagExtractor)
	if err != nil {
		return err
	}
	debugf("extracting %s with %s", args[0], ext.ID())

	streams, err := ext.Extract(ctx, newFetcher(ext.ID()), args[0])
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return fmt.Errorf("no stream found at %s", args[0])
		}
		return fmt.Errorf("extracting %s: %w", args[0], err)
	}

	return printResult(result{Streams: []resolvedStreams{{Extractor: ext.ID(), Streams: streams}}})
}

func newRegistry() *extract.Registry {
	return extract.NewRegistry(
		extract.NewVidmoly(cfg.VidmolyBase, cfg.M3U8Proxy, logrus.StandardLogger()).
			WithReferrers(cfg.VidmolyReferrers...),
	)
}

// pickExtractor returns the extractor named by id, or the highest ranked
// one that accepts embedURL when id is empty.
func pickExtractor(registry *extract.Registry, embedURL, id string) (extract.Extractor, error) {
	known := strings.Join(lo.Map(registry.All(), func(e extract.Extractor, _ int) string { return e.ID() }), ", ")
	if id != "" {
		ext, ok := registry.ByID(id)
		if !ok {
			return nil, fmt.Errorf("unknown extractor %q (known: %s)", id, known)
		}
		return ext, nil
	}
	ext, ok := registry.For(embedURL)
	if !ok {
		return nil, fmt.Errorf("no extractor handles %s (known: %s)", embedURL, known)
	}
	return ext, nil
}

func printResult(out result) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, e := range out.Embeds {
		fmt.Printf("%s\t%s\n", e.EmbedID, e.URL)
	}
	for _, r := range out.Streams {
		playlists := lo.Map(r.Streams, func(s media.Stream, _ int) string { return s.Playlist })
		for _, p := range playlists {
			fmt.Printf("%s\t%s\n", r.Extractor, p)
		}
	}
	return nil
}
