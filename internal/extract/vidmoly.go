package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
	"sourcerer/internal/pattern"
)

const (
	vidmolyID   = "vidmoly"
	vidmolyRank = 194

	// DefaultVidmolyBase is the origin embed pages are fetched from.
	DefaultVidmolyBase = "https://vidmoly.to"

	// vidmolyOrigin is what the CDN checks in Origin and Referer,
	// whichever mirror served the embed page.
	vidmolyOrigin = "https://vidmoly.to"
)

var (
	// vidmolyURLPattern accepts vidmoly.to/w/<id> and vidmoly.me/w/<id>.
	vidmolyURLPattern = regexp.MustCompile(`https?://vidmoly\.(?:to|me)/w/([^?]+)`)

	// vidmolyPlaylistPattern captures the HLS manifest handed to the player setup.
	vidmolyPlaylistPattern = regexp.MustCompile(`file:\s*"([^"]*\.m3u8)"`)
)

// Vidmoly extracts HLS streams from vidmoly embed pages.
type Vidmoly struct {
	base      string
	proxy     string
	referrers []string
	log       logrus.FieldLogger
}

// NewVidmoly creates a Vidmoly extractor. base is the embed origin
// (DefaultVidmolyBase when empty) and proxyEndpoint the m3u8 proxy the
// resulting playlist is routed through.
func NewVidmoly(base, proxyEndpoint string, log logrus.FieldLogger) *Vidmoly {
	if base == "" {
		base = DefaultVidmolyBase
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Vidmoly{
		base:      strings.TrimRight(base, "/"),
		proxy:     proxyEndpoint,
		referrers: []string{"primewire"},
		log:       log.WithField("embed", vidmolyID),
	}
}

// WithReferrers replaces the hosts whose links redirect to vidmoly.
func (v *Vidmoly) WithReferrers(hosts ...string) *Vidmoly {
	v.referrers = hosts
	return v
}

func (v *Vidmoly) ID() string { return vidmolyID }

func (v *Vidmoly) Rank() int { return vidmolyRank }

func (v *Vidmoly) CanExtract(embedURL string) bool {
	return vidmolyURLPattern.MatchString(embedURL) || v.isReferrer(embedURL)
}

// Headers returns the header set embed pages and manifests must be
// requested with.
func (v *Vidmoly) Headers() map[string]string {
	return map[string]string{
		"Origin":  vidmolyOrigin,
		"Referer": vidmolyOrigin + "/",
	}
}

// Extract resolves a vidmoly page into a single proxied HLS stream.
func (v *Vidmoly) Extract(ctx context.Context, fc fetch.Context, embedURL string) ([]media.Stream, error) {
	pageURL := embedURL
	if v.isReferrer(embedURL) {
		resp, err := fc.ProxiedFetchFull(ctx, embedURL, nil)
		if err != nil {
			return nil, fmt.Errorf("following referrer: %w", err)
		}
		pageURL = resp.FinalURL
		v.log.WithField("url", pageURL).Debug("referrer resolved")
	}

	videoID, err := parseVidmolyID(pageURL)
	if err != nil {
		return nil, err
	}

	headers := v.Headers()
	resp, err := fc.ProxiedFetchFull(ctx, v.embedPageURL(videoID), &fetch.Options{Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("fetching embed page: %w", err)
	}
	fetch.Report(fc, 50, v.log)

	playlist, ok := pattern.Find(vidmolyPlaylistPattern, scriptText(resp.Body))
	if !ok {
		return nil, media.NotFound("HLS playlist not found")
	}

	proxied, err := ProxyURL(v.proxy, playlist, headers)
	if err != nil {
		return nil, fmt.Errorf("building proxy URL: %w", err)
	}
	fetch.Report(fc, 100, v.log)

	return []media.Stream{{
		ID:       "primary",
		Type:     media.HLS,
		Playlist: proxied,
		Headers:  headers,
		Captions: []media.Caption{},
		Flags:    []media.Flag{media.CORSAllowed},
	}}, nil
}

func (v *Vidmoly) embedPageURL(videoID string) string {
	return fmt.Sprintf("%s/embed-%s.html", v.base, url.PathEscape(videoID))
}

func (v *Vidmoly) isReferrer(embedURL string) bool {
	for _, host := range v.referrers {
		if host != "" && strings.Contains(embedURL, host) {
			return true
		}
	}
	return false
}

// parseVidmolyID extracts the video ID from a vidmoly watch URL.
// e.g., "https://vidmoly.to/w/abc123" -> "abc123"
func parseVidmolyID(pageURL string) (string, error) {
	id, ok := pattern.Find(vidmolyURLPattern, pageURL)
	if !ok || id == "" {
		return "", media.NotFound("invalid vidmoly URL format")
	}
	return id, nil
}
