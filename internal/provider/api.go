package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/media"
)

// DefaultAutoembedAPI is the structured video-source endpoint.
const DefaultAutoembedAPI = "https://tom.autoembed.cc/api/getVideoSource"

// apiEmbedID tags the single embed the API strategy produces.
const apiEmbedID = "autoembed-api"

// APIStrategy asks the structured API for a ready video source.
type APIStrategy struct {
	endpoint string
	log      logrus.FieldLogger
}

// NewAPIStrategy creates the API tier against endpoint.
func NewAPIStrategy(endpoint string, log logrus.FieldLogger) *APIStrategy {
	if endpoint == "" {
		endpoint = DefaultAutoembedAPI
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &APIStrategy{endpoint: endpoint, log: log.WithField("strategy", "api")}
}

func (a *APIStrategy) Name() string { return "api" }

// videoSourceResponse is the JSON returned by the API.
// e.g. {"videoSource":"https://.../master.m3u8","subtitles":[...]}
type videoSourceResponse struct {
	VideoSource string `json:"videoSource"`
}

// Resolve queries the API. Failures come back as *media.CandidateError so
// the chain can log them and move on to the next tier.
func (a *APIStrategy) Resolve(ctx context.Context, fc fetch.Context, ref media.Ref) ([]media.EmbedRef, error) {
	segments, err := apiIDSegments(ref)
	if err != nil {
		return nil, &media.CandidateError{Candidate: a.Name(), Stage: media.StageDecode, Err: err}
	}

	referer, err := a.referer(ref, segments)
	if err != nil {
		return nil, &media.CandidateError{Candidate: a.Name(), Stage: media.StageDecode, Err: err}
	}

	body, err := fc.ProxiedFetch(ctx, a.endpoint, &fetch.Options{
		Query: url.Values{
			"type": {ref.Type.String()},
			"id":   {strings.Join(segments, "/")},
		},
		Headers: map[string]string{"Referer": referer},
	})
	if err != nil {
		return nil, &media.CandidateError{Candidate: a.Name(), Stage: media.StageFetch, Err: err}
	}

	var resp videoSourceResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, &media.CandidateError{Candidate: a.Name(), Stage: media.StageParse, Err: err}
	}
	if resp.VideoSource == "" {
		a.log.Debug("no video source in response")
		return nil, nil
	}

	return []media.EmbedRef{{EmbedID: apiEmbedID, URL: resp.VideoSource}}, nil
}

// referer derives the page a browser would have come from:
// <api origin>/<type>/<id segments>.
func (a *APIStrategy) referer(ref media.Ref, segments []string) (string, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, ref.Type, strings.Join(segments, "/")), nil
}

// apiIDSegments returns the composite identifier: the external id, plus
// season and episode for shows.
func apiIDSegments(ref media.Ref) ([]string, error) {
	if ref.IsShow() {
		if err := validateShow(ref); err != nil {
			return nil, err
		}
		return []string{ref.TMDBID, ref.SeasonString(), ref.EpisodeString()}, nil
	}
	id, err := movieID(ref)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}
