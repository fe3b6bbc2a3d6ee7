// Package fetch defines the network capability resolvers run against and
// an HTTP implementation of it. Resolvers never build their own clients:
// the host hands them a Context and keeps ownership of it.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/httputil"
)

// Options tune a single request. A nil *Options means a plain GET.
type Options struct {
	// BaseURL, when set, is joined with the request URL like a browser
	// resolves a relative link.
	BaseURL string
	Headers map[string]string
	Query   url.Values
	Method  string
	Body    string
}

// Response is the full result of a request, including the URL the
// request ended up at after redirects.
type Response struct {
	Body     string
	FinalURL string
	Headers  http.Header
	Status   int
}

// Context is the capability bundle a resolution call runs with.
type Context interface {
	// Fetch performs a direct request and returns the body.
	Fetch(ctx context.Context, rawURL string, opts *Options) (string, error)
	// ProxiedFetch routes the request through an intermediary that
	// bypasses origin restrictions.
	ProxiedFetch(ctx context.Context, rawURL string, opts *Options) (string, error)
	// ProxiedFetchFull is ProxiedFetch returning headers and final URL.
	ProxiedFetchFull(ctx context.Context, rawURL string, opts *Options) (*Response, error)
	// Progress reports completion as a percentage.
	Progress(percent int)
}

// Stream is an open response body, for content relayed without buffering.
type Stream struct {
	Body    io.ReadCloser
	Status  int
	Headers http.Header
	// ContentLength is -1 when unknown.
	ContentLength int64
}

// TooLargeError is returned when a buffered body exceeds the read limit.
type TooLargeError struct {
	URL   string
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("response from %s exceeds %d bytes", e.URL, e.Limit)
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// ResolveURL applies BaseURL and Query from opts to rawURL.
func ResolveURL(rawURL string, opts *Options) (string, error) {
	target := rawURL
	if opts != nil && opts.BaseURL != "" {
		joined, err := httputil.JoinURL(opts.BaseURL, rawURL)
		if err != nil {
			return "", err
		}
		target = joined
	}
	if opts == nil || len(opts.Query) == 0 {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", target, err)
	}
	q := u.Query()
	for k, vs := range opts.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Report forwards percent to fc.Progress. A panicking progress callback
// is recovered and logged; it never aborts the resolution.
func Report(fc Context, percent int, log logrus.FieldLogger) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.WithField("percent", percent).Warnf("progress callback panicked: %v", r)
		}
	}()
	fc.Progress(percent)
}
