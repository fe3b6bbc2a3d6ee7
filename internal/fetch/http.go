package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"sourcerer/internal/httputil"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 10 * 1024 * 1024

// finalDestinationHeader is set by the CORS proxy to the URL it ended up
// fetching after following redirects.
const finalDestinationHeader = "X-Final-Destination"

// proxyHeaderAliases are the X- names the CORS proxy replays upstream
// under the real header name.
var proxyHeaderAliases = map[string]string{
	"Cookie":     "X-Cookie",
	"Referer":    "X-Referer",
	"Origin":     "X-Origin",
	"User-Agent": "X-User-Agent",
	"X-Real-Ip":  "X-X-Real-Ip",
}

// HTTP implements Context over an *http.Client.
type HTTP struct {
	client *http.Client

	// proxyURL is the CORS proxy endpoint. Requests are sent to
	// proxyURL?destination=<target>. Empty means proxied calls go direct.
	proxyURL string

	onProgress func(percent int)
	log        logrus.FieldLogger
}

// Option configures an HTTP fetcher.
type Option func(*HTTP)

// WithProxy routes proxied calls through the CORS proxy at endpoint.
func WithProxy(endpoint string) Option {
	return func(h *HTTP) { h.proxyURL = endpoint }
}

// WithProgress installs the progress callback.
func WithProgress(fn func(percent int)) Option {
	return func(h *HTTP) { h.onProgress = fn }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(h *HTTP) { h.log = log }
}

// NewHTTP creates a fetcher backed by client.
func NewHTTP(client *http.Client, opts ...Option) *HTTP {
	h := &HTTP{
		client: client,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fetch performs a direct request.
func (h *HTTP) Fetch(ctx context.Context, rawURL string, opts *Options) (string, error) {
	target, err := ResolveURL(rawURL, opts)
	if err != nil {
		return "", err
	}
	resp, err := h.do(ctx, target, target, opts, false)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// ProxiedFetch performs a request through the CORS proxy.
func (h *HTTP) ProxiedFetch(ctx context.Context, rawURL string, opts *Options) (string, error) {
	resp, err := h.ProxiedFetchFull(ctx, rawURL, opts)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

// ProxiedFetchFull performs a request through the CORS proxy and returns
// the final URL alongside the body.
func (h *HTTP) ProxiedFetchFull(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	target, err := ResolveURL(rawURL, opts)
	if err != nil {
		return nil, err
	}
	if h.proxyURL == "" {
		return h.do(ctx, target, target, opts, false)
	}

	u, err := url.Parse(h.proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL: %w", err)
	}
	q := u.Query()
	q.Set("destination", target)
	u.RawQuery = q.Encode()

	resp, err := h.do(ctx, u.String(), target, opts, true)
	if err != nil {
		return nil, err
	}
	if final := resp.Headers.Get(finalDestinationHeader); final != "" {
		resp.FinalURL = final
	} else {
		resp.FinalURL = target
	}
	return resp, nil
}

// Progress invokes the configured callback, if any.
func (h *HTTP) Progress(percent int) {
	if h.onProgress != nil {
		h.onProgress(percent)
	}
}

// do sends the request to reqURL and reads the whole body. logical is the
// URL the caller asked for and is what errors report.
func (h *HTTP) do(ctx context.Context, reqURL, logical string, opts *Options, proxied bool) (*Response, error) {
	resp, err := h.send(ctx, reqURL, logical, opts, proxied)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(data) > maxBodySize {
		return nil, &TooLargeError{URL: logical, Limit: maxBodySize}
	}

	return &Response{
		Body:     string(data),
		FinalURL: resp.Request.URL.String(),
		Headers:  resp.Header,
		Status:   resp.StatusCode,
	}, nil
}

// Open performs a direct request and hands back the unread body. The
// caller must close it. No size limit applies.
func (h *HTTP) Open(ctx context.Context, rawURL string, opts *Options) (*Stream, error) {
	target, err := ResolveURL(rawURL, opts)
	if err != nil {
		return nil, err
	}
	resp, err := h.send(ctx, target, target, opts, false)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Body:          resp.Body,
		Status:        resp.StatusCode,
		Headers:       resp.Header,
		ContentLength: resp.ContentLength,
	}, nil
}

// send issues the request. A non-2xx response is closed and returned as a
// *StatusError. Requests to the CORS proxy carry restricted headers under
// their X- aliases, which the proxy replays upstream.
func (h *HTTP) send(ctx context.Context, reqURL, logical string, opts *Options, proxied bool) (*http.Response, error) {
	if err := httputil.ValidateFetchURL(logical); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	method := http.MethodGet
	var body io.Reader
	if opts != nil {
		if opts.Method != "" {
			method = strings.ToUpper(opts.Method)
		}
		if opts.Body != "" {
			body = strings.NewReader(opts.Body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if opts != nil {
		for k, v := range opts.Headers {
			if proxied {
				k = proxyHeaderName(k)
			}
			req.Header.Set(k, v)
		}
	}
	httputil.SetBrowserHeaders(req, "")

	h.log.WithFields(logrus.Fields{"method": method, "url": logical, "proxied": proxied}).Debug("fetching")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: logical, Code: resp.StatusCode}
	}
	return resp, nil
}

// proxyHeaderName maps headers a browser may not set on a cross-origin
// request to the alias the CORS proxy understands.
func proxyHeaderName(name string) string {
	if alias, ok := proxyHeaderAliases[http.CanonicalHeaderKey(name)]; ok {
		return alias
	}
	return name
}
