package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Route is a canned response served by Fake.
type Route struct {
	Body     string
	FinalURL string
	Err      error

	// Status and Headers are reported by Open; Status defaults to 200.
	Status  int
	Headers http.Header
}

// Call records one request made against a Fake.
type Call struct {
	URL     string
	Proxied bool
	Options Options
}

// Fake is an in-memory Context for tests. Requests are matched on the
// fully resolved URL; unknown URLs fail with a 404 StatusError.
type Fake struct {
	mu       sync.Mutex
	routes   map[string]Route
	calls    []Call
	progress []int

	// OnProgress, when set, is invoked after a percentage is recorded.
	OnProgress func(percent int)
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{routes: make(map[string]Route)}
}

// Serve registers body for url.
func (f *Fake) Serve(url, body string) *Fake {
	return f.Route(url, Route{Body: body})
}

// Fail makes requests for url return err.
func (f *Fake) Fail(url string, err error) *Fake {
	return f.Route(url, Route{Err: err})
}

// Route registers an arbitrary response for url.
func (f *Fake) Route(url string, r Route) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = r
	return f
}

func (f *Fake) Fetch(ctx context.Context, rawURL string, opts *Options) (string, error) {
	resp, err := f.serve(ctx, rawURL, opts, false)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

func (f *Fake) ProxiedFetch(ctx context.Context, rawURL string, opts *Options) (string, error) {
	resp, err := f.serve(ctx, rawURL, opts, true)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

func (f *Fake) ProxiedFetchFull(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	return f.serve(ctx, rawURL, opts, true)
}

func (f *Fake) Open(ctx context.Context, rawURL string, opts *Options) (*Stream, error) {
	resp, err := f.serve(ctx, rawURL, opts, false)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Body:          io.NopCloser(strings.NewReader(resp.Body)),
		Status:        resp.Status,
		Headers:       resp.Headers,
		ContentLength: int64(len(resp.Body)),
	}, nil
}

func (f *Fake) Progress(percent int) {
	f.mu.Lock()
	f.progress = append(f.progress, percent)
	fn := f.OnProgress
	f.mu.Unlock()
	if fn != nil {
		fn(percent)
	}
}

// Calls returns every request made so far, in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many requests were made for url.
func (f *Fake) CallCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.URL == url {
			n++
		}
	}
	return n
}

// ProgressReports returns the percentages reported so far.
func (f *Fake) ProgressReports() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.progress))
	copy(out, f.progress)
	return out
}

func (f *Fake) serve(ctx context.Context, rawURL string, opts *Options, proxied bool) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := ResolveURL(rawURL, opts)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	call := Call{URL: target, Proxied: proxied}
	if opts != nil {
		call.Options = *opts
	}
	f.calls = append(f.calls, call)
	route, ok := f.routes[target]
	f.mu.Unlock()

	if !ok {
		return nil, &StatusError{URL: target, Code: 404}
	}
	if route.Err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, route.Err)
	}
	final := route.FinalURL
	if final == "" {
		final = target
	}
	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	headers := route.Headers
	if headers == nil {
		headers = http.Header{}
	}
	return &Response{Body: route.Body, FinalURL: final, Headers: headers, Status: status}, nil
}
