package hlsproxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sourcerer/internal/fetch"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	h.ServeHTTP(w, req)
	return w
}

func proxyPath(route, upstream, headers string) string {
	q := url.Values{"url": {upstream}}
	if headers != "" {
		q.Set("headers", headers)
	}
	return route + "?" + q.Encode()
}

func TestPlaylistRoute(t *testing.T) {
	upstream := fetch.NewFake().Serve("https://cdn.test/hls/master.m3u8", readPlaylist(t, "master.m3u8"))
	h := New(upstream, nil).Handler()

	w := get(t, h, proxyPath("/m3u8", "https://cdn.test/hls/master.m3u8", `{"Referer":"https://vidmoly.to/"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Body.String(), "/m3u8?headers=")
	assert.NotContains(t, w.Body.String(), "\n360p/index.m3u8")

	calls := upstream.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Proxied)
	assert.Equal(t, map[string]string{"Referer": "https://vidmoly.to/"}, calls[0].Options.Headers)
}

func TestSegmentRoute(t *testing.T) {
	upstream := fetch.NewFake().
		Serve("https://cdn.test/seg0.ts", "\x47\x00\x11binary").
		Serve("https://cdn.test/key.bin", "0123456789abcdef")
	h := New(upstream, nil).Handler()

	tests := []struct {
		upstream    string
		contentType string
		body        string
	}{
		{"https://cdn.test/seg0.ts", "video/mp2t", "\x47\x00\x11binary"},
		{"https://cdn.test/key.bin", "application/octet-stream", "0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.upstream, func(t *testing.T) {
			w := get(t, h, proxyPath("/segment", tt.upstream, ""))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestSegmentRouteRelaysLargeBodies(t *testing.T) {
	const size = 11 << 20
	payload := strings.Repeat("\x47", size)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Content-Length", strconv.Itoa(size))
		io.WriteString(w, payload)
	}))
	defer origin.Close()

	h := New(fetch.NewHTTP(origin.Client()), nil).Handler()
	w := get(t, h, proxyPath("/segment", origin.URL+"/hls/seg1.ts", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, size, w.Body.Len())
	assert.Equal(t, strconv.Itoa(size), w.Header().Get("Content-Length"))
}

func TestSegmentRouteForwardsRange(t *testing.T) {
	upstream := fetch.NewFake().Route("https://cdn.test/hls/all.ts", fetch.Route{
		Body:   "0123",
		Status: http.StatusPartialContent,
		Headers: http.Header{
			"Content-Range": {"bytes 100-103/5000"},
			"Accept-Ranges": {"bytes"},
		},
	})
	h := New(upstream, nil).Handler()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, proxyPath("/segment", "https://cdn.test/hls/all.ts", `{"Referer":"https://vidmoly.to/"}`), nil)
	req.Header.Set("Range", "bytes=100-103")
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "0123", w.Body.String())
	assert.Equal(t, "bytes 100-103/5000", w.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))

	calls := upstream.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]string{"Referer": "https://vidmoly.to/", "Range": "bytes=100-103"}, calls[0].Options.Headers)
}

func TestSegmentContentType(t *testing.T) {
	assert.Equal(t, "video/mp2t", segmentContentType("https://a.test/s.ts?x=1", "image/png"))
	assert.Equal(t, "image/png", segmentContentType("https://a.test/s", "image/png"))
	assert.Equal(t, "application/octet-stream", segmentContentType("https://a.test/key", ""))
}

func TestBadRequests(t *testing.T) {
	h := New(fetch.NewFake(), nil).Handler()

	tests := []struct {
		name   string
		target string
	}{
		{"missing url", "/m3u8"},
		{"relative url", proxyPath("/m3u8", "/local/file.m3u8", "")},
		{"unsupported scheme", proxyPath("/m3u8", "file:///etc/passwd", "")},
		{"headers not JSON", proxyPath("/m3u8", "https://cdn.test/a.m3u8", "Referer: x")},
		{"headers wrong shape", proxyPath("/segment", "https://cdn.test/a.ts", `{"Referer":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestUpstreamFailure(t *testing.T) {
	upstream := fetch.NewFake().Fail("https://cdn.test/down.m3u8", errors.New("connection reset"))
	h := New(upstream, nil).Handler()

	for _, target := range []string{
		proxyPath("/m3u8", "https://cdn.test/down.m3u8", ""),
		proxyPath("/m3u8", "https://cdn.test/missing.m3u8", ""),
		proxyPath("/segment", "https://cdn.test/missing.ts", ""),
	} {
		w := get(t, h, target)
		assert.Equal(t, http.StatusBadGateway, w.Code, target)
		assert.False(t, strings.Contains(w.Body.String(), "connection reset"), "upstream error leaked")
	}
}

func TestPreflight(t *testing.T) {
	h := New(fetch.NewFake(), nil).Handler()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/m3u8", nil)
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(fetch.NewFake(), nil).ListenAndServe(ctx, "127.0.0.1:0")
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
