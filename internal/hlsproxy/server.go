// Package hlsproxy serves HLS manifests and segments on behalf of players
// that cannot send the headers an origin insists on.
package hlsproxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sourcerer/internal/fetch"
	"sourcerer/internal/httputil"
)

const (
	playlistPath = "/m3u8"
	segmentPath  = "/segment"

	playlistContentType = "application/vnd.apple.mpegurl"
)

// segmentTypes maps segment extensions to content types.
var segmentTypes = map[string]string{
	".ts":  "video/mp2t",
	".aac": "audio/aac",
	".m4s": "video/iso.segment",
	".mp4": "video/mp4",
	".vtt": "text/vtt",
}

// Fetcher is the upstream capability the proxy needs. Playlists are read
// whole to be rewritten; segments are relayed from Open as they arrive.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts *fetch.Options) (string, error)
	Open(ctx context.Context, rawURL string, opts *fetch.Options) (*fetch.Stream, error)
}

// relayedHeaders are copied from an upstream segment response.
var relayedHeaders = []string{"Content-Range", "Accept-Ranges", "Last-Modified", "ETag"}

// Server proxies HLS playlists and segments.
type Server struct {
	upstream Fetcher
	log      logrus.FieldLogger
}

// New creates a proxy fetching upstream content through f.
func New(f Fetcher, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{upstream: f, log: log.WithField("component", "hlsproxy")}
}

// Handler returns the gin engine serving the proxy routes.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())

	r.GET(playlistPath, s.handlePlaylist)
	r.GET(segmentPath, s.handleSegment)
	return r
}

// ListenAndServe serves the proxy on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type upstreamRequest struct {
	url     string
	headers map[string]string
}

// parseRequest reads the url and headers query parameters.
func parseRequest(c *gin.Context) (upstreamRequest, error) {
	req := upstreamRequest{url: c.Query("url")}
	if req.url == "" {
		return req, errors.New("missing url parameter")
	}
	if err := httputil.ValidateFetchURL(req.url); err != nil {
		return req, err
	}

	if raw := c.Query("headers"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.headers); err != nil {
			return req, errors.New("headers must be a JSON object of strings")
		}
	}
	return req, nil
}

func (s *Server) handlePlaylist(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body, err := s.upstream.Fetch(c.Request.Context(), req.url, &fetch.Options{Headers: req.headers})
	if err != nil {
		s.log.WithError(err).WithField("url", req.url).Warn("playlist fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}

	rw := Rewriter{PlaylistPath: playlistPath, SegmentPath: segmentPath, Headers: req.headers}
	out, err := rw.Rewrite(body, req.url)
	if err != nil {
		s.log.WithError(err).WithField("url", req.url).Warn("playlist rewrite failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream playlist is malformed"})
		return
	}

	c.Data(http.StatusOK, playlistContentType, []byte(out))
}

func (s *Server) handleSegment(c *gin.Context) {
	req, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	headers := make(map[string]string, len(req.headers)+1)
	for k, v := range req.headers {
		headers[k] = v
	}
	if r := c.GetHeader("Range"); r != "" {
		headers["Range"] = r
	}

	stream, err := s.upstream.Open(c.Request.Context(), req.url, &fetch.Options{Headers: headers})
	if err != nil {
		s.log.WithError(err).WithField("url", req.url).Warn("segment fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
		return
	}
	defer stream.Body.Close()

	extra := make(map[string]string)
	for _, h := range relayedHeaders {
		if v := stream.Headers.Get(h); v != "" {
			extra[h] = v
		}
	}

	c.DataFromReader(stream.Status, stream.ContentLength, segmentContentType(req.url, stream.Headers.Get("Content-Type")), stream.Body, extra)
}

// segmentContentType prefers the type implied by the extension, then the
// upstream's own.
func segmentContentType(rawURL, upstream string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if ct, ok := segmentTypes[strings.ToLower(path.Ext(p))]; ok {
		return ct
	}
	if upstream != "" {
		return upstream
	}
	return "application/octet-stream"
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Range")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
