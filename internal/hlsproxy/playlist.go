package hlsproxy

import (
	"bufio"
	"regexp"
	"strings"

	"sourcerer/internal/extract"
	"sourcerer/internal/httputil"
)

// uriAttrPattern matches the quoted URI attribute of a playlist tag.
var uriAttrPattern = regexp.MustCompile(`URI="([^"]+)"`)

// playlistTags are tags whose URI, or following URI line, is itself a
// playlist rather than media.
var playlistTags = []string{
	"#EXT-X-STREAM-INF",
	"#EXT-X-MEDIA:",
	"#EXT-X-I-FRAME-STREAM-INF",
}

// Rewriter maps playlist references back through the proxy routes.
type Rewriter struct {
	PlaylistPath string
	SegmentPath  string
	Headers      map[string]string
}

// Rewrite resolves every reference in body against base and points it at
// the proxy, carrying the upstream headers along. Tags and comments are
// kept as they are.
func (r Rewriter) Rewrite(body, base string) (string, error) {
	var (
		out          strings.Builder
		nextPlaylist bool
	)

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			out.WriteString(line)
		case strings.HasPrefix(trimmed, "#"):
			rewritten, err := r.rewriteTag(trimmed, base)
			if err != nil {
				return "", err
			}
			out.WriteString(rewritten)
			nextPlaylist = strings.HasPrefix(trimmed, "#EXT-X-STREAM-INF")
		default:
			link, err := r.link(trimmed, base, nextPlaylist)
			if err != nil {
				return "", err
			}
			out.WriteString(link)
			nextPlaylist = false
		}
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (r Rewriter) rewriteTag(tag, base string) (string, error) {
	if !strings.Contains(tag, `URI="`) {
		return tag, nil
	}
	playlist := isPlaylistTag(tag)

	var firstErr error
	rewritten := uriAttrPattern.ReplaceAllStringFunc(tag, func(attr string) string {
		ref := uriAttrPattern.FindStringSubmatch(attr)[1]
		link, err := r.link(ref, base, playlist)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return attr
		}
		return `URI="` + link + `"`
	})
	return rewritten, firstErr
}

func (r Rewriter) link(ref, base string, playlist bool) (string, error) {
	abs, err := httputil.JoinURL(base, ref)
	if err != nil {
		return "", err
	}
	endpoint := r.SegmentPath
	if playlist || looksLikePlaylist(abs) {
		endpoint = r.PlaylistPath
	}
	return extract.ProxyURL(endpoint, abs, r.Headers)
}

func isPlaylistTag(tag string) bool {
	for _, p := range playlistTags {
		if strings.HasPrefix(tag, p) {
			return true
		}
	}
	return false
}

func looksLikePlaylist(rawURL string) bool {
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}
