package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// ProxyURL rewrites a manifest URL to go through the m3u8 proxy at
// endpoint. The proxy receives the original URL and the headers it must
// send upstream, so a player can fetch the manifest without spoofing them.
func ProxyURL(endpoint, manifest string, headers map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing proxy endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", manifest)
	if len(headers) > 0 {
		encoded, err := json.Marshal(headers)
		if err != nil {
			return "", fmt.Errorf("encoding headers: %w", err)
		}
		q.Set("headers", string(encoded))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
