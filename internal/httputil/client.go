// Package httputil provides a hardened HTTP client and input validation utilities.
package httputil

import (
	"crypto/tls"
	"net/http"
	"time"
)

// DefaultTimeout bounds every request made by a client from this package.
const DefaultTimeout = 30 * time.Second

// UserAgent is sent with every request unless the caller overrides it.
const UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"

// NewClient creates a hardened HTTP client with secure defaults.
// A zero timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			DisableCompression:  false,
			MaxIdleConnsPerHost: 5,
		},
	}
}

// SetBrowserHeaders applies standard browser-like headers to req.
// Headers already present on req are left alone.
func SetBrowserHeaders(req *http.Request, accept string) {
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	defaults := map[string]string{
		"User-Agent":      UserAgent,
		"Accept":          accept,
		"Accept-Language": "en-US,en;q=0.5",
	}
	for k, v := range defaults {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}
