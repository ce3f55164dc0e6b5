package dns

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultProxyURL is used for targets that require a proxy but name none.
const DefaultProxyURL = "socks5://localhost:10808"

// NewHTTPClient builds the HTTP client for one target. When proxyURL is
// non-empty every request of that client is routed through it; nothing
// outside the returned client is affected.
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("dns: invalid proxy url %q: %w", proxyURL, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("dns: unsupported proxy scheme %q", u.Scheme)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
