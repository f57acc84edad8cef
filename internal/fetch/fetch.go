// Package fetch retrieves XML AIT documents over HTTP for the Application
// Manager's create_application broadband path.
package fetch

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Timeout bounds how long a single XML AIT fetch may take. Kept short so a
// slow or hanging server never stalls application launch.
const Timeout = 4 * time.Second

// MaxBodyBytes caps how much of the response body is read, guarding against
// a server streaming an unbounded response.
const MaxBodyBytes = 1 << 20 // 1 MiB

// Client fetches XML AIT documents, satisfying manager.BrowserCallback's
// GetXMLAITContents when embedded into a concrete browser implementation.
type Client struct {
	http *http.Client
}

// NewClient constructs a Client with a bounded timeout and a capped
// redirect chain.
func NewClient() *Client {
	return &Client{
		http: &http.Client{
			Timeout: Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// GetXMLAITContents fetches url and returns its body as a string, or "" on
// any failure or non-2xx status — matching the source's "empty string means
// no XML AIT, try broadband entry page instead" convention.
func (c *Client) GetXMLAITContents(url string) string {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("fetch: build request failed", "url", url, "err", err)
		return ""
	}
	req.Header.Set("User-Agent", "orb-core/1.0")
	req.Header.Set("Accept", "application/xml,text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("fetch: request failed", "url", url, "err", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("fetch: non-2xx response", "url", url, "status", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		slog.Warn("fetch: read body failed", "url", url, "err", err)
		return ""
	}
	return string(body)
}
