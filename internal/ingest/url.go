package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var webClient = &http.Client{Timeout: 30 * time.Second}

// FetchURL downloads a page and converts it to markdown, yielding a
// single-page document named after the URL.
func FetchURL(ctx context.Context, rawURL string) (*Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := webClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s returned %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to markdown: %w", rawURL, err)
	}

	name := urlFilename(parsed)
	return &Document{
		Filename: name,
		Pages:    []Page{{Number: 1, Header: headerFor(markdown, name), Text: markdown}},
	}, nil
}

// urlFilename flattens a URL into a stable display name.
func urlFilename(u *url.URL) string {
	name := u.Host + u.Path
	name = strings.Trim(name, "/")
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		name = "webpage"
	}
	return name
}
