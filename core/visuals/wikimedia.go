package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/luminaedu/lumina-core/core/lessons"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

// WikimediaClient searches Wikimedia Commons for freely licensed
// illustrations.
type WikimediaClient struct {
	httpClient *http.Client
}

func NewWikimediaClient() *WikimediaClient {
	return &WikimediaClient{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type commonsResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			ImageInfo []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

func (c *WikimediaClient) Search(ctx context.Context, query string) (*lessons.VisualReference, error) {
	ctx, span := tracer.Start(ctx, "visuals.Search")
	defer span.End()

	urlValues := url.Values{}
	urlValues.Set("action", "query")
	urlValues.Set("generator", "search")
	urlValues.Set("gsrsearch", query)
	urlValues.Set("gsrnamespace", "6") // File: pages only
	urlValues.Set("gsrlimit", "1")
	urlValues.Set("prop", "imageinfo")
	urlValues.Set("iiprop", "url|size")
	urlValues.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		(&url.URL{
			Scheme: "https",
			Host:   "commons.wikimedia.org", Path: "/w/api.php",
			RawQuery: urlValues.Encode(),
		}).String(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build request")
		return nil, fmt.Errorf("failed to build commons request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("failed to search wikimedia commons: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("wikimedia commons returned %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read body")
		return nil, fmt.Errorf("failed to read commons response: %w", err)
	}

	var parsed commonsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse body")
		return nil, fmt.Errorf("failed to parse commons response: %w", err)
	}

	for _, page := range parsed.Query.Pages {
		if len(page.ImageInfo) == 0 {
			continue
		}
		info := page.ImageInfo[0]
		return &lessons.VisualReference{
			URL:        info.URL,
			SourceName: page.Title,
			Width:      info.Width,
			Height:     info.Height,
		}, nil
	}

	// No match is not an error; callers substitute a placeholder.
	return nil, nil
}
