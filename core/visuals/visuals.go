package visuals

import (
	"context"
	"net/url"

	"github.com/luminaedu/lumina-core/core/lessons"
)

// Searcher resolves a search phrase to a single illustration.
type Searcher interface {
	Search(ctx context.Context, query string) (*lessons.VisualReference, error)
}

// FallbackURL returns a deterministic placeholder image for a query, used
// when no real illustration could be resolved in time. The query is baked
// into the URL so the placeholder still names what it stands in for.
func FallbackURL(query string) string {
	return (&url.URL{
		Scheme:   "https",
		Host:     "placehold.co",
		Path:     "/1024x768",
		RawQuery: url.Values{"text": {query}}.Encode(),
	}).String()
}
