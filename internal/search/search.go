// Package search provides full-text site search backed by Meilisearch with a
// PostgreSQL fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Snippet     string   `json:"snippet"`
	Pricing     string   `json:"pricing,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsFavorite  bool     `json:"isFavorite"`
	IsPinned    bool     `json:"isPinned"`
}

// Query describes a search request, always scoped to one user.
type Query struct {
	UserID         string
	Text           string
	FilterCategory string
	FilterTag      string
	FilterPricing  string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// SiteRecord is the data we index for a site.
type SiteRecord struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Pricing     string   `json:"pricing"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	IsFavorite  bool     `json:"isFavorite"`
	IsPinned    bool     `json:"isPinned"`
}
