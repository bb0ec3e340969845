// Package search provides full-text search over published posts, backed by
// Meilisearch with an in-memory fallback when it is unavailable.
package search

// Record is the data we index for a post.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Series      string   `json:"series,omitempty"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Series  string `json:"series,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Tag    string // empty = no tag filter
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push posts into a search index.
type Indexer interface {
	IndexPosts(posts []Record) error
	DeletePost(id string) error
}
