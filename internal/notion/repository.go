package notion

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound means the post does not exist or is not published.
var ErrNotFound = errors.New("post not found")

var (
	uuidPattern     = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	noHyphenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// FindOptions filters and pages a post listing.
type FindOptions struct {
	Tag           string
	Series        string
	Limit         int
	Cursor        string
	SortAscending bool
}

// PostPage is one page of posts plus the cursor for the next one, empty
// when there is none.
type PostPage struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// PostPath is the sitemap view of a post.
type PostPath struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"lastModified"`
}

// PostMetadata is the slice of a post used for tag and series aggregation.
type PostMetadata struct {
	Tags   []string
	Series string
}

// SeriesStats summarizes one series: size, recency, and the first chapters
// as a preview.
type SeriesStats struct {
	Name        string    `json:"name"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
	Preview     []Post    `json:"preview"`
}

// Repository exposes post-level operations over the CMS. The data source id
// of the configured database is resolved once and cached.
type Repository struct {
	client     *Client
	databaseID string

	mu           sync.Mutex
	dataSourceID string
}

// NewRepository wraps a client with the database the posts live in.
func NewRepository(client *Client, databaseID string) *Repository {
	return &Repository{client: client, databaseID: databaseID}
}

func (r *Repository) dataSource(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dataSourceID != "" {
		return r.dataSourceID, nil
	}
	id, err := r.client.retrieveDataSourceID(ctx, r.databaseID)
	if err != nil {
		return "", fmt.Errorf("resolve data source: %w", err)
	}
	r.dataSourceID = id
	return id, nil
}

func statusFilter(status Status) map[string]any {
	return map[string]any{
		"property": statusProperty,
		"select":   map[string]any{"equals": string(status)},
	}
}

func publishedFilter(opts FindOptions) any {
	base := statusFilter(StatusUpdated)
	var clauses []any
	if opts.Tag != "" {
		clauses = append(clauses, map[string]any{
			"property":     "tags",
			"multi_select": map[string]any{"contains": opts.Tag},
		})
	}
	if opts.Series != "" {
		clauses = append(clauses, map[string]any{
			"property": "series",
			"select":   map[string]any{"equals": opts.Series},
		})
	}
	if len(clauses) == 0 {
		return base
	}
	return map[string]any{"and": append([]any{base}, clauses...)}
}

// FindPosts lists published posts, newest first unless asked otherwise.
func (r *Repository) FindPosts(ctx context.Context, opts FindOptions) (PostPage, error) {
	dataSourceID, err := r.dataSource(ctx)
	if err != nil {
		return PostPage{}, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	direction := "descending"
	if opts.SortAscending {
		direction = "ascending"
	}

	resp, err := r.client.queryDataSource(ctx, dataSourceID, dataSourceQuery{
		Filter:      publishedFilter(opts),
		Sorts:       []querySort{{Property: "date", Direction: direction}},
		PageSize:    limit,
		StartCursor: opts.Cursor,
	})
	if err != nil {
		return PostPage{}, fmt.Errorf("query posts: %w", err)
	}

	page := PostPage{}
	for _, raw := range resp.Results {
		var rp rawPage
		if err := unmarshalPage(raw, &rp); err != nil {
			return PostPage{}, err
		}
		page.Posts = append(page.Posts, mapPost(rp))
	}
	if resp.HasMore {
		page.NextCursor = resp.NextCursor
	}
	return page, nil
}

// GetPost retrieves one published post by page id. Draft or deleted posts
// report ErrNotFound just like missing ones, so unpublished ids leak
// nothing.
func (r *Repository) GetPost(ctx context.Context, id string) (Post, error) {
	if !isValidPageID(id) {
		return Post{}, ErrNotFound
	}

	page, err := r.client.retrievePage(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return Post{}, ErrNotFound
		}
		return Post{}, fmt.Errorf("retrieve page: %w", err)
	}

	post := mapPost(page)
	if post.Status != StatusUpdated {
		return Post{}, ErrNotFound
	}
	return post, nil
}

// GetPostContent fetches the full block tree of a post.
func (r *Repository) GetPostContent(ctx context.Context, id string) ([]block.Block, error) {
	return r.client.FetchTree(ctx, id)
}

// GetAdjacentPosts finds the published posts immediately before and after
// the given date. The two queries run concurrently.
func (r *Repository) GetAdjacentPosts(ctx context.Context, date time.Time) (prev, next *Post, err error) {
	dataSourceID, err := r.dataSource(ctx)
	if err != nil {
		return nil, nil, err
	}

	queryOne := func(dateFilter map[string]any, direction string) (*Post, error) {
		resp, err := r.client.queryDataSource(ctx, dataSourceID, dataSourceQuery{
			Filter: map[string]any{"and": []any{
				statusFilter(StatusUpdated),
				map[string]any{"property": "date", "date": dateFilter},
			}},
			Sorts:    []querySort{{Property: "date", Direction: direction}},
			PageSize: 1,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Results) == 0 {
			return nil, nil
		}
		var rp rawPage
		if err := unmarshalPage(resp.Results[0], &rp); err != nil {
			return nil, err
		}
		post := mapPost(rp)
		return &post, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := queryOne(map[string]any{"before": date.Format(time.RFC3339)}, "descending")
		prev = p
		return err
	})
	g.Go(func() error {
		n, err := queryOne(map[string]any{"after": date.Format(time.RFC3339)}, "ascending")
		next = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("query adjacent posts: %w", err)
	}
	return prev, next, nil
}

// forEachPublished pages through every published post and hands each one to
// fn, in the requested sort order.
func (r *Repository) forEachPublished(ctx context.Context, sorts []querySort, fn func(Post)) error {
	dataSourceID, err := r.dataSource(ctx)
	if err != nil {
		return err
	}

	cursor := ""
	for {
		resp, err := r.client.queryDataSource(ctx, dataSourceID, dataSourceQuery{
			Filter:      statusFilter(StatusUpdated),
			Sorts:       sorts,
			PageSize:    100,
			StartCursor: cursor,
		})
		if err != nil {
			return fmt.Errorf("query published posts: %w", err)
		}
		for _, raw := range resp.Results {
			var rp rawPage
			if err := unmarshalPage(raw, &rp); err != nil {
				return err
			}
			fn(mapPost(rp))
		}
		if !resp.HasMore {
			return nil
		}
		cursor = resp.NextCursor
	}
}

// GetAllPublishedPaths lists every published post for the sitemap.
func (r *Repository) GetAllPublishedPaths(ctx context.Context) ([]PostPath, error) {
	var paths []PostPath
	err := r.forEachPublished(ctx, []querySort{{Property: "date", Direction: "descending"}}, func(p Post) {
		paths = append(paths, PostPath{ID: p.ID, LastModified: p.PublishedDate()})
	})
	return paths, err
}

// GetAllPublishedMetadata returns the tag/series slices of every published
// post, for aggregation pages.
func (r *Repository) GetAllPublishedMetadata(ctx context.Context) ([]PostMetadata, error) {
	var metadata []PostMetadata
	err := r.forEachPublished(ctx, nil, func(p Post) {
		metadata = append(metadata, PostMetadata{Tags: p.Tags, Series: p.Series})
	})
	return metadata, err
}

// GetAllPublished returns every published post, newest first. Used to seed
// the search index.
func (r *Repository) GetAllPublished(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := r.forEachPublished(ctx, []querySort{{Property: "date", Direction: "descending"}}, func(p Post) {
		posts = append(posts, p)
	})
	return posts, err
}

// GetSeriesStats aggregates published posts by series. Previews hold the
// first five chapters in reading order; series are sorted by most recent
// update.
func (r *Repository) GetSeriesStats(ctx context.Context) ([]SeriesStats, error) {
	grouped := make(map[string][]Post)
	err := r.forEachPublished(ctx, []querySort{{Property: "date", Direction: "descending"}}, func(p Post) {
		if p.Series != "" {
			grouped[p.Series] = append(grouped[p.Series], p)
		}
	})
	if err != nil {
		return nil, err
	}

	stats := make([]SeriesStats, 0, len(grouped))
	for name, posts := range grouped {
		last := time.Time{}
		for _, p := range posts {
			if d := p.PublishedDate(); d.After(last) {
				last = d
			}
		}
		chapters := make([]Post, len(posts))
		copy(chapters, posts)
		sort.Slice(chapters, func(i, j int) bool {
			return chapters[i].PublishedDate().Before(chapters[j].PublishedDate())
		})
		if len(chapters) > 5 {
			chapters = chapters[:5]
		}
		stats = append(stats, SeriesStats{
			Name:        name,
			Count:       len(posts),
			LastUpdated: last,
			Preview:     chapters,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].LastUpdated.After(stats[j].LastUpdated)
	})
	return stats, nil
}

// GetAboutPost returns the page marked with the About status, or nil when
// none exists.
func (r *Repository) GetAboutPost(ctx context.Context) (*Post, error) {
	dataSourceID, err := r.dataSource(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.queryDataSource(ctx, dataSourceID, dataSourceQuery{
		Filter:   statusFilter(StatusAbout),
		Sorts:    []querySort{{Property: "date", Direction: "descending"}},
		PageSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("query about post: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	var rp rawPage
	if err := unmarshalPage(resp.Results[0], &rp); err != nil {
		return nil, err
	}
	post := mapPost(rp)
	return &post, nil
}

// UpdateStatus sets the status select of a page and records the transition
// in the systemLog property.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status) error {
	page, err := r.client.retrievePage(ctx, id)
	if err != nil {
		return fmt.Errorf("retrieve page for status update: %w", err)
	}
	current := page.property(statusProperty).selectName()
	if current == "" {
		current = "Unknown"
	}

	err = r.client.updatePage(ctx, id, map[string]any{
		statusProperty: map[string]any{
			"select": map[string]any{"name": string(status)},
		},
	})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return r.AppendSystemLog(ctx, id, fmt.Sprintf("%s → %s", current, status))
}

// AppendSystemLog appends one timestamped line to the page's systemLog
// property. The log is append-only: existing content is always preserved.
func (r *Repository) AppendSystemLog(ctx context.Context, id, message string) error {
	page, err := r.client.retrievePage(ctx, id)
	if err != nil {
		return fmt.Errorf("retrieve page for log append: %w", err)
	}
	existing := page.property(systemLogProperty).text()

	line := fmt.Sprintf("[%s] %s", time.Now().Format("2006-01-02 15:04"), message)
	if existing != "" {
		line = existing + "\n" + line
	}

	err = r.client.updatePage(ctx, id, map[string]any{
		systemLogProperty: map[string]any{
			"rich_text": []any{
				map[string]any{"text": map[string]any{"content": line}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("append system log: %w", err)
	}
	return nil
}

func isValidPageID(id string) bool {
	return uuidPattern.MatchString(id) || noHyphenPattern.MatchString(id)
}
