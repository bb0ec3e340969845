// Package app wires the content pipeline together and exposes it over HTTP:
// posts come from the CMS, images are externalized, analytics are derived,
// and the result is cached, indexed, and rendered.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
	"github.com/Sharknia/tuum-prism/internal/cache"
	"github.com/Sharknia/tuum-prism/internal/export"
	"github.com/Sharknia/tuum-prism/internal/images"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/Sharknia/tuum-prism/internal/render"
	"github.com/Sharknia/tuum-prism/internal/search"
)

// PostStore is the subset of the CMS repository the service uses.
type PostStore interface {
	FindPosts(ctx context.Context, opts notion.FindOptions) (notion.PostPage, error)
	GetPost(ctx context.Context, id string) (notion.Post, error)
	GetPostContent(ctx context.Context, id string) ([]block.Block, error)
	GetAdjacentPosts(ctx context.Context, date time.Time) (prev, next *notion.Post, err error)
	GetAllPublishedPaths(ctx context.Context) ([]notion.PostPath, error)
	GetAllPublishedMetadata(ctx context.Context) ([]notion.PostMetadata, error)
	GetAllPublished(ctx context.Context) ([]notion.Post, error)
	GetSeriesStats(ctx context.Context) ([]notion.SeriesStats, error)
	GetAboutPost(ctx context.Context) (*notion.Post, error)
	UpdateStatus(ctx context.Context, id string, status notion.Status) error
}

// PostCache is the subset of the Redis layer used for post entries.
// May be nil; the service then goes straight to the CMS every time.
type PostCache interface {
	GetPost(ctx context.Context, id string) (cache.PostEntry, error)
	SetPost(ctx context.Context, id string, entry cache.PostEntry) error
	InvalidatePost(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// TokenStore persists social provider tokens. May be nil.
type TokenStore interface {
	GetToken(ctx context.Context, provider string) (cache.Token, error)
	SaveToken(ctx context.Context, provider string, token cache.Token) error
}

// Service is the application facade behind the HTTP layer.
type Service struct {
	posts    PostStore
	images   images.Processor
	cache    PostCache
	tokens   TokenStore
	search   *search.Service
	renderer *render.Renderer
	exporter *export.Service
}

// NewService assembles the facade. cache and tokens may be nil; search must
// be non-nil (use the memory fallback when Meilisearch is absent).
func NewService(posts PostStore, imgs images.Processor, postCache PostCache, tokens TokenStore, searchSvc *search.Service, renderer *render.Renderer, exporter *export.Service) *Service {
	if imgs == nil {
		imgs = images.Passthrough{}
	}
	return &Service{
		posts:    posts,
		images:   imgs,
		cache:    postCache,
		tokens:   tokens,
		search:   searchSvc,
		renderer: renderer,
		exporter: exporter,
	}
}

// Ping reports backend connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// PostView is the fully hydrated shape served for a single post.
type PostView struct {
	Post             notion.Post     `json:"post"`
	HTML             string          `json:"html"`
	TOC              []block.TOCItem `json:"toc,omitempty"`
	HasMeaningfulTOC bool            `json:"hasMeaningfulToc"`
	ReadingTime      int             `json:"readingTime"`
	Prev             *notion.Post    `json:"prev,omitempty"`
	Next             *notion.Post    `json:"next,omitempty"`
}

// ListPosts returns one page of published posts.
func (s *Service) ListPosts(ctx context.Context, opts notion.FindOptions) (notion.PostPage, error) {
	page, err := s.posts.FindPosts(ctx, opts)
	if err != nil {
		return notion.PostPage{}, fmt.Errorf("list posts: %w", err)
	}
	if page.Posts == nil {
		page.Posts = []notion.Post{}
	}
	return page, nil
}

// GetPostView loads a post with its rendered body and derived analytics.
// The cache holds the expensive part (the hydrated block tree after image
// externalization); rendering and analytics are recomputed per request.
func (s *Service) GetPostView(ctx context.Context, id string) (PostView, error) {
	post, blocks, err := s.loadEntry(ctx, id)
	if err != nil {
		return PostView{}, err
	}

	view := PostView{
		Post:        post,
		HTML:        s.renderer.HTML(blocks),
		ReadingTime: block.ReadingTime(blocks),
	}
	if block.HasMeaningfulTOC(blocks) {
		view.TOC = block.ExtractTOC(blocks)
		view.HasMeaningfulTOC = true
	}

	prev, next, err := s.posts.GetAdjacentPosts(ctx, post.PublishedDate())
	if err != nil {
		// Navigation is decoration; the post itself already loaded.
		log.Printf("app: adjacent posts for %s: %v", id, err)
	} else {
		view.Prev = prev
		view.Next = next
	}
	return view, nil
}

// GetAboutView loads the about page, which lives outside the published feed.
func (s *Service) GetAboutView(ctx context.Context) (PostView, error) {
	post, err := s.posts.GetAboutPost(ctx)
	if err != nil {
		return PostView{}, fmt.Errorf("get about post: %w", err)
	}
	if post == nil {
		return PostView{}, domainError(http.StatusNotFound, "NOT_FOUND", "No about page published", nil)
	}

	blocks, err := s.posts.GetPostContent(ctx, post.ID)
	if err != nil {
		return PostView{}, fmt.Errorf("get about content: %w", err)
	}
	blocks = s.images.Process(ctx, blocks, post.ID)

	return PostView{
		Post:        *post,
		HTML:        s.renderer.HTML(blocks),
		ReadingTime: block.ReadingTime(blocks),
	}, nil
}

func (s *Service) loadEntry(ctx context.Context, id string) (notion.Post, []block.Block, error) {
	if s.cache != nil {
		entry, err := s.cache.GetPost(ctx, id)
		if err == nil {
			return entry.Post, entry.Blocks, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("app: cache read for %s: %v", id, err)
		}
	}

	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, notion.ErrNotFound) {
			return notion.Post{}, nil, domainError(http.StatusNotFound, "NOT_FOUND", "Post not found", nil)
		}
		return notion.Post{}, nil, fmt.Errorf("get post %s: %w", id, err)
	}

	blocks, err := s.posts.GetPostContent(ctx, id)
	if err != nil {
		return notion.Post{}, nil, fmt.Errorf("get post content %s: %w", id, err)
	}

	blocks = s.images.Process(ctx, blocks, id)

	if s.cache != nil {
		if err := s.cache.SetPost(ctx, id, cache.PostEntry{Post: post, Blocks: blocks}); err != nil {
			log.Printf("app: cache write for %s: %v", id, err)
		}
	}
	return post, blocks, nil
}

// TagCount is one entry of the tag aggregation.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListTags aggregates tag usage across all published posts, most used first.
func (s *Service) ListTags(ctx context.Context) ([]TagCount, error) {
	metadata, err := s.posts.GetAllPublishedMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	counts := map[string]int{}
	for _, m := range metadata {
		for _, tag := range m.Tags {
			counts[tag]++
		}
	}

	tags := make([]TagCount, 0, len(counts))
	for name, count := range counts {
		tags = append(tags, TagCount{Name: name, Count: count})
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

// ListSeries returns per-series statistics.
func (s *Service) ListSeries(ctx context.Context) ([]notion.SeriesStats, error) {
	stats, err := s.posts.GetSeriesStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	if stats == nil {
		stats = []notion.SeriesStats{}
	}
	return stats, nil
}

// Sitemap lists every published post path with its last modification time.
func (s *Service) Sitemap(ctx context.Context) ([]notion.PostPath, error) {
	paths, err := s.posts.GetAllPublishedPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}
	if paths == nil {
		paths = []notion.PostPath{}
	}
	return paths, nil
}

// Search runs a full-text query over published posts.
func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

// Bootstrap warms the search index from the CMS. Failures are logged, not
// fatal; the service starts with an empty index and fills on status hooks.
func (s *Service) Bootstrap(ctx context.Context) {
	posts, err := s.posts.GetAllPublished(ctx)
	if err != nil {
		log.Printf("app: bootstrap reindex: %v", err)
		return
	}
	records := make([]search.Record, 0, len(posts))
	for _, p := range posts {
		records = append(records, postRecord(p))
	}
	s.search.IndexPosts(records)
	log.Printf("app: indexed %d posts", len(records))
}

// HandleStatusChange reacts to the CMS status webhook. Ready posts are
// published (status moves to Updated), ToBeDeleted posts are retired, and
// Updated posts get their cache and index refreshed.
func (s *Service) HandleStatusChange(ctx context.Context, id string, status notion.Status) error {
	switch status {
	case notion.StatusReady:
		if err := s.posts.UpdateStatus(ctx, id, notion.StatusUpdated); err != nil {
			return fmt.Errorf("publish %s: %w", id, err)
		}
		s.invalidate(ctx, id)
		s.reindexPost(ctx, id)
	case notion.StatusUpdated:
		s.invalidate(ctx, id)
		s.reindexPost(ctx, id)
	case notion.StatusToBeDeleted:
		if err := s.posts.UpdateStatus(ctx, id, notion.StatusDeleted); err != nil {
			return fmt.Errorf("retire %s: %w", id, err)
		}
		s.invalidate(ctx, id)
		s.search.DeletePost(id)
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"status does not trigger any action", map[string]string{"status": string(status)})
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePost(ctx, id); err != nil {
		log.Printf("app: invalidate %s: %v", id, err)
	}
}

func (s *Service) reindexPost(ctx context.Context, id string) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		log.Printf("app: reindex %s: %v", id, err)
		return
	}
	s.search.IndexPosts([]search.Record{postRecord(post)})
}

func postRecord(p notion.Post) search.Record {
	return search.Record{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
		Series:      p.Series,
	}
}

// ExportPost renders a post to PDF.
func (s *Service) ExportPost(ctx context.Context, id string) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	post, blocks, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.ExportPDF(ctx, post, blocks)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer is not installed", nil)
		}
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	return result, nil
}

// TokenStatus reports expiry bookkeeping for a stored provider token.
func (s *Service) TokenStatus(ctx context.Context, provider string) (cache.TokenStatus, error) {
	if s.tokens == nil {
		return cache.TokenStatus{}, domainError(http.StatusServiceUnavailable, "TOKENS_UNAVAILABLE", "Token storage is not configured", nil)
	}
	token, err := s.tokens.GetToken(ctx, provider)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return cache.TokenStatus{}, domainError(http.StatusNotFound, "NOT_FOUND", "No token stored for provider", nil)
		}
		return cache.TokenStatus{}, fmt.Errorf("token status %s: %w", provider, err)
	}
	return cache.TokenStatusFor(provider, token, time.Now()), nil
}

// SaveToken stores a provider token pair.
func (s *Service) SaveToken(ctx context.Context, provider string, token cache.Token) error {
	if s.tokens == nil {
		return domainError(http.StatusServiceUnavailable, "TOKENS_UNAVAILABLE", "Token storage is not configured", nil)
	}
	if err := s.tokens.SaveToken(ctx, provider, token); err != nil {
		return fmt.Errorf("save token %s: %w", provider, err)
	}
	return nil
}
