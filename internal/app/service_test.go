package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
	"github.com/Sharknia/tuum-prism/internal/cache"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/Sharknia/tuum-prism/internal/render"
	"github.com/Sharknia/tuum-prism/internal/search"
)

// fakeStore serves canned posts and records status updates.
type fakeStore struct {
	posts         map[string]notion.Post
	content       map[string][]block.Block
	statusUpdates map[string]notion.Status
	contentCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:         map[string]notion.Post{},
		content:       map[string][]block.Block{},
		statusUpdates: map[string]notion.Status{},
	}
}

func (f *fakeStore) FindPosts(_ context.Context, opts notion.FindOptions) (notion.PostPage, error) {
	var out []notion.Post
	for _, p := range f.posts {
		if p.Status != notion.StatusUpdated {
			continue
		}
		if opts.Tag != "" && !contains(p.Tags, opts.Tag) {
			continue
		}
		if opts.Series != "" && p.Series != opts.Series {
			continue
		}
		out = append(out, p)
	}
	return notion.PostPage{Posts: out}, nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (notion.Post, error) {
	p, ok := f.posts[id]
	if !ok || p.Status != notion.StatusUpdated {
		return notion.Post{}, notion.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetPostContent(_ context.Context, id string) ([]block.Block, error) {
	f.contentCalls++
	return f.content[id], nil
}

func (f *fakeStore) GetAdjacentPosts(_ context.Context, _ time.Time) (*notion.Post, *notion.Post, error) {
	return nil, nil, nil
}

func (f *fakeStore) GetAllPublishedPaths(_ context.Context) ([]notion.PostPath, error) {
	var paths []notion.PostPath
	for _, p := range f.posts {
		if p.Status == notion.StatusUpdated {
			paths = append(paths, notion.PostPath{ID: p.ID, LastModified: p.UpdatedAt})
		}
	}
	return paths, nil
}

func (f *fakeStore) GetAllPublishedMetadata(_ context.Context) ([]notion.PostMetadata, error) {
	var metadata []notion.PostMetadata
	for _, p := range f.posts {
		if p.Status == notion.StatusUpdated {
			metadata = append(metadata, notion.PostMetadata{Tags: p.Tags, Series: p.Series})
		}
	}
	return metadata, nil
}

func (f *fakeStore) GetAllPublished(_ context.Context) ([]notion.Post, error) {
	var out []notion.Post
	for _, p := range f.posts {
		if p.Status == notion.StatusUpdated {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSeriesStats(_ context.Context) ([]notion.SeriesStats, error) {
	return nil, nil
}

func (f *fakeStore) GetAboutPost(_ context.Context) (*notion.Post, error) {
	for _, p := range f.posts {
		if p.Status == notion.StatusAbout {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status notion.Status) error {
	f.statusUpdates[id] = status
	p := f.posts[id]
	p.Status = status
	f.posts[id] = p
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// memCache is an in-process PostCache used to observe cache traffic.
type memCache struct {
	entries map[string]cache.PostEntry
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]cache.PostEntry{}}
}

func (c *memCache) GetPost(_ context.Context, id string) (cache.PostEntry, error) {
	e, ok := c.entries[id]
	if !ok {
		return cache.PostEntry{}, cache.ErrMiss
	}
	return e, nil
}

func (c *memCache) SetPost(_ context.Context, id string, entry cache.PostEntry) error {
	c.sets++
	c.entries[id] = entry
	return nil
}

func (c *memCache) InvalidatePost(_ context.Context, id string) error {
	delete(c.entries, id)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func publishedPost(id, title string, tags ...string) notion.Post {
	return notion.Post{
		ID:        id,
		Title:     title,
		Tags:      tags,
		Status:    notion.StatusUpdated,
		UpdatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestService(store *fakeStore, postCache PostCache) *Service {
	return NewService(store, nil, postCache, nil, search.NewService(nil, search.NewMemory()), render.New(true), nil)
}

func TestGetPostViewDerivesAnalytics(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Hello")
	store.content["p1"] = []block.Block{
		{ID: "h1", Type: block.TypeHeading1, RichText: []block.Span{{Text: "Intro"}}},
		{ID: "h2", Type: block.TypeHeading2, RichText: []block.Span{{Text: "Details"}}},
		{ID: "b1", Type: block.TypeParagraph, RichText: []block.Span{{Text: strings.Repeat("x", 600)}}},
	}
	svc := newTestService(store, nil)

	view, err := svc.GetPostView(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPostView failed: %v", err)
	}
	if view.ReadingTime != 2 {
		t.Errorf("ReadingTime = %d, want 2", view.ReadingTime)
	}
	if len(view.TOC) != 2 {
		t.Fatalf("TOC length = %d, want 2", len(view.TOC))
	}
	if !view.HasMeaningfulTOC {
		t.Error("two headings should mark the TOC as meaningful")
	}
	if view.TOC[0].ID != "intro" {
		t.Errorf("TOC id = %q", view.TOC[0].ID)
	}
	if !strings.Contains(view.HTML, `<h1 id="intro">Intro</h1>`) {
		t.Errorf("rendered HTML missing anchored heading: %s", view.HTML)
	}
}

func TestGetPostViewSingleHeadingHasNoTOC(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Hello")
	store.content["p1"] = []block.Block{
		{ID: "h1", Type: block.TypeHeading1, RichText: []block.Span{{Text: "Only"}}},
	}
	svc := newTestService(store, nil)

	view, err := svc.GetPostView(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetPostView failed: %v", err)
	}
	if view.TOC != nil {
		t.Errorf("a single heading must not produce a TOC, got %+v", view.TOC)
	}
	if view.HasMeaningfulTOC {
		t.Error("a single heading must not mark the TOC as meaningful")
	}
}

func TestGetPostViewNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)

	_, err := svc.GetPostView(context.Background(), "missing")
	var de *DomainError
	if !errors.As(err, &de) || de.Status != 404 {
		t.Errorf("expected 404 DomainError, got %v", err)
	}
}

func TestGetPostViewUsesCache(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Hello")
	store.content["p1"] = []block.Block{
		{ID: "b", Type: block.TypeParagraph, RichText: []block.Span{{Text: "cached body"}}},
	}
	c := newMemCache()
	svc := newTestService(store, c)

	ctx := context.Background()
	if _, err := svc.GetPostView(ctx, "p1"); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("first load must populate the cache, sets = %d", c.sets)
	}
	if _, err := svc.GetPostView(ctx, "p1"); err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if store.contentCalls != 1 {
		t.Errorf("second load must hit the cache, content calls = %d", store.contentCalls)
	}
}

func TestListTagsAggregates(t *testing.T) {
	store := newFakeStore()
	store.posts["a"] = publishedPost("a", "A", "go", "redis")
	store.posts["b"] = publishedPost("b", "B", "go")
	draft := publishedPost("c", "C", "draft-tag")
	draft.Status = notion.StatusWriting
	store.posts["c"] = draft
	svc := newTestService(store, nil)

	tags, err := svc.ListTags(context.Background())
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %+v, want 2 entries", tags)
	}
	if tags[0].Name != "go" || tags[0].Count != 2 {
		t.Errorf("most used tag first: %+v", tags)
	}
}

func TestHandleStatusChangeReady(t *testing.T) {
	store := newFakeStore()
	post := publishedPost("p1", "Ready Post", "go")
	post.Status = notion.StatusReady
	store.posts["p1"] = post
	c := newMemCache()
	c.entries["p1"] = cache.PostEntry{}
	svc := newTestService(store, c)

	if err := svc.HandleStatusChange(context.Background(), "p1", notion.StatusReady); err != nil {
		t.Fatalf("HandleStatusChange failed: %v", err)
	}
	if store.statusUpdates["p1"] != notion.StatusUpdated {
		t.Errorf("status must move to Updated, got %q", store.statusUpdates["p1"])
	}
	if _, ok := c.entries["p1"]; ok {
		t.Error("cache entry must be invalidated")
	}
	if resp := svc.Search(searchQuery("ready")); resp.Total != 1 {
		t.Errorf("published post must be searchable: %+v", resp)
	}
}

func TestHandleStatusChangeToBeDeleted(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Doomed", "go")
	svc := newTestService(store, nil)
	svc.Bootstrap(context.Background())

	if err := svc.HandleStatusChange(context.Background(), "p1", notion.StatusToBeDeleted); err != nil {
		t.Fatalf("HandleStatusChange failed: %v", err)
	}
	if store.statusUpdates["p1"] != notion.StatusDeleted {
		t.Errorf("status must move to Deleted, got %q", store.statusUpdates["p1"])
	}
	if resp := svc.Search(searchQuery("doomed")); resp.Total != 0 {
		t.Errorf("deleted post must leave the index: %+v", resp)
	}
}

func TestHandleStatusChangeUnknownStatus(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)

	err := svc.HandleStatusChange(context.Background(), "p1", notion.Status("작성중"))
	var de *DomainError
	if !errors.As(err, &de) || de.Status != 422 {
		t.Fatalf("expected 422 DomainError, got %v", err)
	}
	details, ok := de.Details.(map[string]string)
	if !ok || details["status"] != "작성중" {
		t.Errorf("details must name the rejected status, got %+v", de.Details)
	}
}

func TestBootstrapIndexesPublished(t *testing.T) {
	store := newFakeStore()
	store.posts["a"] = publishedPost("a", "Alpha Post")
	draft := publishedPost("b", "Beta Draft")
	draft.Status = notion.StatusWriting
	store.posts["b"] = draft
	svc := newTestService(store, nil)

	svc.Bootstrap(context.Background())

	if resp := svc.Search(searchQuery("alpha")); resp.Total != 1 {
		t.Errorf("published post missing from index: %+v", resp)
	}
	if resp := svc.Search(searchQuery("beta")); resp.Total != 0 {
		t.Errorf("draft must not be indexed: %+v", resp)
	}
}

func searchQuery(text string) search.Query {
	return search.Query{Text: text}
}
