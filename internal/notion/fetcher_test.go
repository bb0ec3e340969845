package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
)

// childrenPageDef is one canned page of a fake children listing.
type childrenPageDef struct {
	results    []map[string]any
	nextCursor string
	hasMore    bool
}

// fakeCMS serves /v1/blocks/{id}/children from canned pages keyed by
// parent id and cursor.
type fakeCMS struct {
	pages map[string]map[string]childrenPageDef // parent -> cursor -> page
	fail  map[string]bool
	calls atomic.Int64
}

func (f *fakeCMS) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 || parts[0] != "v1" || parts[1] != "blocks" || parts[3] != "children" {
			http.NotFound(w, r)
			return
		}
		parent := parts[2]
		if f.fail[parent] {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": "internal_server_error", "message": "boom",
			})
			return
		}
		page, ok := f.pages[parent][r.URL.Query().Get("start_cursor")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": "object_not_found", "message": "no such block",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object":      "list",
			"results":     page.results,
			"next_cursor": page.nextCursor,
			"has_more":    page.hasMore,
		})
	})
}

func paragraphJSON(id, text string) map[string]any {
	return map[string]any{
		"id": id, "type": "paragraph", "has_children": false,
		"paragraph": map[string]any{
			"rich_text": []any{map[string]any{"plain_text": text}},
		},
	}
}

func parentJSON(id, typ string) map[string]any {
	return map[string]any{
		"id": id, "type": typ, "has_children": true,
		typ: map[string]any{"rich_text": []any{map[string]any{"plain_text": id}}},
	}
}

func newTestClient(t *testing.T, cms *fakeCMS) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(cms.handler())
	return NewClient(server.URL, "test-token"), server.Close
}

func blockIDs(blocks []block.Block) []string {
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID
	}
	return ids
}

func TestFetchTreePaginationPreservesOrder(t *testing.T) {
	cms := &fakeCMS{pages: map[string]map[string]childrenPageDef{
		"root": {
			"": {
				results:    []map[string]any{paragraphJSON("a", "1"), parentJSON("b", "toggle")},
				nextCursor: "cur-2",
				hasMore:    true,
			},
			"cur-2": {
				results: []map[string]any{paragraphJSON("c", "3"), paragraphJSON("d", "4")},
			},
		},
		"b": {
			"": {results: []map[string]any{paragraphJSON("b1", "nested"), paragraphJSON("b2", "nested2")}},
		},
	}}
	client, done := newTestClient(t, cms)
	defer done()

	blocks, err := client.FetchTree(context.Background(), "root")
	if err != nil {
		t.Fatalf("FetchTree failed: %v", err)
	}

	got := strings.Join(blockIDs(blocks), ",")
	if got != "a,b,c,d" {
		t.Errorf("top-level order = %s, want a,b,c,d", got)
	}
	if nested := strings.Join(blockIDs(blocks[1].Children), ","); nested != "b1,b2" {
		t.Errorf("nested order = %s, want b1,b2", nested)
	}
}

func TestFetchTreeNoChildren(t *testing.T) {
	cms := &fakeCMS{pages: map[string]map[string]childrenPageDef{
		"root": {"": {results: nil}},
	}}
	client, done := newTestClient(t, cms)
	defer done()

	blocks, err := client.FetchTree(context.Background(), "root")
	if err != nil {
		t.Fatalf("FetchTree failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("expected empty tree, got %d blocks", len(blocks))
	}
}

func TestFetchTreeSubtreeFailureFailsWholeFetch(t *testing.T) {
	cms := &fakeCMS{
		pages: map[string]map[string]childrenPageDef{
			"root": {"": {results: []map[string]any{
				paragraphJSON("a", "1"),
				parentJSON("b", "toggle"),
			}}},
		},
		fail: map[string]bool{"b": true},
	}
	client, done := newTestClient(t, cms)
	defer done()

	if _, err := client.FetchTree(context.Background(), "root"); err == nil {
		t.Fatal("expected error when a subtree listing fails")
	}
}

// Many sibling subtrees racing must still come back in document order.
func TestFetchTreeConcurrentSiblingsKeepOrder(t *testing.T) {
	const siblings = 20
	pages := map[string]map[string]childrenPageDef{"root": {"": {}}}
	rootPage := childrenPageDef{}
	for i := 0; i < siblings; i++ {
		id := fmt.Sprintf("s%02d", i)
		rootPage.results = append(rootPage.results, parentJSON(id, "toggle"))
		pages[id] = map[string]childrenPageDef{
			"": {results: []map[string]any{paragraphJSON(id+"-child", "x")}},
		}
	}
	pages["root"][""] = rootPage

	cms := &fakeCMS{pages: pages}
	client, done := newTestClient(t, cms)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	blocks, err := client.FetchTree(ctx, "root")
	if err != nil {
		t.Fatalf("FetchTree failed: %v", err)
	}
	if len(blocks) != siblings {
		t.Fatalf("got %d siblings, want %d", len(blocks), siblings)
	}
	for i, b := range blocks {
		want := fmt.Sprintf("s%02d", i)
		if b.ID != want {
			t.Fatalf("sibling %d = %s, want %s", i, b.ID, want)
		}
		if len(b.Children) != 1 || b.Children[0].ID != want+"-child" {
			t.Fatalf("sibling %s lost its subtree", b.ID)
		}
	}
}

func TestFetchTreeNoDuplicateRequests(t *testing.T) {
	cms := &fakeCMS{pages: map[string]map[string]childrenPageDef{
		"root": {
			"":   {results: []map[string]any{paragraphJSON("a", "1")}, nextCursor: "c2", hasMore: true},
			"c2": {results: []map[string]any{paragraphJSON("b", "2")}, nextCursor: "c3", hasMore: true},
			"c3": {results: []map[string]any{paragraphJSON("c", "3")}},
		},
	}}
	client, done := newTestClient(t, cms)
	defer done()

	blocks, err := client.FetchTree(context.Background(), "root")
	if err != nil {
		t.Fatalf("FetchTree failed: %v", err)
	}
	if got := strings.Join(blockIDs(blocks), ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
	if calls := cms.calls.Load(); calls != 3 {
		t.Errorf("expected exactly 3 listing calls, got %d", calls)
	}
}
