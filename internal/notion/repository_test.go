package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakePagesAPI serves page retrieval and update plus a fixed database /
// data source pair.
type fakePagesAPI struct {
	pages   map[string]map[string]any // id -> page object
	patches []map[string]any
}

func (f *fakePagesAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/pages/"):
			id := strings.TrimPrefix(r.URL.Path, "/v1/pages/")
			page, ok := f.pages[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code": "object_not_found", "message": "no such page",
				})
				return
			}
			if r.Method == http.MethodPatch {
				var body struct {
					Properties map[string]any `json:"properties"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				f.patches = append(f.patches, body.Properties)
				applyPatch(page, body.Properties)
			}
			_ = json.NewEncoder(w).Encode(page)
		case strings.HasPrefix(r.URL.Path, "/v1/databases/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data_sources": []any{map[string]any{"id": "ds-1"}},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

// applyPatch mirrors the API's write behavior closely enough for the
// repository's read-modify-write cycle.
func applyPatch(page map[string]any, properties map[string]any) {
	props := page["properties"].(map[string]any)
	for name, value := range properties {
		patch := value.(map[string]any)
		if sel, ok := patch["select"]; ok {
			props[name] = map[string]any{"type": "select", "select": sel}
		}
		if rt, ok := patch["rich_text"]; ok {
			content := ""
			for _, item := range rt.([]any) {
				text := item.(map[string]any)["text"].(map[string]any)
				content += text["content"].(string)
			}
			props[name] = map[string]any{
				"type":      "rich_text",
				"rich_text": []any{map[string]any{"plain_text": content}},
			}
		}
	}
}

func pageObject(id string, status, log string) map[string]any {
	return map[string]any{
		"id":               id,
		"last_edited_time": "2025-06-01T10:00:00Z",
		"properties": map[string]any{
			"title": map[string]any{
				"type":  "title",
				"title": []any{map[string]any{"plain_text": "A Post"}},
			},
			"상태": map[string]any{
				"type":   "select",
				"select": map[string]any{"name": status},
			},
			"systemLog": map[string]any{
				"type":      "rich_text",
				"rich_text": []any{map[string]any{"plain_text": log}},
			},
		},
	}
}

const testPageID = "11111111-2222-3333-4444-555555555555"

func newTestRepository(t *testing.T, api *fakePagesAPI) (*Repository, func()) {
	t.Helper()
	server := httptest.NewServer(api.handler())
	return NewRepository(NewClient(server.URL, "token"), "db-1"), server.Close
}

func TestGetPost(t *testing.T) {
	api := &fakePagesAPI{pages: map[string]map[string]any{
		testPageID: pageObject(testPageID, "Updated", ""),
	}}
	repo, done := newTestRepository(t, api)
	defer done()

	post, err := repo.GetPost(context.Background(), testPageID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.Title != "A Post" || post.Status != StatusUpdated {
		t.Errorf("unexpected post: %+v", post)
	}
}

func TestGetPostHidesUnpublished(t *testing.T) {
	draftID := "22222222-2222-3333-4444-555555555555"
	api := &fakePagesAPI{pages: map[string]map[string]any{
		draftID: pageObject(draftID, "Writing", ""),
	}}
	repo, done := newTestRepository(t, api)
	defer done()

	if _, err := repo.GetPost(context.Background(), draftID); !errors.Is(err, ErrNotFound) {
		t.Errorf("draft post must report ErrNotFound, got %v", err)
	}
}

func TestGetPostInvalidID(t *testing.T) {
	repo := NewRepository(NewClient("http://unused.invalid", "token"), "db-1")
	if _, err := repo.GetPost(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("malformed id must report ErrNotFound without calling the API, got %v", err)
	}
}

func TestGetPostMissing(t *testing.T) {
	api := &fakePagesAPI{pages: map[string]map[string]any{}}
	repo, done := newTestRepository(t, api)
	defer done()

	if _, err := repo.GetPost(context.Background(), testPageID); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing page must report ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusAppendsLog(t *testing.T) {
	api := &fakePagesAPI{pages: map[string]map[string]any{
		testPageID: pageObject(testPageID, "Ready", "[2025-05-01 09:00] created"),
	}}
	repo, done := newTestRepository(t, api)
	defer done()

	if err := repo.UpdateStatus(context.Background(), testPageID, StatusUpdated); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// One patch for the status, one for the log line.
	if len(api.patches) != 2 {
		t.Fatalf("expected 2 page updates, got %d", len(api.patches))
	}

	page, _ := repo.client.retrievePage(context.Background(), testPageID)
	log := page.property(systemLogProperty).text()
	if !strings.HasPrefix(log, "[2025-05-01 09:00] created\n") {
		t.Errorf("existing log must be preserved, got %q", log)
	}
	if !strings.Contains(log, "Ready → Updated") {
		t.Errorf("log must record the transition, got %q", log)
	}
	if got := page.property(statusProperty).selectName(); got != "Updated" {
		t.Errorf("status = %s, want Updated", got)
	}
}

func TestAppendSystemLogFirstLine(t *testing.T) {
	api := &fakePagesAPI{pages: map[string]map[string]any{
		testPageID: pageObject(testPageID, "Updated", ""),
	}}
	repo, done := newTestRepository(t, api)
	defer done()

	if err := repo.AppendSystemLog(context.Background(), testPageID, "hello"); err != nil {
		t.Fatalf("AppendSystemLog failed: %v", err)
	}

	page, _ := repo.client.retrievePage(context.Background(), testPageID)
	log := page.property(systemLogProperty).text()
	if strings.HasPrefix(log, "\n") {
		t.Errorf("first line must not start with a newline: %q", log)
	}
	if !strings.HasSuffix(log, " hello") {
		t.Errorf("log line must end with the message, got %q", log)
	}
}

func TestPublishedFilter(t *testing.T) {
	plain := publishedFilter(FindOptions{})
	if _, isAnd := plain.(map[string]any)["and"]; isAnd {
		t.Error("no extra filters should produce the bare status filter")
	}

	combined := publishedFilter(FindOptions{Tag: "go", Series: "s"})
	clauses, isAnd := combined.(map[string]any)["and"].([]any)
	if !isAnd || len(clauses) != 3 {
		t.Fatalf("tag+series filter must AND three clauses, got %v", combined)
	}
}

func TestSeriesStatsOrdering(t *testing.T) {
	// Three chapters of one series plus a standalone post, served through
	// the query endpoint.
	results := []any{}
	for i := 1; i <= 3; i++ {
		page := pageObject(fmt.Sprintf("post-%d", i), "Updated", "")
		props := page["properties"].(map[string]any)
		props["series"] = map[string]any{"type": "select", "select": map[string]any{"name": "Deep Dive"}}
		props["date"] = map[string]any{"type": "date", "date": map[string]any{"start": fmt.Sprintf("2025-01-0%d", i)}}
		results = append(results, page)
	}
	results = append(results, pageObject("loner", "Updated", ""))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/databases/") {
			_ = json.NewEncoder(w).Encode(map[string]any{"data_sources": []any{map[string]any{"id": "ds-1"}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "has_more": false})
	}))
	defer server.Close()

	repo := NewRepository(NewClient(server.URL, "token"), "db-1")
	stats, err := repo.GetSeriesStats(context.Background())
	if err != nil {
		t.Fatalf("GetSeriesStats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 series, got %d", len(stats))
	}
	s := stats[0]
	if s.Name != "Deep Dive" || s.Count != 3 {
		t.Errorf("unexpected stats: %+v", s)
	}
	// Preview reads like a book: oldest chapter first.
	if s.Preview[0].ID != "post-1" || s.Preview[2].ID != "post-3" {
		t.Errorf("preview must be in chapter order, got %v", s.Preview)
	}
}
