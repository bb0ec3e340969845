package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sharknia/tuum-prism/internal/block"
	"github.com/Sharknia/tuum-prism/internal/notion"
)

func newTestServer(t *testing.T, store *fakeStore) *httptest.Server {
	t.Helper()
	svc := newTestService(store, nil)
	server := httptest.NewServer(NewHTTPServer(svc, "*", "hook-secret").Handler())
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, target any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	var body map[string]any
	if status := getJSON(t, server.URL+"/api/health", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["ok"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestGetPostEndpoint(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Hello")
	store.content["p1"] = []block.Block{
		{ID: "b", Type: block.TypeParagraph, RichText: []block.Span{{Text: "body text"}}},
	}
	server := newTestServer(t, store)

	var view PostView
	if status := getJSON(t, server.URL+"/api/posts/p1", &view); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if view.Post.Title != "Hello" {
		t.Errorf("title = %q", view.Post.Title)
	}
	if !strings.Contains(view.HTML, "body text") {
		t.Errorf("html = %q", view.HTML)
	}
	if view.ReadingTime != 1 {
		t.Errorf("readingTime = %d", view.ReadingTime)
	}
}

func TestGetPostNotFound(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	var body map[string]any
	if status := getJSON(t, server.URL+"/api/posts/missing", &body); status != http.StatusNotFound {
		t.Fatalf("status = %d", status)
	}
	if body["code"] != "NOT_FOUND" {
		t.Errorf("body = %v", body)
	}
}

func TestListPostsValidatesLimit(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	var body struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	if status := getJSON(t, server.URL+"/api/posts?limit=nope", &body); status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}
	if body.Code != "VALIDATION_ERROR" || body.Details["limit"] != "nope" {
		t.Errorf("error must name the offending value: %+v", body)
	}
	if status := getJSON(t, server.URL+"/api/posts?limit=-3", nil); status != http.StatusUnprocessableEntity {
		t.Errorf("negative limit: status = %d, want 422", status)
	}
}

func TestPreflightHasNoBody(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/posts", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("204 must not carry a body, got %q", data)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("preflight must carry CORS method headers")
	}
}

func TestListPostsReturnsEmptyArray(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, err := http.Get(server.URL + "/api/posts")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	var raw struct {
		Posts json.RawMessage `json:"posts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(raw.Posts) != "[]" {
		t.Errorf("posts = %s, want []", raw.Posts)
	}
}

func TestSearchEndpoint(t *testing.T) {
	store := newFakeStore()
	store.posts["p1"] = publishedPost("p1", "Searchable Title", "go")
	server := newTestServer(t, store)

	// Warm the index through the hook path.
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/hooks/status",
		strings.NewReader(`{"postId":"p1","status":"Updated"}`))
	req.Header.Set("X-Prism-Hook-Token", "hook-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hook status = %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if status := getJSON(t, server.URL+"/api/search?q=searchable", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Total != 1 || len(body.Results) != 1 || body.Results[0].ID != "p1" {
		t.Errorf("search response = %+v", body)
	}
}

func TestStatusHookRequiresToken(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, err := http.Post(server.URL+"/api/hooks/status", "application/json",
		strings.NewReader(`{"postId":"p1","status":"Ready"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatusHookValidation(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/hooks/status",
		strings.NewReader(`{"status":"Ready"}`))
	req.Header.Set("X-Prism-Hook-Token", "hook-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("missing postId: status = %d, want 422", resp.StatusCode)
	}
}

func TestStatusHookPublishes(t *testing.T) {
	store := newFakeStore()
	post := publishedPost("p1", "Pending")
	post.Status = notion.StatusReady
	store.posts["p1"] = post
	server := newTestServer(t, store)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/hooks/status",
		strings.NewReader(`{"postId":"p1","status":"Ready"}`))
	req.Header.Set("X-Prism-Hook-Token", "hook-secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if store.statusUpdates["p1"] != notion.StatusUpdated {
		t.Errorf("post not published, status update = %q", store.statusUpdates["p1"])
	}
}

func TestTokensUnavailableWithoutStore(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	var body map[string]any
	if status := getJSON(t, server.URL+"/api/tokens/linkedin", &body); status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
	if body["code"] != "TOKENS_UNAVAILABLE" {
		t.Errorf("body = %v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	if status := getJSON(t, server.URL+"/api/unknown", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestCORSHeaders(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
}
