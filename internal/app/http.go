package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sharknia/tuum-prism/internal/cache"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/Sharknia/tuum-prism/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	hookToken  string
}

func NewHTTPServer(service *Service, corsOrigin, hookToken string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, hookToken: hookToken}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		// Preflight: CORS headers are already set by the middleware and a
		// 204 must not carry a body.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"cache": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/posts" {
		s.handleListPosts(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/about" {
		view, err := s.service.GetAboutView(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tags" {
		tags, err := s.service.ListTags(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/series" {
		series, err := s.service.ListSeries(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"series": series})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/sitemap" {
		paths, err := s.service.Sitemap(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"paths": paths})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/hooks/status" {
		s.handleStatusHook(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	// /api/posts/{id} and /api/posts/{id}/export
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "posts" {
		id := parts[2]
		if r.Method == http.MethodGet && len(parts) == 3 {
			view, err := s.service.GetPostView(r.Context(), id)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
		if r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "export" {
			s.handleExport(w, r, id)
			return
		}
	}

	// /api/tokens/{provider}
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "tokens" {
		provider := parts[2]
		if r.Method == http.MethodGet {
			status, err := s.service.TokenStatus(r.Context(), provider)
			if err != nil {
				st, code, message, details := mapError(err)
				writeError(w, st, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, status)
			return
		}
		if r.Method == http.MethodPost {
			s.handleSaveToken(w, r, provider)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	opts := notion.FindOptions{
		Tag:    strings.TrimSpace(r.URL.Query().Get("tag")),
		Series: strings.TrimSpace(r.URL.Query().Get("series")),
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", map[string]string{"limit": raw})
			return
		}
		opts.Limit = parsed
	}
	if strings.TrimSpace(r.URL.Query().Get("sort")) == "asc" {
		opts.SortAscending = true
	}

	page, err := s.service.ListPosts(r.Context(), opts)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text: strings.TrimSpace(r.URL.Query().Get("q")),
		Tag:  strings.TrimSpace(r.URL.Query().Get("tag")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", map[string]string{"limit": raw})
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", map[string]string{"offset": raw})
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.Search(q))
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.service.ExportPost(r.Context(), id)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleStatusHook(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get("X-Prism-Hook-Token"))
	if s.hookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.hookToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	var body struct {
		PostID string `json:"postId"`
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.PostID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "postId is required", nil)
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status is required", nil)
		return
	}

	if err := s.service.HandleStatusChange(r.Context(), body.PostID, notion.Status(body.Status)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSaveToken(w http.ResponseWriter, r *http.Request, provider string) {
	token := strings.TrimSpace(r.Header.Get("X-Prism-Hook-Token"))
	if s.hookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.hookToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	var body struct {
		AccessToken  string    `json:"accessToken"`
		RefreshToken string    `json:"refreshToken"`
		IssuedAt     time.Time `json:"issuedAt"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "accessToken is required", nil)
		return
	}

	err := s.service.SaveToken(r.Context(), provider, cache.Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		IssuedAt:     body.IssuedAt,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Prism-Hook-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, notion.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
