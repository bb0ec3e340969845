// Package notion talks to the Notion REST API: block children listing,
// data source queries, page reads and the two narrow writes (status select
// and the append-only systemLog property). It also reconstructs full block
// trees from the paginated children endpoint.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Sharknia/tuum-prism/internal/block"
)

const apiVersion = "2022-06-28"

// APIError is a non-2xx response from the API, decoded from its error body.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is the API telling us the object does not
// exist or the id failed validation (the API uses both for missing pages).
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && (apiErr.Code == "object_not_found" || apiErr.Code == "validation_error")
}

// Client is a minimal Notion API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds a client for the given API base URL and integration
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_status"
			apiErr.Message = string(data)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ChildrenPage is one page of a block's direct children, in document order.
// Blocks carry HasChildren flags but no hydrated Children yet.
type ChildrenPage struct {
	Blocks     []block.Block
	NextCursor string
	HasMore    bool
}

type listChildrenResponse struct {
	Results    []json.RawMessage `json:"results"`
	NextCursor string            `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// ListChildren fetches one page of direct children of the given block. An
// empty cursor requests the first page.
func (c *Client) ListChildren(ctx context.Context, blockID, cursor string) (ChildrenPage, error) {
	path := "/v1/blocks/" + blockID + "/children?page_size=100"
	if cursor != "" {
		path += "&start_cursor=" + url.QueryEscape(cursor)
	}

	var resp listChildrenResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return ChildrenPage{}, err
	}

	page := ChildrenPage{NextCursor: resp.NextCursor, HasMore: resp.HasMore}
	for _, raw := range resp.Results {
		rb, err := decodeRawBlock(raw)
		if err != nil {
			return ChildrenPage{}, fmt.Errorf("decode child of %s: %w", blockID, err)
		}
		page.Blocks = append(page.Blocks, rb)
	}
	return page, nil
}

type dataSourceQuery struct {
	Filter      any         `json:"filter,omitempty"`
	Sorts       []querySort `json:"sorts,omitempty"`
	PageSize    int         `json:"page_size,omitempty"`
	StartCursor string      `json:"start_cursor,omitempty"`
}

type querySort struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

type queryResponse struct {
	Results    []json.RawMessage `json:"results"`
	NextCursor string            `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

func (c *Client) queryDataSource(ctx context.Context, dataSourceID string, q dataSourceQuery) (queryResponse, error) {
	var resp queryResponse
	err := c.do(ctx, http.MethodPost, "/v1/data_sources/"+dataSourceID+"/query", q, &resp)
	return resp, err
}

type databaseResponse struct {
	DataSources []struct {
		ID string `json:"id"`
	} `json:"data_sources"`
}

// retrieveDataSourceID resolves the first data source of a database.
func (c *Client) retrieveDataSourceID(ctx context.Context, databaseID string) (string, error) {
	var resp databaseResponse
	if err := c.do(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.DataSources) == 0 {
		return "", fmt.Errorf("database %s has no data sources", databaseID)
	}
	return resp.DataSources[0].ID, nil
}

func (c *Client) retrievePage(ctx context.Context, pageID string) (rawPage, error) {
	var page rawPage
	err := c.do(ctx, http.MethodGet, "/v1/pages/"+pageID, nil, &page)
	return page, err
}

func (c *Client) updatePage(ctx context.Context, pageID string, properties map[string]any) error {
	body := map[string]any{"properties": properties}
	return c.do(ctx, http.MethodPatch, "/v1/pages/"+pageID, body, nil)
}
