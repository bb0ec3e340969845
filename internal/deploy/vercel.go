// Package deploy drives the hosting provider: project setup, environment
// variables, and git-sourced deployments, plus a local journal of what was
// deployed when.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultAPIBase = "https://api.vercel.com"

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vercel: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client is a minimal Vercel API client. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	teamID     string
}

// NewClient builds a client for the given access token. teamID may be empty
// for personal accounts.
func NewClient(token, teamID string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultAPIBase,
		token:      token,
		teamID:     teamID,
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

	endpoint := c.baseURL + path
	if c.teamID != "" {
		sep := "?"
		if u, err := url.Parse(path); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		endpoint += sep + "teamId=" + url.QueryEscape(c.teamID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
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
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Code = "unexpected_status"
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Project is a hosting project.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework"`
}

// GitRepository links a project to its source repo.
type GitRepository struct {
	Type string `json:"type"`
	Repo string `json:"repo"`
}

// CreateProject creates a project bound to a git repository.
func (c *Client) CreateProject(ctx context.Context, name, framework string, repo *GitRepository) (Project, error) {
	payload := map[string]any{
		"name":      name,
		"framework": framework,
	}
	if repo != nil {
		payload["gitRepository"] = repo
	}
	var project Project
	if err := c.do(ctx, http.MethodPost, "/v9/projects", payload, &project); err != nil {
		return Project{}, fmt.Errorf("create project %s: %w", name, err)
	}
	return project, nil
}

// GetProject fetches a project by id or name.
func (c *Client) GetProject(ctx context.Context, idOrName string) (Project, error) {
	var project Project
	if err := c.do(ctx, http.MethodGet, "/v9/projects/"+url.PathEscape(idOrName), nil, &project); err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", idOrName, err)
	}
	return project, nil
}

// EnvVariable is one project environment variable.
type EnvVariable struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Target []string `json:"target"`
	Type   string   `json:"type"`
}

// UpsertEnv creates or replaces project environment variables. Secrets
// should use type "encrypted".
func (c *Client) UpsertEnv(ctx context.Context, projectID string, vars []EnvVariable) error {
	if len(vars) == 0 {
		return nil
	}
	path := fmt.Sprintf("/v10/projects/%s/env?upsert=true", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodPost, path, vars, nil); err != nil {
		return fmt.Errorf("upsert env for %s: %w", projectID, err)
	}
	return nil
}

// Deployment is one deployment of a project.
type Deployment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
}

// Ready reports whether the deployment finished building.
func (d Deployment) Ready() bool {
	return d.ReadyState == "READY"
}

// Failed reports whether the deployment ended in a terminal failure.
func (d Deployment) Failed() bool {
	return d.ReadyState == "ERROR" || d.ReadyState == "CANCELED"
}

// CreateDeployment triggers a deployment from the linked git branch.
func (c *Client) CreateDeployment(ctx context.Context, projectName, repoID, ref string, production bool) (Deployment, error) {
	target := "preview"
	if production {
		target = "production"
	}
	payload := map[string]any{
		"name":   projectName,
		"target": target,
		"gitSource": map[string]any{
			"type":   "github",
			"repoId": repoID,
			"ref":    ref,
		},
	}
	var deployment Deployment
	if err := c.do(ctx, http.MethodPost, "/v13/deployments", payload, &deployment); err != nil {
		return Deployment{}, fmt.Errorf("create deployment for %s: %w", projectName, err)
	}
	return deployment, nil
}

// GetDeployment fetches the current state of a deployment.
func (c *Client) GetDeployment(ctx context.Context, id string) (Deployment, error) {
	var deployment Deployment
	if err := c.do(ctx, http.MethodGet, "/v13/deployments/"+url.PathEscape(id), nil, &deployment); err != nil {
		return Deployment{}, fmt.Errorf("get deployment %s: %w", id, err)
	}
	return deployment, nil
}

// WaitForDeployment polls until the deployment reaches a terminal state or
// the context expires.
func (c *Client) WaitForDeployment(ctx context.Context, id string, interval time.Duration) (Deployment, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		deployment, err := c.GetDeployment(ctx, id)
		if err != nil {
			return Deployment{}, err
		}
		if deployment.Ready() {
			return deployment, nil
		}
		if deployment.Failed() {
			return deployment, fmt.Errorf("deployment %s ended in state %s", id, deployment.ReadyState)
		}

		select {
		case <-ctx.Done():
			return deployment, ctx.Err()
		case <-ticker.C:
		}
	}
}
