package deploy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Domain is one domain attached to a hosting project.
type Domain struct {
	Name      string `json:"name"`
	ApexName  string `json:"apexName"`
	ProjectID string `json:"projectId"`
	Verified  bool   `json:"verified"`
	CreatedAt int64  `json:"createdAt"`
}

// AddDomain attaches a domain to the project.
func (c *Client) AddDomain(ctx context.Context, projectID, domain string) (Domain, error) {
	payload := map[string]string{"name": domain}
	var added Domain
	path := fmt.Sprintf("/v10/projects/%s/domains", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodPost, path, payload, &added); err != nil {
		return Domain{}, fmt.Errorf("add domain %s: %w", domain, err)
	}
	return added, nil
}

// ListDomains lists the domains attached to the project.
func (c *Client) ListDomains(ctx context.Context, projectID string) ([]Domain, error) {
	var resp struct {
		Domains []Domain `json:"domains"`
	}
	path := fmt.Sprintf("/v9/projects/%s/domains", url.PathEscape(projectID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list domains for %s: %w", projectID, err)
	}
	return resp.Domains, nil
}

// RemoveDomain detaches a domain from the project.
func (c *Client) RemoveDomain(ctx context.Context, projectID, domain string) error {
	path := fmt.Sprintf("/v9/projects/%s/domains/%s", url.PathEscape(projectID), url.PathEscape(domain))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove domain %s: %w", domain, err)
	}
	return nil
}

// ValidDomainLabel reports whether name is usable as a subdomain label:
// lowercase letters, digits and inner hyphens, at most 63 characters.
func ValidDomainLabel(name string) bool {
	if len(name) < 1 || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-':
			if i == 0 || i == len(name)-1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
