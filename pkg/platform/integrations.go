package platform

import (
	"context"
	"net/http"
)

// IntegrationCreateRequest is the body for creating an integration resource
// with its desired configuration attached.
type IntegrationCreateRequest struct {
	InstallationID      string                 `json:"installationId"`
	InstallationAppType string                 `json:"installationAppType"`
	Version             string                 `json:"version"`
	ChangelogDestination map[string]interface{} `json:"changelogDestination"`
	Config              map[string]interface{} `json:"config"`
}

// NewIntegrationCreateRequest builds a creation body with an empty changelog
// destination, matching what the platform expects for webhook-fed
// integrations.
func NewIntegrationCreateRequest(id, appType, version string, config map[string]interface{}) IntegrationCreateRequest {
	return IntegrationCreateRequest{
		InstallationID:       id,
		InstallationAppType:  appType,
		Version:              version,
		ChangelogDestination: map[string]interface{}{},
		Config:               config,
	}
}

// GetIntegration fetches an integration by identifier. The document may be
// flat or wrapped under an "integration" key depending on platform version;
// use UnwrapIntegration before reading fields.
func (c *Client) GetIntegration(ctx context.Context, identifier string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/integration/"+identifier, nil, &doc, "integration", "get"); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateIntegration creates an integration resource.
func (c *Client) CreateIntegration(ctx context.Context, req IntegrationCreateRequest) error {
	return c.do(ctx, http.MethodPost, "/integration", req, nil, "integration", "create")
}

// UpdateIntegration replaces an integration document wholesale via PATCH.
// The caller is responsible for stripping server-managed fields first.
func (c *Client) UpdateIntegration(ctx context.Context, identifier string, doc map[string]interface{}) error {
	return c.do(ctx, http.MethodPatch, "/integration/"+identifier, doc, nil, "integration", "update")
}

// UpdateIntegrationConfig patches only the configuration subresource of an
// integration, leaving the rest of the document untouched.
func (c *Client) UpdateIntegrationConfig(ctx context.Context, identifier string, config map[string]interface{}) error {
	return c.do(ctx, http.MethodPatch, "/integration/"+identifier+"/config", config, nil, "integration", "update_config")
}

// DeleteIntegration deletes an integration resource.
func (c *Client) DeleteIntegration(ctx context.Context, identifier string) error {
	return c.do(ctx, http.MethodDelete, "/integration/"+identifier, nil, nil, "integration", "delete")
}

// UnwrapIntegration returns the integration payload from a fetched document,
// unwrapping the "integration" envelope some platform versions add. The
// original document is returned when no envelope is present.
func UnwrapIntegration(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	if inner, ok := doc["integration"].(map[string]interface{}); ok {
		return inner
	}
	return doc
}
