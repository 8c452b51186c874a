package platform

import (
	"context"
	"net/http"
)

// WebhookSecurity is the signature-verification block of a webhook resource.
// New webhooks are created with everything blank except the algorithm, which
// the platform requires.
type WebhookSecurity struct {
	Secret                string `json:"secret"`
	SignatureHeaderName   string `json:"signatureHeaderName"`
	SignatureAlgorithm    string `json:"signatureAlgorithm"`
	SignaturePrefix       string `json:"signaturePrefix"`
	RequestIdentifierPath string `json:"requestIdentifierPath"`
}

// WebhookCreateRequest is the body for creating a webhook resource.
type WebhookCreateRequest struct {
	Identifier string                   `json:"identifier"`
	Title      string                   `json:"title"`
	Enabled    bool                     `json:"enabled"`
	Security   WebhookSecurity          `json:"security"`
	Mappings   []map[string]interface{} `json:"mappings"`
}

// NewWebhookCreateRequest builds the creation body used by the resolver:
// enabled, sha256 signature algorithm, no security material, no mappings.
func NewWebhookCreateRequest(identifier, title string) WebhookCreateRequest {
	return WebhookCreateRequest{
		Identifier: identifier,
		Title:      title,
		Enabled:    true,
		Security: WebhookSecurity{
			SignatureAlgorithm: "sha256",
		},
		Mappings: []map[string]interface{}{},
	}
}

// GetWebhook fetches a webhook by identifier. The response shape varies
// across platform versions, so it is returned as a generic document for the
// extraction rules to probe.
func (c *Client) GetWebhook(ctx context.Context, identifier string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/webhooks/"+identifier, nil, &doc, "webhook", "get"); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateWebhook creates a webhook and returns the creation response document.
func (c *Client) CreateWebhook(ctx context.Context, req WebhookCreateRequest) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.do(ctx, http.MethodPost, "/webhooks", req, &doc, "webhook", "create"); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyWebhookMappings attaches an event-mapping document to an existing
// webhook. The document is sent verbatim as the mapping subresource body.
func (c *Client) ApplyWebhookMappings(ctx context.Context, identifier string, mappings map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/webhooks/"+identifier+"/mapping", mappings, nil, "webhook", "apply_mappings")
}
