package platform

import (
	"context"
	"net/http"
)

// GetBlueprint fetches a blueprint by identifier. A 404 surfaces as an
// *APIError recognizable via IsNotFound.
func (c *Client) GetBlueprint(ctx context.Context, identifier string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/blueprints/"+identifier, nil, &doc, "blueprint", "get"); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateBlueprint creates a blueprint from an opaque schema document.
// The document is sent verbatim; the engine never inspects its contents
// beyond the identifier.
func (c *Client) CreateBlueprint(ctx context.Context, doc map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, "/blueprints", doc, nil, "blueprint", "create")
}
