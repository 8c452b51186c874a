package reconcile

import (
	"context"

	"github.com/portside/portside/pkg/platform"
)

// TokenExchanger exchanges client credentials for a bearer token and
// installs it for subsequent calls.
type TokenExchanger interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) error
}

// BlueprintAPI is the remote surface used by the blueprint pass.
type BlueprintAPI interface {
	// GetBlueprint fetches a blueprint by identifier. Absence surfaces
	// as an error recognizable via platform.IsNotFound.
	GetBlueprint(ctx context.Context, identifier string) (map[string]interface{}, error)

	// CreateBlueprint creates a blueprint from an opaque document.
	CreateBlueprint(ctx context.Context, doc map[string]interface{}) error
}

// WebhookAPI is the remote surface used by the webhook resolver.
type WebhookAPI interface {
	// GetWebhook fetches a webhook document by identifier.
	GetWebhook(ctx context.Context, identifier string) (map[string]interface{}, error)

	// CreateWebhook creates a webhook and returns the response document.
	CreateWebhook(ctx context.Context, req platform.WebhookCreateRequest) (map[string]interface{}, error)

	// ApplyWebhookMappings attaches an event-mapping document to an
	// existing webhook.
	ApplyWebhookMappings(ctx context.Context, identifier string, mappings map[string]interface{}) error
}

// IntegrationAPI is the remote surface used by the integration
// reconciler.
type IntegrationAPI interface {
	// GetIntegration fetches an integration document by identifier.
	// The document may be wrapped in an "integration" envelope.
	GetIntegration(ctx context.Context, identifier string) (map[string]interface{}, error)

	// CreateIntegration creates an integration with its configuration.
	CreateIntegration(ctx context.Context, req platform.IntegrationCreateRequest) error

	// UpdateIntegration replaces an integration document via PATCH.
	UpdateIntegration(ctx context.Context, identifier string, doc map[string]interface{}) error

	// UpdateIntegrationConfig patches only the configuration
	// subresource.
	UpdateIntegrationConfig(ctx context.Context, identifier string, config map[string]interface{}) error

	// DeleteIntegration deletes an integration.
	DeleteIntegration(ctx context.Context, identifier string) error
}

// PlatformAPI is the full remote surface a reconciliation run needs.
// *platform.Client satisfies it; tests substitute a fake.
type PlatformAPI interface {
	TokenExchanger
	BlueprintAPI
	WebhookAPI
	IntegrationAPI
}
