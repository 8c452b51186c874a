package reconcile

import (
	"context"
	"net/http"

	"github.com/portside/portside/pkg/platform"
)

// notFoundErr builds the 404 control signal the way the real client
// surfaces it.
func notFoundErr(method, path string) error {
	return &platform.APIError{StatusCode: http.StatusNotFound, Method: method, Path: path}
}

// fakePlatform is an in-memory PlatformAPI for reconciliation tests.
// It serves documents from its maps, journals every call in order, and
// fails wherever a scripted error is installed. The drop knobs record
// integration writes without applying them, which is how a platform
// that silently discards configuration looks to the reconciler.
type fakePlatform struct {
	authErr   error
	authCalls int

	blueprints         map[string]map[string]interface{}
	blueprintGets      []string
	blueprintGetErr    error
	blueprintCreates   []string
	blueprintCreateErr map[string]error

	webhooks         map[string]map[string]interface{}
	webhookGets      []string
	webhookCreates   []platform.WebhookCreateRequest
	webhookCreateDoc map[string]interface{}
	webhookCreateErr error
	mappingTargets   []string
	mappingErr       error

	integrations map[string]map[string]interface{}

	// integrationGetErr fails every GetIntegration whose 1-based call
	// number is at least integrationGetErrFrom; zero fails them all.
	integrationGets       []string
	integrationGetErr     error
	integrationGetErrFrom int

	creates           []platform.IntegrationCreateRequest
	createErr         error
	updates           []map[string]interface{}
	updateErr         error
	configPatches     []map[string]interface{}
	configPatchErr    error
	deletes           []string
	deleteErr         error
	dropUpdates       bool
	dropConfigPatches bool

	// calls journals every remote call in order, named after the
	// operation tags the real client uses.
	calls []string
}

var _ PlatformAPI = (*fakePlatform)(nil)

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		blueprints:   make(map[string]map[string]interface{}),
		webhooks:     make(map[string]map[string]interface{}),
		integrations: make(map[string]map[string]interface{}),
	}
}

func (f *fakePlatform) Authenticate(ctx context.Context, clientID, clientSecret string) error {
	f.calls = append(f.calls, "auth.token")
	f.authCalls++
	return f.authErr
}

func (f *fakePlatform) GetBlueprint(ctx context.Context, identifier string) (map[string]interface{}, error) {
	f.calls = append(f.calls, "blueprint.get")
	f.blueprintGets = append(f.blueprintGets, identifier)
	if f.blueprintGetErr != nil {
		return nil, f.blueprintGetErr
	}
	if doc, ok := f.blueprints[identifier]; ok {
		return doc, nil
	}
	return nil, notFoundErr(http.MethodGet, "/blueprints/"+identifier)
}

func (f *fakePlatform) CreateBlueprint(ctx context.Context, doc map[string]interface{}) error {
	f.calls = append(f.calls, "blueprint.create")
	identifier, _ := doc["identifier"].(string)
	f.blueprintCreates = append(f.blueprintCreates, identifier)
	if err := f.blueprintCreateErr[identifier]; err != nil {
		return err
	}
	f.blueprints[identifier] = doc
	return nil
}

func (f *fakePlatform) GetWebhook(ctx context.Context, identifier string) (map[string]interface{}, error) {
	f.calls = append(f.calls, "webhook.get")
	f.webhookGets = append(f.webhookGets, identifier)
	if doc, ok := f.webhooks[identifier]; ok {
		return doc, nil
	}
	return nil, notFoundErr(http.MethodGet, "/webhooks/"+identifier)
}

func (f *fakePlatform) CreateWebhook(ctx context.Context, req platform.WebhookCreateRequest) (map[string]interface{}, error) {
	f.calls = append(f.calls, "webhook.create")
	f.webhookCreates = append(f.webhookCreates, req)
	if f.webhookCreateErr != nil {
		return nil, f.webhookCreateErr
	}
	doc := f.webhookCreateDoc
	if doc == nil {
		doc = map[string]interface{}{"webhookKey": "a1b2c3d4e5"}
	}
	f.webhooks[req.Identifier] = doc
	return doc, nil
}

func (f *fakePlatform) ApplyWebhookMappings(ctx context.Context, identifier string, mappings map[string]interface{}) error {
	f.calls = append(f.calls, "webhook.apply_mappings")
	f.mappingTargets = append(f.mappingTargets, identifier)
	return f.mappingErr
}

func (f *fakePlatform) GetIntegration(ctx context.Context, identifier string) (map[string]interface{}, error) {
	f.calls = append(f.calls, "integration.get")
	f.integrationGets = append(f.integrationGets, identifier)
	if f.integrationGetErr != nil && len(f.integrationGets) >= f.integrationGetErrFrom {
		return nil, f.integrationGetErr
	}
	if doc, ok := f.integrations[identifier]; ok {
		return doc, nil
	}
	return nil, notFoundErr(http.MethodGet, "/integration/"+identifier)
}

func (f *fakePlatform) CreateIntegration(ctx context.Context, req platform.IntegrationCreateRequest) error {
	f.calls = append(f.calls, "integration.create")
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return f.createErr
	}
	f.integrations[req.InstallationID] = map[string]interface{}{
		"installationId":      req.InstallationID,
		"installationAppType": req.InstallationAppType,
		"version":             req.Version,
		"config":              req.Config,
	}
	return nil
}

func (f *fakePlatform) UpdateIntegration(ctx context.Context, identifier string, doc map[string]interface{}) error {
	f.calls = append(f.calls, "integration.update")
	f.updates = append(f.updates, doc)
	if f.updateErr != nil {
		return f.updateErr
	}
	if !f.dropUpdates {
		f.integrations[identifier] = doc
	}
	return nil
}

func (f *fakePlatform) UpdateIntegrationConfig(ctx context.Context, identifier string, config map[string]interface{}) error {
	f.calls = append(f.calls, "integration.patch_config")
	f.configPatches = append(f.configPatches, config)
	if f.configPatchErr != nil {
		return f.configPatchErr
	}
	if !f.dropConfigPatches {
		if doc, ok := f.integrations[identifier]; ok {
			platform.UnwrapIntegration(doc)["config"] = config
		}
	}
	return nil
}

func (f *fakePlatform) DeleteIntegration(ctx context.Context, identifier string) error {
	f.calls = append(f.calls, "integration.delete")
	f.deletes = append(f.deletes, identifier)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.integrations, identifier)
	return nil
}
