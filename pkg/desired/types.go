// Package desired loads and validates the local desired state: the
// blueprint documents, the integration's mapping configuration, and
// optional webhook event mappings. The mapping configuration is kept
// in two forms: the full document that gets written remotely verbatim,
// and a typed view used by the diff engine and the policy gate.
package desired

import (
	"time"
)

// State is everything the local resources directory declares. It is
// read once per run; watchers reload a fresh State rather than
// mutating an existing one.
type State struct {
	// Blueprints are the opaque blueprint documents from
	// blueprints.json, in file order.
	Blueprints []map[string]interface{} `json:"blueprints"`

	// AppConfig is the full mapping configuration document from
	// app-config.yml. Extra top-level keys are preserved; this exact
	// document is what gets written remotely.
	AppConfig map[string]interface{} `json:"app_config"`

	// Config is the typed view of AppConfig for diffing and policy.
	Config IntegrationConfig `json:"config"`

	// WebhookMappings are the optional event-mapping documents from
	// webhook-mappings.json, nil when the file is absent.
	WebhookMappings []map[string]interface{} `json:"webhook_mappings,omitempty"`

	// Dir is the resources directory the state was loaded from.
	Dir string `json:"dir"`

	// LoadedAt is when the state was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// IntegrationConfig is the typed view of a mapping configuration
// document, local or live. Only the fields the diff inspects are
// represented; everything else stays in the raw document.
type IntegrationConfig struct {
	// Resources are the resource mappings in document order. Kind is
	// the unique key; on duplicates the last one wins when indexing.
	Resources []ResourceMapping `json:"resources"`
}

// ResourceMapping is one kind's routing rule: which events match and
// how a matched event becomes an entity.
type ResourceMapping struct {
	// Kind is the resource kind, the unique key within a config.
	Kind string `json:"kind" validate:"required"`

	// Selector is the opaque match rule. The engine never evaluates
	// it and the diff never compares it.
	Selector map[string]interface{} `json:"selector,omitempty"`

	// Entity is the entity-mapping expression block.
	Entity EntityMappings `json:"entity"`
}

// EntityMappings is the expression block describing how a matched
// event becomes an entity. Field payloads are opaque expressions;
// they are usually strings but the platform also accepts structured
// forms, so they stay untyped.
type EntityMappings struct {
	Identifier interface{} `json:"identifier,omitempty"`

	Title interface{} `json:"title,omitempty"`

	Blueprint interface{} `json:"blueprint,omitempty"`

	// Properties maps property names to expressions.
	Properties map[string]interface{} `json:"properties,omitempty"`

	// Relations maps relation names to expressions.
	Relations map[string]interface{} `json:"relations,omitempty"`
}

// Kinds returns the mapping kinds in document order, duplicates
// included.
func (c IntegrationConfig) Kinds() []string {
	kinds := make([]string, 0, len(c.Resources))
	for _, r := range c.Resources {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

// ByKind indexes the resource mappings by kind. Later duplicates win,
// matching how the remote platform treats repeated kinds.
func (c IntegrationConfig) ByKind() map[string]ResourceMapping {
	idx := make(map[string]ResourceMapping, len(c.Resources))
	for _, r := range c.Resources {
		if r.Kind == "" {
			continue
		}
		idx[r.Kind] = r
	}
	return idx
}

// FromDocument extracts the typed view from a mapping configuration
// document. It never fails: missing or malformed sections decode to
// empty collections so diffing can always proceed.
func FromDocument(doc map[string]interface{}) IntegrationConfig {
	var cfg IntegrationConfig
	if doc == nil {
		return cfg
	}

	rawResources, ok := doc["resources"].([]interface{})
	if !ok {
		return cfg
	}

	for _, raw := range rawResources {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		cfg.Resources = append(cfg.Resources, mappingFromDocument(obj))
	}
	return cfg
}

func mappingFromDocument(obj map[string]interface{}) ResourceMapping {
	var rm ResourceMapping
	rm.Kind, _ = obj["kind"].(string)
	rm.Selector, _ = obj["selector"].(map[string]interface{})

	port, ok := obj["port"].(map[string]interface{})
	if !ok {
		return rm
	}
	entity, ok := port["entity"].(map[string]interface{})
	if !ok {
		return rm
	}
	mappings, ok := entity["mappings"].(map[string]interface{})
	if !ok {
		return rm
	}

	rm.Entity.Identifier = mappings["identifier"]
	rm.Entity.Title = mappings["title"]
	rm.Entity.Blueprint = mappings["blueprint"]
	rm.Entity.Properties, _ = mappings["properties"].(map[string]interface{})
	rm.Entity.Relations, _ = mappings["relations"].(map[string]interface{})
	return rm
}
