package desired

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// File names the loader expects inside the resources directory.
const (
	BlueprintsFile      = "blueprints.json"
	AppConfigFile       = "app-config.yml"
	WebhookMappingsFile = "webhook-mappings.json"
)

// DefaultResourcesDir is where desired state lives unless overridden.
const DefaultResourcesDir = "./resources"

// Loader reads and validates desired state from a resources directory.
type Loader struct {
	dir      string
	logger   zerolog.Logger
	validate *validator.Validate
	schemas  *SchemaRegistry
}

// NewLoader creates a loader for the given resources directory. An
// empty dir falls back to DefaultResourcesDir.
func NewLoader(dir string, logger zerolog.Logger) *Loader {
	if dir == "" {
		dir = DefaultResourcesDir
	}
	return &Loader{
		dir:      dir,
		logger:   logger.With().Str("component", "desired").Logger(),
		validate: validator.New(),
		schemas:  NewSchemaRegistry(),
	}
}

// Dir returns the resources directory the loader reads from.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads blueprints.json and app-config.yml (both required) plus
// webhook-mappings.json (optional), validates them, and returns the
// assembled state.
func (l *Loader) Load() (*State, error) {
	blueprints, err := l.LoadBlueprints()
	if err != nil {
		return nil, err
	}

	appConfig, config, err := l.LoadAppConfig()
	if err != nil {
		return nil, err
	}

	webhookMappings, err := l.LoadWebhookMappings()
	if err != nil {
		return nil, err
	}

	state := &State{
		Blueprints:      blueprints,
		AppConfig:       appConfig,
		Config:          config,
		WebhookMappings: webhookMappings,
		Dir:             l.dir,
		LoadedAt:        time.Now(),
	}

	l.logger.Info().
		Str("dir", l.dir).
		Int("blueprints", len(blueprints)).
		Int("resources", len(config.Resources)).
		Bool("webhook_mappings", webhookMappings != nil).
		Msg("Desired state loaded")

	return state, nil
}

// LoadBlueprints reads and decodes blueprints.json.
func (l *Loader) LoadBlueprints() ([]map[string]interface{}, error) {
	path := filepath.Join(l.dir, BlueprintsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var blueprints []map[string]interface{}
	if err := json.Unmarshal(data, &blueprints); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return blueprints, nil
}

// LoadAppConfig reads app-config.yml, validates it against the CUE
// schema and struct tags, and returns both the full document and its
// typed view.
func (l *Loader) LoadAppConfig() (map[string]interface{}, IntegrationConfig, error) {
	path := filepath.Join(l.dir, AppConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, IntegrationConfig{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, IntegrationConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		return nil, IntegrationConfig{}, fmt.Errorf("%s is empty", path)
	}

	if err := l.schemas.ValidateAppConfig(doc); err != nil {
		return nil, IntegrationConfig{}, fmt.Errorf("%s: %w", path, err)
	}

	config := FromDocument(doc)
	for i, rm := range config.Resources {
		if err := l.validate.Struct(rm); err != nil {
			return nil, IntegrationConfig{}, fmt.Errorf("%s: resource %d: %w", path, i, err)
		}
	}

	return doc, config, nil
}

// LoadWebhookMappings reads webhook-mappings.json when present. A
// missing file is not an error; a malformed one is.
func (l *Loader) LoadWebhookMappings() ([]map[string]interface{}, error) {
	path := filepath.Join(l.dir, WebhookMappingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var mappings []map[string]interface{}
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return mappings, nil
}
