package desired

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas the loader validates local
// documents against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in
// schemas registered.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Compile errors in built-in schemas surface on first use.
	_ = sr.RegisterSchema("app-config", builtinAppConfigSchema)

	return sr
}

// RegisterSchema compiles and registers a CUE schema under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema by
// encoding it into CUE and unifying it with the schema's constraints.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ValidateAppConfig validates a mapping configuration document against
// the built-in app-config schema.
func (sr *SchemaRegistry) ValidateAppConfig(doc map[string]interface{}) error {
	return sr.ValidateAgainstSchema("app-config", doc)
}

// builtinAppConfigSchema constrains the shape of app-config.yml. The
// constraints live at the top level so unification applies them to the
// document; file-scope structs are open, and every definition is
// explicitly opened because the platform tolerates extra keys at all
// levels. Mapping expression payloads are untyped: the engine never
// evaluates them.
const builtinAppConfigSchema = `
resources?: [...#ResourceMapping]

#ResourceMapping: {
	// kind is the unique key of a mapping within the config
	kind: string & !=""

	// selector is an opaque match rule
	selector?: {...}

	port?: {
		entity?: {
			mappings?: #EntityMappings
			...
		}
		...
	}
	...
}

#EntityMappings: {
	identifier?: _
	title?:      _
	blueprint?:  _
	properties?: {[string]: _}
	relations?:  {[string]: _}
	...
}
`
