package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas used to validate intake documents
// before they reach the planner.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	_ = sr.RegisterSchema("taskRequest", builtinTaskRequestSchema)
	_ = sr.RegisterSchema("routing", builtinRoutingSchema)
}

// RegisterSchema registers a CUE schema with the given name.
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

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	defPath := cue.ParsePath("#" + capitalize(schemaName))
	def := schema.LookupPath(defPath)
	if !def.Exists() {
		def = schema
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Built-in schema definitions

const builtinTaskRequestSchema = `
// Task request intake schema
#TaskRequest: {
	// Repository the task targets
	repo: string & =~"^[A-Za-z0-9_-]+$"

	// Short task title
	title: string & !=""

	// Full statement of what the task should achieve
	objective: string & !=""

	// Requesting principal
	requestedBy?: string

	// Request time in epoch milliseconds
	requestedAt?: int & >=0

	constraints?: {...}
	context?: {...}

	routing?: #Routing

	filesHint?: [...string]
}

#Routing: {
	agent?: "codex" | "claude"
	model?: string
	effort?: "low" | "medium" | "high"
}
`

const builtinRoutingSchema = `
#Routing: {
	agent?: "codex" | "claude"
	model?: string
	effort?: "low" | "medium" | "high"
}
`
