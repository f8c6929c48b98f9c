package config

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser parses CUE configuration sources and overlays them onto a
// Config.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
	}
}

// ParseInto overlays the given CUE sources onto the config in order. Each
// source only replaces the fields it sets; everything else keeps its current
// value, so later sources win field by field.
func (cp *CUEParser) ParseInto(cfg *Config, sources []string) error {
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var errs []ValidationError
		if info.IsDir() {
			val, _, errs = cp.loadDirectory(source)
		} else {
			val, errs = cp.loadFile(source)
		}
		if len(errs) > 0 {
			return fmt.Errorf("failed to parse %s: %s", source, errs[0].Message)
		}
		if err := val.Validate(cue.Concrete(true)); err != nil {
			return fmt.Errorf("failed to merge configuration: %w", err)
		}
		if err := val.Decode(cfg); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
	}
	return nil
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}

	return val, nil
}

// convertCUEErrors converts CUE errors to a ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError
	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}
	return validationErrors
}

// ValidateWithSchema validates data against a named built-in schema.
func (cp *CUEParser) ValidateWithSchema(data interface{}, schemaName string) error {
	return cp.schemaRegistry.ValidateAgainstSchema(schemaName, data)
}

// GetSchemaRegistry returns the schema registry.
func (cp *CUEParser) GetSchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// ExportJSON exports a CUE value to JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return json.MarshalIndent(data, "", "  ")
}
