package extension

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// toolNamePattern: lowercase start, then lowercase letters, digits,
// hyphens or underscores.
var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidationReport collects every invariant violation found in one
// validation pass.
type ValidationReport struct {
	Valid  bool
	Errors []string
}

// ValidateTool checks a tool definition against the contract: name
// pattern, non-empty description, compilable input schema, and a
// non-nil execute function. All violations are reported together
// rather than failing fast, and the check never panics; an unexpected
// panic while inspecting the tool is reported as a single synthetic
// validation error.
func ValidateTool(t Tool) (report ValidationReport) {
	defer func() {
		if p := recover(); p != nil {
			report = ValidationReport{
				Valid:  false,
				Errors: []string{fmt.Sprintf("validation panic: %v", p)},
			}
		}
	}()

	var errs []string

	if !toolNamePattern.MatchString(t.Name) {
		errs = append(errs, fmt.Sprintf("invalid tool name %q: must match %s", t.Name, toolNamePattern.String()))
	}
	if strings.TrimSpace(t.Description) == "" {
		errs = append(errs, "tool description must not be empty")
	}
	if len(t.InputSchema) == 0 {
		errs = append(errs, "tool input schema is required")
	} else if _, err := CompileSchema(t.InputSchema); err != nil {
		errs = append(errs, fmt.Sprintf("tool input schema does not compile: %v", err))
	}
	if t.Execute == nil {
		errs = append(errs, "tool execute function is required")
	}

	return ValidationReport{Valid: len(errs) == 0, Errors: errs}
}

var schemaCache sync.Map

// CompileSchema compiles a JSON Schema document, caching the compiled
// form by its exact byte content.
func CompileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ParseInput validates raw caller input against the tool's schema and
// decodes it into a map for Execute.
func ParseInput(t Tool, raw json.RawMessage) (map[string]any, error) {
	schema, err := CompileSchema(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}

	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode input for %s: %w", t.Name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("input for %s invalid: %w", t.Name, err)
	}

	input, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input for %s must be a JSON object", t.Name)
	}
	return input, nil
}
