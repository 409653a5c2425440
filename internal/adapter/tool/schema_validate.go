package tool

import (
	"bytes"
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"teamforge/internal/domain"
)

// SchemaValidatingTool wraps a Tool so that Validate also checks the
// parameter bag against the tool's compiled JSON Schema. The tool's own
// Validate runs afterwards for checks a schema cannot express.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool with schema-backed parameter
// validation. Tools without a parameter schema are returned unchanged.
// Returns error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *SchemaValidatingTool) Validate(params map[string]any) []string {
	// jsonschema validates any JSON-shaped value; the parameter bag is
	// already decoded, so normalize to interface{} via the map directly.
	var issues []string
	if err := s.schema.Validate(normalize(params)); err != nil {
		issues = append(issues, fmt.Sprintf("schema validation failed: %v", err))
	}
	return append(issues, s.inner.Validate(params)...)
}

func (s *SchemaValidatingTool) Execute(ctx context.Context, params map[string]any, ec domain.ExecContext) (any, error) {
	return s.inner.Execute(ctx, params, ec)
}

// normalize converts the parameter bag into the plain map/slice/number
// shapes the schema validator expects. Integers become float64 the way
// encoding/json would decode them.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
