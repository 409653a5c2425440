package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"teamforge/internal/domain"
)

// CalculatorTool evaluates a single arithmetic operation. Models are
// notoriously bad at arithmetic, so this stays deliberately exact and
// narrow: two operands, one operation.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Description() string {
	return "Performs exact arithmetic on two numbers: add, subtract, multiply, divide, power."
}

func (t *CalculatorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"operation": {"type": "string", "enum": ["add", "subtract", "multiply", "divide", "power"]},
				"a": {"type": "number"},
				"b": {"type": "number"}
			},
			"required": ["operation", "a", "b"]
		}`),
	}
}

func (t *CalculatorTool) Validate(params map[string]any) []string {
	var issues []string
	op, _ := params["operation"].(string)
	switch op {
	case "add", "subtract", "multiply", "divide", "power":
	case "":
		issues = append(issues, "operation is required")
	default:
		issues = append(issues, fmt.Sprintf("unknown operation %q", op))
	}
	if _, ok := toFloat(params["a"]); !ok {
		issues = append(issues, "a must be a number")
	}
	b, ok := toFloat(params["b"])
	if !ok {
		issues = append(issues, "b must be a number")
	} else if op == "divide" && b == 0 {
		issues = append(issues, "division by zero")
	}
	return issues
}

func (t *CalculatorTool) Execute(_ context.Context, params map[string]any, _ domain.ExecContext) (any, error) {
	op, _ := params["operation"].(string)
	a, _ := toFloat(params["a"])
	b, _ := toFloat(params["b"])

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		result = a / b
	case "power":
		result = math.Pow(a, b)
	}
	return map[string]any{"result": result}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
