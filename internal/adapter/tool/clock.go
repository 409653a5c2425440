package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"teamforge/internal/domain"
)

// ClockTool reports the current time, optionally in a named IANA zone.
type ClockTool struct {
	now func() time.Time // for testing
}

func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string { return "current_time" }

func (t *ClockTool) Description() string {
	return "Returns the current date and time, optionally in a given IANA timezone."
}

func (t *ClockTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"timezone": {"type": "string", "description": "IANA zone name, e.g. Europe/Berlin. Defaults to UTC."}
			}
		}`),
	}
}

func (t *ClockTool) Validate(params map[string]any) []string {
	tz, ok := params["timezone"]
	if !ok {
		return nil
	}
	name, isString := tz.(string)
	if !isString {
		return []string{"timezone must be a string"}
	}
	if _, err := time.LoadLocation(name); err != nil {
		return []string{fmt.Sprintf("unknown timezone %q", name)}
	}
	return nil
}

func (t *ClockTool) Execute(_ context.Context, params map[string]any, _ domain.ExecContext) (any, error) {
	loc := time.UTC
	if name, ok := params["timezone"].(string); ok && name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
		loc = l
	}

	now := t.now().In(loc)
	return map[string]any{
		"iso":      now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
	}, nil
}
