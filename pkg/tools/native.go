package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Native is a tool compiled into the gateway.
type Native interface {
	// Name is the function name advertised to the model.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Parameters is the JSON Schema of the arguments object.
	Parameters() map[string]any

	// Invoke runs the tool. The result string becomes the observation fed
	// back to the model.
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Func adapts a plain function into a Native.
type Func struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Fn              func(ctx context.Context, args map[string]any) (string, error)
}

func (f *Func) Name() string               { return f.ToolName }
func (f *Func) Description() string        { return f.ToolDescription }
func (f *Func) Parameters() map[string]any { return f.ToolParameters }

func (f *Func) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

// Builtins returns the natives every deployment ships with.
func Builtins() []Native {
	return []Native{clockTool(), uuidTool()}
}

// clockTool reports the current time. Models are trained on frozen data;
// this is the cheapest way to anchor them in the present.
func clockTool() Native {
	return &Func{
		ToolName:        "get_current_time",
		ToolDescription: "Get the current date and time, optionally in a named IANA timezone.",
		ToolParameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name, e.g. Europe/Oslo. Defaults to UTC.",
				},
			},
		},
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			loc := time.UTC
			if name, ok := args["timezone"].(string); ok && name != "" {
				parsed, err := time.LoadLocation(name)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", name)
				}
				loc = parsed
			}
			return time.Now().In(loc).Format(time.RFC1123), nil
		},
	}
}

// uuidTool mints identifiers, which models otherwise hallucinate in
// near-collisions.
func uuidTool() Native {
	return &Func{
		ToolName:        "generate_uuid",
		ToolDescription: "Generate a random UUID (version 4).",
		ToolParameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Fn: func(context.Context, map[string]any) (string, error) {
			return uuid.NewString(), nil
		},
	}
}
