// Package tool provides the executable tool contract and reference
// implementations used by tool executors in a workflow.
package tool

import "context"

// Tool is an executable capability a workflow can invoke: an API call,
// a calculation, a lookup.
//
// Implementations should validate input parameters, respect context
// cancellation, and return descriptive errors for invalid inputs.
//
// Example implementation:
//
//	type WeatherTool struct{}
//
//	func (w *WeatherTool) Name() string        { return "get_weather" }
//	func (w *WeatherTool) Description() string { return "Current weather for a location" }
//
//	func (w *WeatherTool) Invoke(ctx context.Context, input map[string]any) (any, error) {
//	    location, ok := input["location"].(string)
//	    if !ok {
//	        return nil, errors.New("location parameter required")
//	    }
//	    return map[string]any{"location": location, "temperature": 72.5}, nil
//	}
type Tool interface {
	// Name returns the unique identifier for this tool, lowercase with
	// underscores: "search_web", "get_weather".
	Name() string

	// Description explains what the tool does, for registries and for
	// LLMs deciding when to call it.
	Description() string

	// Invoke executes the tool. input may be nil for parameterless
	// tools; the result can be any structured value.
	Invoke(ctx context.Context, input map[string]any) (any, error)
}
