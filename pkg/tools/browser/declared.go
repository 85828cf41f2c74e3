package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/webpreview/pkg/tools"
)

// declared returns a catalog entry whose Execute fails with
// ErrNotAvailable. The schema is still published so agents see the full
// surface.
func declared(name, description string, properties map[string]interface{}, required []string) tools.Tool {
	return &tool{
		name:        name,
		description: description + " (not available in this server)",
		schema:      tools.BaseToolSchema(properties, required),
		exec: func(context.Context, json.RawMessage) (string, map[string]interface{}, error) {
			return "", nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
		},
	}
}

func declaredTools() []tools.Tool {
	point := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"x": prop("number", "X coordinate"),
			"y": prop("number", "Y coordinate"),
		},
		"description": "Point on page to generate selector for",
	}

	return []tools.Tool{
		declared("capture_video", "Start or stop video recording of browser session", map[string]interface{}{
			"action": enumProp("Start or stop recording", "", "start", "stop"),
			"name":   prop("string", "Name for the video file (required for start)"),
			"fps":    propDefault("number", "Frames per second for recording", 30),
		}, []string{"action"}),
		declared("automate_record", "Start/stop recording user actions for playback", map[string]interface{}{
			"action":       enumProp("Recording action", "", "start", "stop", "pause", "resume"),
			"name":         prop("string", "Name for the recording (required for start)"),
			"generateCode": propDefault("boolean", "Generate code from recording", true),
			"language":     enumProp("Language for generated code", "typescript", "javascript", "typescript", "python", "java"),
		}, []string{"action"}),
		declared("generate_selectors", "Generate robust selectors for elements", map[string]interface{}{
			"point":    point,
			"strategy": enumProp("Selector generation strategy", "optimal", "optimal", "id", "css", "xpath", "text"),
			"fallback": propDefault("boolean", "Generate fallback selectors", true),
		}, []string{"point"}),
		declared("generate_test_data", "Generate test data for forms and inputs", map[string]interface{}{
			"formSelector": prop("string", "CSS selector of the form to analyze"),
			"locale":       propDefault("string", "Locale for generated data", "en-US"),
			"realistic":    propDefault("boolean", "Generate realistic data vs random", true),
		}, nil),
		declared("generate_page_object", "Generate page object model code", map[string]interface{}{
			"name":           prop("string", "Name for the page object class"),
			"language":       enumProp("Programming language", "typescript", "typescript", "javascript", "python", "java"),
			"framework":      enumProp("Testing framework", "playwright", "playwright", "selenium", "cypress", "puppeteer"),
			"includeActions": propDefault("boolean", "Include common action methods", true),
		}, []string{"name"}),
		declared("generate_api_calls", "Generate API calls from network traffic", map[string]interface{}{
			"filter": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url":    prop("string", "URL pattern to filter"),
					"method": prop("string", "HTTP method to filter"),
				},
				"description": "Filter for API calls",
			},
			"language":    enumProp("Output format", "javascript", "curl", "javascript", "python", "postman"),
			"includeAuth": propDefault("boolean", "Include authentication headers", false),
		}, nil),
		declared("generate_documentation", "Generate documentation from page analysis", map[string]interface{}{
			"type":               enumProp("Type of documentation to generate", "user-guide", "user-guide", "api-docs", "test-plan", "accessibility"),
			"format":             enumProp("Output format", "markdown", "markdown", "html", "pdf"),
			"includeScreenshots": propDefault("boolean", "Include screenshots in documentation", true),
		}, []string{"type"}),
	}
}
