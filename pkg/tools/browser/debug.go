package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/entrhq/webpreview/pkg/tools"
	"github.com/gobwas/glob"
)

var (
	consoleLevels    = []string{"all", "log", "info", "warn", "error"}
	httpMethods      = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}
	highlightStyles  = []string{"border", "background", "outline"}
	performanceKinds = []string{"navigation", "paint", "memory", "fps"}
)

func (r *Router) debugTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "debug_console",
			description: "Get browser console logs and uncaught page errors from every open page",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"level": enumProp("Filter by log level", "all", consoleLevels...),
				"clear": propDefault("boolean", "Clear console after reading", false),
			}, nil),
			exec: r.debugConsole,
		},
		&tool{
			name:        "debug_network",
			description: "Get network activity observed on every open page. URL filters containing * are matched as glob patterns, otherwise as substrings.",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"filter": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"url":    prop("string", "URL substring or glob pattern"),
						"method": enumProp("HTTP method to filter", "", httpMethods...),
						"status": prop("number", "HTTP status code to filter"),
					},
					"description": "Filters for network requests",
				},
				"clear": propDefault("boolean", "Clear the network log after reading", false),
			}, nil),
			exec: r.debugNetwork,
		},
		&tool{
			name: "debug_evaluate",
			description: "Execute JavaScript in the active page and return the JSON-serialized result. " +
				"The expression runs unsandboxed with the page's full privileges.",
			schema: pageSchema(map[string]interface{}{
				"expression": prop("string", "JavaScript expression to evaluate"),
			}, []string{"expression"}),
			exec: r.onPage(debugEvaluate),
		},
		&tool{
			name:        "debug_highlight",
			description: "Highlight elements on the page for debugging",
			schema: pageSchema(map[string]interface{}{
				"selector": prop("string", "CSS selector of elements to highlight"),
				"color":    propDefault("string", "Highlight color", "red"),
				"duration": propDefault("number", "How long to show highlight in milliseconds", DefaultHighlightMS),
				"style":    enumProp("Highlight style", "border", highlightStyles...),
			}, []string{"selector"}),
			exec: r.onPage(debugHighlight),
		},
		&tool{
			name:        "debug_accessibility",
			description: "Get the accessibility tree of the page or an element and report common issues",
			schema: pageSchema(map[string]interface{}{
				"selector":    prop("string", "Optional selector to focus on specific element"),
				"includeText": propDefault("boolean", "Include accessible names", true),
				"includeRole": propDefault("boolean", "Include ARIA roles", true),
			}, nil),
			exec: r.onPage(debugAccessibility),
		},
		&tool{
			name:        "debug_performance",
			description: "Get page performance metrics",
			schema: pageSchema(map[string]interface{}{
				"metrics": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string", "enum": performanceKinds},
					"default":     []string{"navigation", "paint"},
					"description": "Which metrics to collect",
				},
			}, nil),
			exec: r.onPage(debugPerformance),
		},
	}
}

func (r *Router) debugConsole(_ context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := struct {
		Level string `json:"level"`
		Clear bool   `json:"clear"`
	}{Level: "all"}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if !oneOf(args.Level, consoleLevels...) {
		return "", nil, invalidArg("invalid level: %s (must be one of %s)", args.Level, strings.Join(consoleLevels, ", "))
	}

	sink := r.registry.ConsoleLog()
	entries := sink.Entries(args.Level)
	if args.Clear {
		sink.Clear()
	}

	metadata := map[string]interface{}{"count": len(entries)}
	if len(entries) == 0 {
		return "No console messages", metadata, nil
	}
	return fmt.Sprintf("Console logs (%d):\n%s", len(entries), logging.Format(entries)), metadata, nil
}

type networkFilter struct {
	URL    string `json:"url"`
	Method string `json:"method"`
	Status int    `json:"status"`
}

// matcher compiles the filter. A URL containing '*' is a glob.
func (f networkFilter) matcher() (func(logging.NetworkEntry) bool, error) {
	matchURL := func(u string) bool { return strings.Contains(u, f.URL) }
	if strings.Contains(f.URL, "*") {
		g, err := glob.Compile(f.URL)
		if err != nil {
			return nil, invalidArg("invalid url pattern %q: %v", f.URL, err)
		}
		matchURL = g.Match
	}
	method := strings.ToUpper(f.Method)

	return func(e logging.NetworkEntry) bool {
		if f.URL != "" && !matchURL(e.URL) {
			return false
		}
		if method != "" && e.Method != method {
			return false
		}
		if f.Status != 0 && e.Status != f.Status {
			return false
		}
		return true
	}, nil
}

func (r *Router) debugNetwork(_ context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		Filter networkFilter `json:"filter"`
		Clear  bool          `json:"clear"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	keep, err := args.Filter.matcher()
	if err != nil {
		return "", nil, err
	}

	sink := r.registry.NetworkLog()
	entries := sink.Entries(keep)
	if args.Clear {
		sink.Clear()
	}

	metadata := map[string]interface{}{"count": len(entries)}
	if len(entries) == 0 {
		return "No network requests recorded", metadata, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Network requests (%d):\n", len(entries))
	for _, e := range entries {
		status := fmt.Sprint(e.Status)
		if e.Failure != "" {
			status = "FAILED " + e.Failure
		}
		fmt.Fprintf(&b, "%s %s %s", e.Method, e.URL, status)
		if e.ResourceType != "" {
			fmt.Fprintf(&b, " [%s]", e.ResourceType)
		}
		b.WriteString("\n")
	}
	return b.String(), metadata, nil
}

func debugEvaluate(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		Expression string `json:"expression"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("expression", args.Expression); err != nil {
		return "", nil, err
	}

	result, err := page.Evaluate(args.Expression, nil)
	if err != nil {
		return "", nil, err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("serializing evaluation result: %w", err)
	}
	return "Evaluation result:\n" + string(out), nil, nil
}

func debugHighlight(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := struct {
		Selector string  `json:"selector"`
		Color    string  `json:"color"`
		Duration float64 `json:"duration"`
		Style    string  `json:"style"`
	}{Color: "red", Duration: DefaultHighlightMS, Style: "border"}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}
	if !oneOf(args.Style, highlightStyles...) {
		return "", nil, invalidArg("invalid style: %s (must be 'border', 'background', or 'outline')", args.Style)
	}

	n, err := page.Count(args.Selector)
	if err != nil {
		return "", nil, err
	}
	if n == 0 {
		return "", nil, fmt.Errorf("no elements match %s", args.Selector)
	}

	if _, err := page.Evaluate(highlightScript, map[string]interface{}{
		"selector": args.Selector,
		"color":    args.Color,
		"duration": args.Duration,
		"style":    args.Style,
	}); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Highlighted %d element(s) matching %s with %s %s for %sms",
		n, args.Selector, args.Color, args.Style, formatNumber(args.Duration)), map[string]interface{}{"count": n}, nil
}

func debugAccessibility(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := struct {
		Selector    string `json:"selector"`
		IncludeText bool   `json:"includeText"`
		IncludeRole bool   `json:"includeRole"`
	}{Selector: "body", IncludeText: true, IncludeRole: true}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if args.Selector == "" {
		args.Selector = "body"
	}

	snap, err := page.AriaSnapshot(args.Selector)
	if err != nil {
		return "", nil, err
	}
	tree, err := ParseAriaSnapshot(snap)
	if err != nil {
		return "", nil, err
	}

	issues := AccessibilityIssues(tree)
	text := AccessibilityReport(tree)
	if rendered := renderAXTree(tree, args.IncludeRole, args.IncludeText); rendered != "" {
		text += "\n\nAccessibility tree:\n" + rendered
	}
	return text, map[string]interface{}{"issues": len(issues)}, nil
}

func debugPerformance(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := struct {
		Metrics []string `json:"metrics"`
	}{Metrics: []string{"navigation", "paint"}}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}

	results := make(map[string]interface{}, len(args.Metrics))
	for _, kind := range args.Metrics {
		script, ok := performanceScripts[kind]
		if !ok {
			return "", nil, invalidArg("unknown metric %q (must be one of %s)", kind, strings.Join(performanceKinds, ", "))
		}
		v, err := page.Evaluate(script, nil)
		if err != nil {
			return "", nil, fmt.Errorf("collecting %s metrics: %w", kind, err)
		}
		results[kind] = v
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return "Performance metrics:\n" + string(out), results, nil
}
