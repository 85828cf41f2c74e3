package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/screenshot"
	"github.com/entrhq/webpreview/pkg/tools"
)

var (
	stepActions     = []string{"click", "type", "hover", "wait", "screenshot", "evaluate"}
	assertionKinds  = []string{"exists", "visible", "text", "value", "count", "url"}
	assertOperators = []string{"equals", "contains", "matches", "greater", "less"}
)

func stepSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":  enumProp("Action to perform", "", stepActions...),
			"target":  prop("string", "CSS selector or target for the action"),
			"value":   prop("string", "Value for the action (text to type, JS to evaluate, screenshot name, milliseconds to wait)"),
			"timeout": propDefault("number", "Timeout for this step in milliseconds", DefaultStepTimeout),
		},
		"required": []string{"action"},
	}
}

func (r *Router) automationTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "automate_sequence",
			description: "Execute a sequence of browser automation steps against the active page",
			schema: pageSchema(map[string]interface{}{
				"name": prop("string", "Name for this automation sequence"),
				"steps": map[string]interface{}{
					"type":        "array",
					"items":       stepSchema(),
					"description": "Sequence of automation steps",
				},
				"stopOnError": propDefault("boolean", "Stop sequence if a step fails", true),
			}, []string{"name", "steps"}),
			exec: r.onPage(r.automateSequence),
		},
		&tool{
			name:        "automate_form_fill",
			description: "Fill out a form. Field keys are CSS selectors or input names.",
			schema: pageSchema(map[string]interface{}{
				"formSelector": prop("string", "CSS selector of the form"),
				"fields": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": map[string]interface{}{"type": "string"},
					"description":          "Field name/selector to value mapping",
				},
				"submit":   propDefault("boolean", "Submit the form after filling", false),
				"validate": propDefault("boolean", "Validate form before submission", true),
			}, []string{"fields"}),
			exec: r.onPage(automateFormFill),
		},
		&tool{
			name:        "automate_test",
			description: "Run setup steps, check assertions against the active page, then run teardown steps",
			schema: pageSchema(map[string]interface{}{
				"name":  prop("string", "Test name"),
				"setup": map[string]interface{}{"type": "array", "items": stepSchema(), "description": "Setup steps before test"},
				"assertions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"type":     enumProp("Type of assertion", "", assertionKinds...),
							"selector": prop("string", "Element selector for assertion"),
							"expected": map[string]interface{}{
								"type":        []string{"string", "number", "boolean"},
								"description": "Expected value",
							},
							"operator": enumProp("Comparison operator", "equals", assertOperators...),
						},
						"required": []string{"type", "expected"},
					},
					"description": "Test assertions",
				},
				"teardown": map[string]interface{}{"type": "array", "items": stepSchema(), "description": "Cleanup steps after test"},
			}, []string{"name", "assertions"}),
			exec: r.onPage(r.automateTest),
		},
	}
}

// Step is one action of a sequence or a test's setup and teardown.
type Step struct {
	Action  string           `json:"action"`
	Target  string           `json:"target"`
	Value   tools.FlexString `json:"value"`
	Timeout float64          `json:"timeout"`
}

func (s Step) String() string {
	if s.Target != "" {
		return s.Action + " " + s.Target
	}
	return s.Action
}

// runStep performs one step. label names screenshots taken without an
// explicit value.
func (r *Router) runStep(ctx context.Context, page browser.Page, s Step, label string) (string, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	value := string(s.Value)

	switch s.Action {
	case "click":
		if s.Target == "" {
			return "", invalidArg("click step requires a target")
		}
		return "clicked " + s.Target, page.Click(s.Target, browser.ClickOptions{Button: "left", ClickCount: 1})

	case "type":
		if s.Target == "" {
			return "", invalidArg("type step requires a target")
		}
		return fmt.Sprintf("typed %q into %s", value, s.Target), page.Fill(s.Target, value)

	case "hover":
		if s.Target == "" {
			return "", invalidArg("hover step requires a target")
		}
		return "hovered " + s.Target, page.Hover(s.Target)

	case "wait":
		if s.Target != "" {
			return "waited for " + s.Target, page.WaitForSelector(s.Target, browser.StateVisible, timeout)
		}
		ms, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || ms < 0 {
			return "", invalidArg("wait step requires a target or a duration in milliseconds")
		}
		page.WaitForTimeout(ms)
		return fmt.Sprintf("waited %sms", formatNumber(ms)), nil

	case "screenshot":
		name := value
		if name == "" {
			name = label
		}
		opts := screenshot.Options{Mode: screenshot.ModeViewport}
		if s.Target != "" {
			opts = screenshot.Options{Mode: screenshot.ModeElement, Selector: s.Target}
		}
		path, err := r.pipeline.Capture(ctx, page, name, opts)
		return "screenshot " + path, err

	case "evaluate":
		if value == "" {
			return "", invalidArg("evaluate step requires a value")
		}
		result, err := page.Evaluate(value, nil)
		if err != nil {
			return "", err
		}
		out, _ := json.Marshal(result)
		return "evaluated to " + string(out), nil

	default:
		return "", invalidArg("unknown step action %q (must be one of %s)", s.Action, strings.Join(stepActions, ", "))
	}
}

type sequenceArgs struct {
	Name        string `json:"name"`
	Steps       []Step `json:"steps"`
	StopOnError bool   `json:"stopOnError"`
}

func (r *Router) automateSequence(ctx context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := sequenceArgs{StopOnError: true}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("name", args.Name); err != nil {
		return "", nil, err
	}
	if len(args.Steps) == 0 {
		return "", nil, invalidArg("steps must not be empty")
	}

	var lines []string
	failed := 0
	for i, step := range args.Steps {
		out, err := r.runStep(ctx, page, step, fmt.Sprintf("%s_step_%d", args.Name, i+1))
		if err != nil {
			failed++
			if args.StopOnError {
				return "", nil, fmt.Errorf("sequence %q failed at step %d (%s): %w", args.Name, i+1, step, err)
			}
			lines = append(lines, fmt.Sprintf("[failed] %d. %s: %v", i+1, step, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("[ok] %d. %s", i+1, out))
	}

	text := fmt.Sprintf("Sequence %q completed: %d/%d steps succeeded\n\n%s",
		args.Name, len(args.Steps)-failed, len(args.Steps), strings.Join(lines, "\n"))
	return text, map[string]interface{}{
		"steps":     len(args.Steps),
		"succeeded": len(args.Steps) - failed,
		"failed":    failed,
	}, nil
}

type formFillArgs struct {
	FormSelector string            `json:"formSelector"`
	Fields       map[string]string `json:"fields"`
	Submit       bool              `json:"submit"`
	Validate     bool              `json:"validate"`
}

func automateFormFill(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := formFillArgs{Validate: true}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if len(args.Fields) == 0 {
		return "", nil, invalidArg("fields must not be empty")
	}

	keys := make([]string, 0, len(args.Fields))
	for k := range args.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, key := range keys {
		sel, err := fieldSelector(page, args.FormSelector, key)
		if err != nil {
			return "", nil, err
		}
		if err := page.Fill(sel, args.Fields[key]); err != nil {
			return "", nil, fmt.Errorf("filling %s: %w", key, err)
		}
		lines = append(lines, fmt.Sprintf("- %s: %q", key, args.Fields[key]))
	}

	text := fmt.Sprintf("Filled %d field(s):\n%s", len(keys), strings.Join(lines, "\n"))
	if args.Submit {
		if err := submitForm(page, args.FormSelector, args.Validate); err != nil {
			return "", nil, err
		}
		text += "\n\nForm submitted"
	}
	return text, map[string]interface{}{"fields": len(keys), "submitted": args.Submit}, nil
}

// fieldSelector resolves a field key. A key matching an element is used
// as a selector; otherwise it names an input by its name attribute.
func fieldSelector(page browser.Page, form, key string) (string, error) {
	candidates := []string{key, fmt.Sprintf("[name=%q]", key)}
	if form != "" {
		candidates = []string{form + " " + key, fmt.Sprintf("%s [name=%q]", form, key), key}
	}
	for _, sel := range candidates {
		n, err := page.Count(sel)
		if err == nil && n > 0 {
			return sel, nil
		}
	}
	return "", fmt.Errorf("no form field matches %q", key)
}

func submitForm(page browser.Page, form string, validate bool) error {
	if form == "" {
		const submit = `button[type="submit"], input[type="submit"]`
		if err := page.Click(submit, browser.ClickOptions{Button: "left", ClickCount: 1}); err != nil {
			return fmt.Errorf("submitting form: %w", err)
		}
		return nil
	}

	if validate {
		ok, err := page.EvaluateOn(form, reportValidityScript, nil)
		if err != nil {
			return fmt.Errorf("validating form: %w", err)
		}
		if valid, isBool := ok.(bool); isBool && !valid {
			return fmt.Errorf("form %s failed validation", form)
		}
	}
	if _, err := page.EvaluateOn(form, submitScript, nil); err != nil {
		return fmt.Errorf("submitting form: %w", err)
	}
	return nil
}

// Assertion is one check of automate_test.
type Assertion struct {
	Type     string           `json:"type"`
	Selector string           `json:"selector"`
	Expected tools.FlexString `json:"expected"`
	Operator string           `json:"operator"`
}

func (a Assertion) String() string {
	if a.Selector != "" {
		return fmt.Sprintf("%s %s %s %q", a.Type, a.Selector, a.Operator, string(a.Expected))
	}
	return fmt.Sprintf("%s %s %q", a.Type, a.Operator, string(a.Expected))
}

// actual reads the value an assertion compares against.
func (a Assertion) actual(page browser.Page) (string, error) {
	if a.Type != "url" && a.Selector == "" {
		return "", invalidArg("%s assertion requires a selector", a.Type)
	}

	switch a.Type {
	case "url":
		return page.URL(), nil
	case "exists", "count":
		n, err := page.Count(a.Selector)
		if err != nil {
			return "", err
		}
		if a.Type == "count" {
			return strconv.Itoa(n), nil
		}
		return strconv.FormatBool(n > 0), nil
	case "visible":
		n, err := page.Count(a.Selector)
		if err != nil || n == 0 {
			return "false", err
		}
		v, err := page.EvaluateOn(a.Selector, visibleScript, nil)
		if err != nil {
			return "", err
		}
		b, _ := v.(bool)
		return strconv.FormatBool(b), nil
	case "text", "value":
		script := textScript
		if a.Type == "value" {
			script = valueScript
		}
		v, err := page.EvaluateOn(a.Selector, script, nil)
		if err != nil {
			return "", err
		}
		if v == nil {
			return "", nil
		}
		return fmt.Sprint(v), nil
	default:
		return "", invalidArg("unknown assertion type %q (must be one of %s)", a.Type, strings.Join(assertionKinds, ", "))
	}
}

// compare applies the assertion's operator to actual.
func (a Assertion) compare(actual string) (bool, error) {
	expected := string(a.Expected)
	switch a.Operator {
	case "", "equals":
		return actual == expected, nil
	case "contains":
		return strings.Contains(actual, expected), nil
	case "matches":
		re, err := regexp.Compile(expected)
		if err != nil {
			return false, invalidArg("invalid pattern %q: %v", expected, err)
		}
		return re.MatchString(actual), nil
	case "greater", "less":
		x, err1 := strconv.ParseFloat(actual, 64)
		y, err2 := strconv.ParseFloat(expected, 64)
		if err1 != nil || err2 != nil {
			return false, invalidArg("%s needs numeric values, got %q and %q", a.Operator, actual, expected)
		}
		if a.Operator == "greater" {
			return x > y, nil
		}
		return x < y, nil
	default:
		return false, invalidArg("unknown operator %q (must be one of %s)", a.Operator, strings.Join(assertOperators, ", "))
	}
}

type testArgs struct {
	Name       string      `json:"name"`
	Setup      []Step      `json:"setup"`
	Assertions []Assertion `json:"assertions"`
	Teardown   []Step      `json:"teardown"`
}

func (r *Router) automateTest(ctx context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args testArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("name", args.Name); err != nil {
		return "", nil, err
	}
	if len(args.Assertions) == 0 {
		return "", nil, invalidArg("assertions must not be empty")
	}

	for i, step := range args.Setup {
		if _, err := r.runStep(ctx, page, step, fmt.Sprintf("%s_setup_%d", args.Name, i+1)); err != nil {
			r.runTeardown(ctx, page, args)
			return "", nil, fmt.Errorf("test %q setup step %d (%s): %w", args.Name, i+1, step, err)
		}
	}

	var lines []string
	passed := 0
	for _, a := range args.Assertions {
		actual, err := a.actual(page)
		ok := false
		if err == nil {
			ok, err = a.compare(actual)
		}
		switch {
		case err != nil:
			lines = append(lines, fmt.Sprintf("[FAIL] %s: %v", a, err))
		case ok:
			passed++
			lines = append(lines, fmt.Sprintf("[PASS] %s", a))
		default:
			lines = append(lines, fmt.Sprintf("[FAIL] %s (actual: %q)", a, actual))
		}
	}

	teardownErrs := r.runTeardown(ctx, page, args)

	status := "PASSED"
	if passed < len(args.Assertions) {
		status = "FAILED"
	}
	text := fmt.Sprintf("Test %q %s: %d/%d assertions passed\n\n%s",
		args.Name, status, passed, len(args.Assertions), strings.Join(lines, "\n"))
	if len(teardownErrs) > 0 {
		text += "\n\nTeardown errors:\n" + strings.Join(teardownErrs, "\n")
	}
	return text, map[string]interface{}{
		"passed": passed,
		"failed": len(args.Assertions) - passed,
		"total":  len(args.Assertions),
	}, nil
}

// runTeardown runs every teardown step regardless of earlier failures.
func (r *Router) runTeardown(ctx context.Context, page browser.Page, args testArgs) []string {
	var errs []string
	for i, step := range args.Teardown {
		if _, err := r.runStep(ctx, page, step, fmt.Sprintf("%s_teardown_%d", args.Name, i+1)); err != nil {
			errs = append(errs, fmt.Sprintf("step %d (%s): %v", i+1, step, err))
		}
	}
	return errs
}
