package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/tools"
)

var (
	mouseButtons   = []string{"left", "right", "middle"}
	scrollDirs     = []string{"up", "down", "left", "right"}
	waitStates     = []string{string(browser.StateVisible), string(browser.StateHidden), string(browser.StateAttached), string(browser.StateDetached)}
	waitKinds      = []string{"selector", "timeout", "function"}
	maxWaitTimeout = 300000.0
)

func (r *Router) interactionTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "interact_click",
			description: "Click on an element in the active page",
			schema: pageSchema(map[string]interface{}{
				"selector":   prop("string", "CSS selector or text of the element to click"),
				"button":     enumProp("Mouse button to use", "left", mouseButtons...),
				"clickCount": propDefault("number", "Number of clicks", 1),
				"position": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"x": map[string]interface{}{"type": "number"},
						"y": map[string]interface{}{"type": "number"},
					},
					"description": "Relative position within element to click",
				},
			}, []string{"selector"}),
			exec: r.onPage(interactClick),
		},
		&tool{
			name:        "interact_type",
			description: "Type text into an input field",
			schema: pageSchema(map[string]interface{}{
				"selector": prop("string", "CSS selector of the input element"),
				"text":     prop("string", "Text to type"),
				"delay":    propDefault("number", "Delay between keystrokes in milliseconds", 0),
				"clear":    propDefault("boolean", "Clear the field before typing", false),
			}, []string{"selector", "text"}),
			exec: r.onPage(interactType),
		},
		&tool{
			name:        "interact_hover",
			description: "Hover over an element",
			schema: pageSchema(map[string]interface{}{
				"selector": prop("string", "CSS selector of the element to hover"),
				"duration": propDefault("number", "How long to hover in milliseconds", 0),
			}, []string{"selector"}),
			exec: r.onPage(interactHover),
		},
		&tool{
			name:        "interact_select",
			description: "Select option(s) from a dropdown",
			schema: pageSchema(map[string]interface{}{
				"selector": prop("string", "CSS selector of the select element"),
				"value": map[string]interface{}{
					"type":        []string{"string", "array"},
					"items":       map[string]interface{}{"type": "string"},
					"description": "Value(s) to select",
				},
			}, []string{"selector", "value"}),
			exec: r.onPage(interactSelect),
		},
		&tool{
			name:        "interact_scroll",
			description: "Scroll the page or an element",
			schema: pageSchema(map[string]interface{}{
				"direction": enumProp("Scroll direction", "down", scrollDirs...),
				"amount":    propDefault("number", "Pixels to scroll", DefaultScrollAmount),
				"selector":  prop("string", "Optional element to scroll (defaults to page)"),
			}, []string{"direction"}),
			exec: r.onPage(interactScroll),
		},
		&tool{
			name:        "interact_wait",
			description: "Wait for an element, a fixed time, or a condition",
			schema: pageSchema(map[string]interface{}{
				"type":    enumProp("What to wait for", "selector", waitKinds...),
				"value":   prop("string", "Selector to wait for, milliseconds for timeout, or an expression for function"),
				"state":   enumProp("State to wait for (for selector type)", "visible", waitStates...),
				"timeout": propDefault("number", "Maximum wait time in milliseconds", DefaultTimeout),
			}, []string{"type", "value"}),
			exec: r.onPage(r.interactWait),
		},
	}
}

type clickArgs struct {
	Selector   string         `json:"selector"`
	Button     string         `json:"button"`
	ClickCount int            `json:"clickCount"`
	Position   *browser.Point `json:"position"`
}

func interactClick(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := clickArgs{Button: "left", ClickCount: 1}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}
	if !oneOf(args.Button, mouseButtons...) {
		return "", nil, invalidArg("invalid button: %s (must be 'left', 'right', or 'middle')", args.Button)
	}
	if args.ClickCount < 1 {
		return "", nil, invalidArg("clickCount must be at least 1")
	}

	opts := browser.ClickOptions{Button: args.Button, ClickCount: args.ClickCount, Position: args.Position}
	if err := page.Click(args.Selector, opts); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Clicked on: %s", args.Selector), nil, nil
}

type typeArgs struct {
	Selector string  `json:"selector"`
	Text     *string `json:"text"`
	Delay    float64 `json:"delay"`
	Clear    bool    `json:"clear"`
}

func interactType(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args typeArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}
	if args.Text == nil {
		return "", nil, invalidArg("text is required")
	}

	var err error
	if args.Clear {
		err = page.Fill(args.Selector, *args.Text)
	} else {
		err = page.Type(args.Selector, *args.Text, args.Delay)
	}
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Typed %q into: %s", *args.Text, args.Selector), nil, nil
}

func interactHover(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		Selector string  `json:"selector"`
		Duration float64 `json:"duration"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}

	if err := page.Hover(args.Selector); err != nil {
		return "", nil, err
	}
	if args.Duration > 0 {
		page.WaitForTimeout(args.Duration)
	}
	return fmt.Sprintf("Hovered over: %s", args.Selector), nil, nil
}

func interactSelect(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		Selector string           `json:"selector"`
		Value    tools.StringList `json:"value"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}
	if len(args.Value) == 0 {
		return "", nil, invalidArg("value is required")
	}

	selected, err := page.SelectOption(args.Selector, args.Value)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Selected %q in: %s", strings.Join(args.Value, ", "), args.Selector),
		map[string]interface{}{"selected": selected}, nil
}

// scrollDelta maps a direction and magnitude to a signed (dx, dy) pair.
func scrollDelta(direction string, amount float64) (dx, dy float64, ok bool) {
	switch direction {
	case "up":
		return 0, -amount, true
	case "down":
		return 0, amount, true
	case "left":
		return -amount, 0, true
	case "right":
		return amount, 0, true
	}
	return 0, 0, false
}

func interactScroll(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := struct {
		Direction string  `json:"direction"`
		Amount    float64 `json:"amount"`
		Selector  string  `json:"selector"`
	}{Direction: "down", Amount: DefaultScrollAmount}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}

	dx, dy, ok := scrollDelta(args.Direction, args.Amount)
	if !ok {
		return "", nil, invalidArg("invalid direction: %s (must be 'up', 'down', 'left', or 'right')", args.Direction)
	}
	delta := map[string]interface{}{"x": dx, "y": dy}

	var err error
	if args.Selector != "" {
		_, err = page.EvaluateOn(args.Selector, scrollElementScript, delta)
	} else {
		_, err = page.Evaluate(scrollWindowScript, delta)
	}
	if err != nil {
		return "", nil, err
	}

	text := fmt.Sprintf("Scrolled %s by %spx", args.Direction, formatNumber(args.Amount))
	if args.Selector != "" {
		text += " in " + args.Selector
	}
	return text, map[string]interface{}{"dx": dx, "dy": dy}, nil
}

type waitArgs struct {
	Type    string           `json:"type"`
	Value   tools.FlexString `json:"value"`
	State   string           `json:"state"`
	Timeout float64          `json:"timeout"`
}

func (r *Router) interactWait(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := waitArgs{Type: "selector", State: string(browser.StateVisible), Timeout: r.defaults.Timeout}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if args.Timeout < 0 || args.Timeout > maxWaitTimeout {
		return "", nil, invalidArg("timeout must be between 0 and 300000 milliseconds (5 minutes)")
	}
	value := string(args.Value)

	switch args.Type {
	case "selector":
		if err := tools.Required("value", value); err != nil {
			return "", nil, err
		}
		if !oneOf(args.State, waitStates...) {
			return "", nil, invalidArg("invalid state: %s (must be 'visible', 'hidden', 'attached', or 'detached')", args.State)
		}
		if err := page.WaitForSelector(value, browser.WaitState(args.State), args.Timeout); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Waited for selector %q to be %s", value, args.State), nil, nil

	case "timeout":
		ms, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || ms < 0 {
			return "", nil, invalidArg("timeout value must be a non-negative number of milliseconds, got %q", value)
		}
		page.WaitForTimeout(ms)
		return fmt.Sprintf("Waited for %sms", formatNumber(ms)), nil, nil

	case "function":
		if err := tools.Required("value", value); err != nil {
			return "", nil, err
		}
		if err := page.WaitForFunction(value, args.Timeout); err != nil {
			return "", nil, err
		}
		return "Waited for function to return true", nil, nil

	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownWaitType, args.Type)
	}
}

// formatNumber prints whole numbers without a fractional part.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
