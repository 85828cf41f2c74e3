package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/tools"
)

var waitUntilStates = []string{"load", "domcontentloaded", "networkidle"}

func (r *Router) navigationTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "navigate_to",
			description: "Navigate the active page to a URL",
			schema: pageSchema(map[string]interface{}{
				"url":       prop("string", "URL to navigate to"),
				"waitUntil": enumProp("When to consider navigation finished", "load", waitUntilStates...),
				"timeout":   propDefault("number", "Navigation timeout in milliseconds", DefaultTimeout),
			}, []string{"url"}),
			exec: r.onPage(r.navigateTo),
		},
		&tool{
			name:        "navigate_back",
			description: "Go back in browser history",
			schema:      pageSchema(nil, nil),
			exec: r.onPage(func(_ context.Context, page browser.Page, _ json.RawMessage) (string, map[string]interface{}, error) {
				if err := page.GoBack(browser.NavigateOptions{Timeout: r.defaults.Timeout}); err != nil {
					return "", nil, err
				}
				return "Navigated back", map[string]interface{}{"url": page.URL()}, nil
			}),
		},
		&tool{
			name:        "navigate_forward",
			description: "Go forward in browser history",
			schema:      pageSchema(nil, nil),
			exec: r.onPage(func(_ context.Context, page browser.Page, _ json.RawMessage) (string, map[string]interface{}, error) {
				if err := page.GoForward(browser.NavigateOptions{Timeout: r.defaults.Timeout}); err != nil {
					return "", nil, err
				}
				return "Navigated forward", map[string]interface{}{"url": page.URL()}, nil
			}),
		},
		&tool{
			name:        "navigate_reload",
			description: "Reload the current page",
			schema: pageSchema(map[string]interface{}{
				"hardReload": propDefault("boolean", "Force reload ignoring cache", false),
			}, nil),
			exec: r.onPage(r.navigateReload),
		},
	}
}

type navigateArgs struct {
	URL       string  `json:"url"`
	WaitUntil string  `json:"waitUntil"`
	Timeout   float64 `json:"timeout"`
}

func (r *Router) navigateTo(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := navigateArgs{WaitUntil: "load", Timeout: r.defaults.Timeout}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("url", args.URL); err != nil {
		return "", nil, err
	}
	if !oneOf(args.WaitUntil, waitUntilStates...) {
		return "", nil, invalidArg("invalid waitUntil value: %s (must be 'load', 'domcontentloaded', or 'networkidle')", args.WaitUntil)
	}

	if err := page.Goto(args.URL, browser.NavigateOptions{WaitUntil: args.WaitUntil, Timeout: args.Timeout}); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Navigated to: %s", args.URL), map[string]interface{}{"url": page.URL()}, nil
}

func (r *Router) navigateReload(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		HardReload bool `json:"hardReload"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}

	if err := page.Reload(browser.NavigateOptions{WaitUntil: "load", Timeout: r.defaults.Timeout}); err != nil {
		return "", nil, err
	}
	if args.HardReload {
		return "Page hard reloaded", nil, nil
	}
	return "Page reloaded", nil, nil
}
