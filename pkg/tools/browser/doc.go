// Package browser exposes browser automation as a catalog of named tools.
//
// The Router receives a tool name and JSON arguments, validates them and
// routes the call to the session registry (pkg/browser) or the screenshot
// pipeline (pkg/screenshot). Every successful call returns the same
// envelope: a list of text content blocks plus optional metadata.
//
// # Tool Groups
//
//   - preview: preview_open, preview_close, preview_list, preview_refresh
//   - navigate: navigate_to, navigate_back, navigate_forward, navigate_reload
//   - interact: interact_click, interact_type, interact_hover, interact_select,
//     interact_scroll, interact_wait
//   - capture: capture_screenshot, capture_compare, capture_element_info
//   - debug: debug_console, debug_network, debug_evaluate, debug_highlight,
//     debug_accessibility, debug_performance
//   - automate: automate_sequence, automate_form_fill, automate_test
//
// capture_video, automate_record and the generate_* tools are published in
// the catalog but fail with ErrNotAvailable.
//
// # Previews
//
// preview_open launches a browser, a context and a page under ids derived
// from a fresh preview id ("preview_1" owns "browser_preview_1" and so on),
// then navigates to the URL. The new page becomes the registry's current
// page. preview_close tears the three down in page, context, browser order.
//
// In public mode the Publisher is asked for a shareable address. With
// autoRefresh the project directory is handed to the Watcher, and
// HandleFileChange reloads every preview whose directory contains the
// changed file.
//
// # Active Page
//
// Page-bound tools accept an optional previewId. Without one they act on
// the registry's current page, and fail with ErrNoActivePage when there is
// none. Calls against the same page are serialised.
//
// # Example Usage
//
//	reg := browser.NewRegistry(pwdriver.New(pwdriver.Options{}))
//	router := browsertools.NewRouter(reg, screenshot.New(dir))
//
//	res, err := router.Dispatch(ctx, "preview_open", json.RawMessage(`{"url":"http://localhost:3000"}`))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Text())
//
// debug_evaluate runs caller-supplied JavaScript in the page without any
// sandboxing. The calling agent is trusted with the page.
package browser
