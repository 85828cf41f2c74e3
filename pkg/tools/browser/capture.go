package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/screenshot"
	"github.com/entrhq/webpreview/pkg/tools"
	"golang.org/x/net/html"
)

func (r *Router) captureTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "capture_screenshot",
			description: "Capture a screenshot of the active page or one of its elements, optionally annotated with arrows, circles or boxes",
			schema: pageSchema(map[string]interface{}{
				"name":     prop("string", "Name for the screenshot"),
				"mode":     enumProp("Screenshot capture mode", screenshot.ModeViewport, screenshot.ModeFull, screenshot.ModeElement, screenshot.ModeViewport),
				"selector": prop("string", "CSS selector for element mode"),
				"annotations": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"x":     prop("number", "X coordinate"),
							"y":     prop("number", "Y coordinate"),
							"text":  prop("string", "Annotation text"),
							"style": enumProp("Annotation style", "", screenshot.StyleArrow, screenshot.StyleCircle, screenshot.StyleBox),
							"color": propDefault("string", "Annotation color", screenshot.DefaultAnnotationColor),
						},
						"required": []string{"x", "y", "text", "style"},
					},
					"description": "Annotations to add to the screenshot",
				},
				"format": enumProp("Image format", screenshot.FormatPNG, screenshot.FormatPNG, screenshot.FormatJPEG),
				"quality": map[string]interface{}{
					"type":        "number",
					"default":     screenshot.DefaultJPEGQuality,
					"minimum":     0,
					"maximum":     100,
					"description": "JPEG quality (0-100)",
				},
			}, []string{"name"}),
			exec: r.onPage(r.captureScreenshot),
		},
		&tool{
			name:        "capture_compare",
			description: "Compare two screenshots and report how much they differ",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"screenshot1": prop("string", "Name of first screenshot"),
				"screenshot2": prop("string", "Name of second screenshot"),
				"outputDiff":  propDefault("boolean", "Generate a diff image", false),
			}, []string{"screenshot1", "screenshot2"}),
			exec: r.captureCompare,
		},
		&tool{
			name:        "capture_element_info",
			description: "Capture detailed information about an element: tag, attributes, bounding box, computed styles and accessibility subtree",
			schema: pageSchema(map[string]interface{}{
				"selector":             prop("string", "CSS selector of the element"),
				"includeStyles":        propDefault("boolean", "Include computed styles", true),
				"includeAttributes":    propDefault("boolean", "Include all attributes", true),
				"includeAccessibility": propDefault("boolean", "Include accessibility properties", true),
			}, []string{"selector"}),
			exec: r.onPage(captureElementInfo),
		},
	}
}

type screenshotArgs struct {
	Name        string                  `json:"name"`
	Mode        string                  `json:"mode"`
	Selector    string                  `json:"selector"`
	Annotations []screenshot.Annotation `json:"annotations"`
	Format      string                  `json:"format"`
	Quality     *int                    `json:"quality"`
}

func (r *Router) captureScreenshot(ctx context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args screenshotArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("name", args.Name); err != nil {
		return "", nil, err
	}

	if args.Format == "" {
		args.Format = r.defaults.ScreenshotFormat
	}
	if args.Quality == nil && r.defaults.JPEGQuality > 0 {
		q := r.defaults.JPEGQuality
		args.Quality = &q
	}

	path, err := r.pipeline.Capture(ctx, page, args.Name, screenshot.Options{
		Mode:        args.Mode,
		Selector:    args.Selector,
		Format:      args.Format,
		Quality:     args.Quality,
		Annotations: args.Annotations,
	})
	if err != nil {
		return "", nil, err
	}

	metadata := map[string]interface{}{"path": path}
	if img, ok := r.pipeline.Info(args.Name); ok {
		metadata["width"] = img.Width
		metadata["height"] = img.Height
		metadata["bytes"] = img.Size
	}
	return fmt.Sprintf("Screenshot saved: %s\nFile: %s", args.Name, path), metadata, nil
}

func (r *Router) captureCompare(ctx context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args struct {
		Screenshot1 string `json:"screenshot1"`
		Screenshot2 string `json:"screenshot2"`
		OutputDiff  bool   `json:"outputDiff"`
	}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("screenshot1", args.Screenshot1, "screenshot2", args.Screenshot2); err != nil {
		return "", nil, err
	}

	ratio, err := r.pipeline.Compare(args.Screenshot1, args.Screenshot2)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Comparison of %s and %s\n", args.Screenshot1, args.Screenshot2)
	fmt.Fprintf(&b, "Difference: %.2f%% (ratio %.6f)", ratio*100, ratio)
	if ratio == 0 {
		b.WriteString("\nThe screenshots are identical.")
	}
	metadata := map[string]interface{}{"difference": ratio}

	if args.OutputDiff {
		diffName := fmt.Sprintf("diff_%s_%s", args.Screenshot1, args.Screenshot2)
		path, err := r.pipeline.DiffImage(ctx, args.Screenshot1, args.Screenshot2, diffName)
		if err != nil {
			return "", nil, fmt.Errorf("generating diff image: %w", err)
		}
		fmt.Fprintf(&b, "\nDiff image: %s\nFile: %s", diffName, path)
		metadata["diff"] = path
	}
	return b.String(), metadata, nil
}

type elementInfoArgs struct {
	Selector             string `json:"selector"`
	IncludeStyles        bool   `json:"includeStyles"`
	IncludeAttributes    bool   `json:"includeAttributes"`
	IncludeAccessibility bool   `json:"includeAccessibility"`
}

func captureElementInfo(_ context.Context, page browser.Page, raw json.RawMessage) (string, map[string]interface{}, error) {
	args := elementInfoArgs{IncludeStyles: true, IncludeAttributes: true, IncludeAccessibility: true}
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("selector", args.Selector); err != nil {
		return "", nil, err
	}

	n, err := page.Count(args.Selector)
	if err != nil {
		return "", nil, err
	}
	if n == 0 {
		return "", nil, fmt.Errorf("%w: %s", screenshot.ErrElementNotFound, args.Selector)
	}

	result, err := page.EvaluateOn(args.Selector, elementInfoScript, map[string]interface{}{
		"includeStyles":   args.IncludeStyles,
		"styleProperties": styleProperties,
	})
	if err != nil {
		return "", nil, err
	}
	info, _ := result.(map[string]interface{})
	if info == nil {
		info = map[string]interface{}{}
	}
	info["selector"] = args.Selector
	info["matches"] = n

	outer, _ := info["outerHTML"].(string)
	delete(info, "outerHTML")
	if args.IncludeAttributes {
		info["attributes"] = startTagAttributes(outer)
	}

	if args.IncludeAccessibility {
		if snap, err := page.AriaSnapshot(args.Selector); err == nil {
			if tree, err := ParseAriaSnapshot(snap); err == nil {
				info["accessibility"] = tree.Children
			}
		}
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Element info for %s:\n%s", args.Selector, out), info, nil
}

// startTagAttributes returns the attributes of the first start tag in
// fragment.
func startTagAttributes(fragment string) map[string]string {
	attrs := map[string]string{}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return attrs
		case html.StartTagToken, html.SelfClosingTagToken:
			for _, a := range z.Token().Attr {
				attrs[a.Key] = a.Val
			}
			return attrs
		}
	}
}
