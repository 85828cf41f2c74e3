package browser

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/logging"
)

// Resource URIs.
const (
	ConsoleLogsURI    = "console://logs"
	ScreenshotScheme  = "screenshot://"
	ScreenshotURIForm = ScreenshotScheme + "{name}"
)

// Resource describes one readable pseudo-resource.
type Resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

// ResourceContent is the body of a read resource. Exactly one of Text and
// Blob is set; Blob is base64 encoded.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Resources lists the console log resource followed by one resource per
// cached screenshot, sorted by name.
func (r *Router) Resources() []Resource {
	out := []Resource{{URI: ConsoleLogsURI, Name: "Browser console logs", MIMEType: "text/plain"}}
	for _, img := range r.pipeline.List() {
		out = append(out, Resource{
			URI:      ScreenshotScheme + img.Name,
			Name:     "Screenshot: " + img.Name,
			MIMEType: img.MIMEType(),
		})
	}
	return out
}

// ReadResource returns the content behind uri.
func (r *Router) ReadResource(uri string) (*ResourceContent, error) {
	if uri == ConsoleLogsURI {
		entries := r.registry.ConsoleLog().Entries("all")
		text := logging.Format(entries)
		if text == "" {
			text = "No console messages"
		}
		return &ResourceContent{URI: uri, MIMEType: "text/plain", Text: text}, nil
	}

	if name, ok := strings.CutPrefix(uri, ScreenshotScheme); ok {
		if img, found := r.pipeline.Get(name); found {
			return &ResourceContent{
				URI:      uri,
				MIMEType: img.MIMEType(),
				Blob:     base64.StdEncoding.EncodeToString(img.Data),
			}, nil
		}
	}
	return nil, fmt.Errorf("resource %s %w", uri, browser.ErrNotFound)
}
