package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/tools"
)

func (r *Router) previewTools() []tools.Tool {
	return []tools.Tool{
		&tool{
			name:        "preview_open",
			description: "Open a web preview in a new browser instance. The new page becomes the active page for navigation, interaction, capture and debug tools.",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"url":         prop("string", "URL to preview (local or remote)"),
				"mode":        enumProp("Preview mode: local, or public through the configured publisher", ModeLocal, ModeLocal, ModePublic),
				"autoRefresh": propDefault("boolean", "Reload the preview when files under projectPath change", true),
				"viewport": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"width":  propDefault("number", "Viewport width in pixels", DefaultViewportWidth),
						"height": propDefault("number", "Viewport height in pixels", DefaultViewportHeight),
					},
					"description": "Browser viewport dimensions",
				},
				"browserType": enumProp("Browser engine to use", string(browser.EngineChromium),
					string(browser.EngineChromium), string(browser.EngineFirefox), string(browser.EngineWebKit)),
				"headless":    prop("boolean", "Run the browser without a window. Defaults to the server configuration."),
				"projectPath": prop("string", "Directory to watch for auto-refresh. Defaults to the directory of a file:// URL."),
			}, []string{"url"}),
			exec: r.previewOpen,
		},
		&tool{
			name:        "preview_close",
			description: "Close a preview and its browser instance",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"previewId": prop("string", "ID of the preview to close"),
			}, []string{"previewId"}),
			exec: r.previewClose,
		},
		&tool{
			name:        "preview_list",
			description: "List all active preview sessions",
			schema:      tools.BaseToolSchema(nil, nil),
			exec:        r.previewList,
		},
		&tool{
			name:        "preview_refresh",
			description: "Manually refresh a preview",
			schema: tools.BaseToolSchema(map[string]interface{}{
				"previewId": prop("string", "ID of the preview to refresh"),
			}, []string{"previewId"}),
			exec: r.previewRefresh,
		},
	}
}

type previewOpenArgs struct {
	URL         string            `json:"url"`
	Mode        string            `json:"mode"`
	AutoRefresh *bool             `json:"autoRefresh"`
	Viewport    *browser.Viewport `json:"viewport"`
	BrowserType string            `json:"browserType"`
	Headless    *bool             `json:"headless"`
	ProjectPath string            `json:"projectPath"`
}

func (r *Router) previewOpen(ctx context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args previewOpenArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("url", args.URL); err != nil {
		return "", nil, err
	}
	if args.Mode == "" {
		args.Mode = ModeLocal
	}
	if !oneOf(args.Mode, ModeLocal, ModePublic) {
		return "", nil, invalidArg("mode must be 'local' or 'public', got %q", args.Mode)
	}

	engine := r.defaults.Engine
	if args.BrowserType != "" {
		var err error
		if engine, err = browser.ParseEngine(args.BrowserType); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}

	viewport := r.defaults.Viewport
	if args.Viewport != nil {
		if args.Viewport.Width > 0 {
			viewport.Width = args.Viewport.Width
		}
		if args.Viewport.Height > 0 {
			viewport.Height = args.Viewport.Height
		}
	}

	headless := r.defaults.Headless
	if args.Headless != nil {
		headless = *args.Headless
	}

	autoRefresh := true
	if args.AutoRefresh != nil {
		autoRefresh = *args.AutoRefresh
	}

	previewID, seq := r.previews.next()
	session := &PreviewSession{
		ID:          previewID,
		BrowserID:   "browser_" + previewID,
		ContextID:   "context_" + previewID,
		PageID:      "page_" + previewID,
		URL:         args.URL,
		Mode:        args.Mode,
		PublicURL:   args.URL,
		AutoRefresh: autoRefresh,
		Engine:      engine,
		Viewport:    viewport,
		CreatedAt:   time.Now(),
		seq:         seq,
	}

	if err := r.launchPreview(session, headless); err != nil {
		if closeErr := r.registry.CloseBrowser(session.BrowserID); closeErr != nil {
			r.log.Warnf("cleanup after failed open of %s: %v", previewID, closeErr)
		}
		return "", nil, fmt.Errorf("failed to open preview: %w", err)
	}

	if args.Mode == ModePublic {
		public, err := r.publisher.Publish(ctx, args.URL)
		if err != nil {
			if closeErr := r.registry.CloseBrowser(session.BrowserID); closeErr != nil {
				r.log.Warnf("cleanup after failed publish of %s: %v", previewID, closeErr)
			}
			return "", nil, fmt.Errorf("failed to publish preview: %w", err)
		}
		session.PublicURL = public
	}

	if autoRefresh {
		session.ProjectPath = projectPath(args.ProjectPath, args.URL)
		if session.ProjectPath != "" && r.watcher != nil {
			if err := r.watcher.Watch(session.ProjectPath); err != nil {
				r.log.Warnf("auto-refresh disabled for %s: %v", previewID, err)
			}
		}
	}

	r.previews.add(session)
	r.metrics.setPreviews(r.previews.len())
	r.log.Infof("opened %s (%s, %s) at %s", previewID, engine, args.Mode, args.URL)

	text := fmt.Sprintf("Preview opened successfully!\n\nPreview ID: %s\nURL: %s\nMode: %s\nPublic URL: %s\nBrowser: %s\nAuto-refresh: %t",
		previewID, args.URL, args.Mode, session.PublicURL, engine, autoRefresh)
	return text, map[string]interface{}{
		"previewId": previewID,
		"pageId":    session.PageID,
		"publicUrl": session.PublicURL,
	}, nil
}

// launchPreview creates the browser, context and page of a session and
// loads its URL. Each step aborts the rest on failure.
func (r *Router) launchPreview(s *PreviewSession, headless bool) error {
	if _, err := r.registry.LaunchBrowser(s.BrowserID, s.Engine, browser.LaunchOptions{Headless: headless}); err != nil {
		return err
	}
	viewport := s.Viewport
	if _, err := r.registry.CreateContext(s.BrowserID, s.ContextID, browser.ContextOptions{Viewport: &viewport}); err != nil {
		return err
	}
	page, err := r.registry.CreatePage(s.ContextID, s.PageID)
	if err != nil {
		return err
	}
	return page.Page.Goto(s.URL, browser.NavigateOptions{WaitUntil: "load", Timeout: r.defaults.Timeout})
}

// projectPath returns the absolute directory watched for a preview: the
// explicit path, or the directory of a file:// URL. File change events
// carry absolute names, so a relative path is resolved here.
func projectPath(explicit, rawURL string) string {
	if explicit != "" {
		if abs, err := filepath.Abs(explicit); err == nil {
			return abs
		}
		return filepath.Clean(explicit)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return ""
	}
	return filepath.Dir(filepath.FromSlash(u.Path))
}

type previewIDArgs struct {
	PreviewID string `json:"previewId"`
}

func (r *Router) previewClose(ctx context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args previewIDArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("previewId", args.PreviewID); err != nil {
		return "", nil, err
	}
	if err := r.closePreview(ctx, args.PreviewID); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Preview %s closed successfully", args.PreviewID), nil, nil
}

// closePreview closes a session's page, context and browser in that order
// and then drops the session.
func (r *Router) closePreview(ctx context.Context, id string) error {
	s, ok := r.previews.get(id)
	if !ok {
		return previewNotFound(id)
	}

	unlock := r.lockPage(s.PageID)
	err := errors.Join(
		r.registry.ClosePage(s.PageID),
		r.registry.CloseContext(s.ContextID),
		r.registry.CloseBrowser(s.BrowserID),
	)
	unlock()
	r.forgetPage(s.PageID)

	if s.Mode == ModePublic && s.PublicURL != s.URL {
		if uerr := r.publisher.Unpublish(ctx, s.PublicURL); uerr != nil {
			r.log.Warnf("unpublish %s: %v", s.PublicURL, uerr)
		}
	}

	r.previews.remove(id)
	r.metrics.setPreviews(r.previews.len())
	r.log.Infof("closed %s", id)
	return err
}

func (r *Router) previewList(context.Context, json.RawMessage) (string, map[string]interface{}, error) {
	sessions := r.previews.list()
	if len(sessions) == 0 {
		return "No active previews", map[string]interface{}{"count": 0}, nil
	}

	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", s.ID, s.URL, s.Mode))
	}
	return "Active previews:\n\n" + strings.Join(lines, "\n"), map[string]interface{}{"count": len(sessions)}, nil
}

func (r *Router) previewRefresh(_ context.Context, raw json.RawMessage) (string, map[string]interface{}, error) {
	var args previewIDArgs
	if err := tools.DecodeArgs(raw, &args); err != nil {
		return "", nil, err
	}
	if err := tools.Required("previewId", args.PreviewID); err != nil {
		return "", nil, err
	}

	h, err := r.resolvePage(target(args))
	if err != nil {
		return "", nil, err
	}

	unlock := r.lockPage(h.ID)
	defer unlock()
	if err := h.Page.Reload(browser.NavigateOptions{Timeout: r.defaults.Timeout}); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Preview %s refreshed", args.PreviewID), nil, nil
}
