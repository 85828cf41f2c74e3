package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/entrhq/webpreview/pkg/screenshot"
	"github.com/entrhq/webpreview/pkg/tools"
)

// Default values applied when a call omits them.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30000
	DefaultScrollAmount   = 300
	DefaultStepTimeout    = 5000
	DefaultHighlightMS    = 3000
)

// Defaults holds process-wide defaults for new previews.
type Defaults struct {
	Engine   browser.Engine
	Headless bool
	Viewport browser.Viewport
	// Timeout is the navigation and wait timeout in milliseconds
	Timeout float64
	// ScreenshotFormat and JPEGQuality apply when capture_screenshot omits them
	ScreenshotFormat string
	JPEGQuality      int
}

// Router validates tool calls and routes them to the session registry or
// the screenshot pipeline. It also owns the preview table.
type Router struct {
	registry  *browser.Registry
	pipeline  *screenshot.Pipeline
	catalog   *tools.Registry
	previews  *previewTable
	publisher Publisher
	watcher   Watcher
	metrics   *Metrics
	log       *logging.Logger
	defaults  Defaults

	pageLocksMu sync.Mutex
	pageLocks   map[string]*sync.Mutex

	// pendingReload marks previews with a queued auto-refresh
	reloadMu      sync.Mutex
	pendingReload map[string]bool
	reloads       sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithPublisher sets the collaborator used for public previews.
func WithPublisher(p Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// WithWatcher sets the live-reload watcher notified for auto-refresh
// previews.
func WithWatcher(w Watcher) Option {
	return func(r *Router) { r.watcher = w }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) { r.log = l }
}

// WithDefaults overrides the preview defaults.
func WithDefaults(d Defaults) Option {
	return func(r *Router) { r.defaults = d }
}

// NewRouter creates a router over registry and pipeline and registers the
// full tool catalog.
func NewRouter(registry *browser.Registry, pipeline *screenshot.Pipeline, opts ...Option) *Router {
	r := &Router{
		registry:  registry,
		pipeline:  pipeline,
		catalog:   tools.NewRegistry(),
		previews:  newPreviewTable(),
		publisher: NopPublisher{},
		defaults: Defaults{
			Engine:   browser.EngineChromium,
			Viewport: browser.Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
			Timeout:  DefaultTimeout,
		},
		pageLocks:     make(map[string]*sync.Mutex),
		pendingReload: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Discard("router")
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	if r.defaults.Engine == "" {
		r.defaults.Engine = browser.EngineChromium
	}
	if r.defaults.Viewport.Width <= 0 || r.defaults.Viewport.Height <= 0 {
		r.defaults.Viewport = browser.Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if r.defaults.Timeout <= 0 {
		r.defaults.Timeout = DefaultTimeout
	}

	groups := [][]tools.Tool{
		r.previewTools(),
		r.navigationTools(),
		r.interactionTools(),
		r.captureTools(),
		r.debugTools(),
		r.automationTools(),
		declaredTools(),
	}
	for _, group := range groups {
		if err := r.catalog.Register(group...); err != nil {
			panic(err)
		}
	}
	return r
}

// Catalog returns every tool sorted by name.
func (r *Router) Catalog() []tools.Tool {
	return r.catalog.List()
}

// Dispatch runs the named tool with raw JSON arguments.
func (r *Router) Dispatch(ctx context.Context, name string, args json.RawMessage) (*tools.Result, error) {
	t, ok := r.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	started := time.Now()
	text, metadata, err := t.Execute(ctx, args)
	r.metrics.observe(name, started, err)
	if err != nil {
		r.log.Warnf("%s failed after %s: %v", name, time.Since(started).Round(time.Millisecond), err)
		return nil, err
	}

	r.log.Debugf("%s completed in %s", name, time.Since(started).Round(time.Millisecond))
	return tools.TextResult(text, metadata), nil
}

// Previews returns the open preview sessions in opening order.
func (r *Router) Previews() []PreviewSession {
	return r.previews.list()
}

// Close closes every open preview.
func (r *Router) Close(ctx context.Context) error {
	var errs []string
	for _, p := range r.previews.list() {
		if err := r.closePreview(ctx, p.ID); err != nil {
			errs = append(errs, err.Error())
		}
	}
	r.reloads.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("closing previews: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HandleFileChange queues a reload of every auto-refresh preview whose
// project directory contains path. Reloads run on their own goroutines so
// a long tool call on a page never stalls the watcher; changes arriving
// while a preview's reload is still queued are coalesced into it.
func (r *Router) HandleFileChange(path string) {
	for _, p := range r.previews.list() {
		if !p.AutoRefresh || !within(p.ProjectPath, path) {
			continue
		}

		r.reloadMu.Lock()
		if r.pendingReload[p.ID] {
			r.reloadMu.Unlock()
			continue
		}
		r.pendingReload[p.ID] = true
		r.reloadMu.Unlock()

		r.reloads.Add(1)
		go r.autoRefresh(p, path)
	}
}

func (r *Router) autoRefresh(p PreviewSession, path string) {
	defer r.reloads.Done()

	unlock := r.lockPage(p.PageID)
	defer unlock()

	// Changes seen from here on need a fresh reload.
	r.reloadMu.Lock()
	delete(r.pendingReload, p.ID)
	r.reloadMu.Unlock()

	h, ok := r.registry.Page(p.PageID)
	if !ok {
		r.forgetPage(p.PageID)
		return
	}
	if err := h.Page.Reload(browser.NavigateOptions{}); err != nil {
		r.log.Warnf("auto-refresh of %s after change to %s failed: %v", p.ID, path, err)
		return
	}
	r.log.Debugf("auto-refreshed %s after change to %s", p.ID, path)
}

// within reports whether path is dir or lies below it. Relative paths are
// taken against the working directory.
func within(dir, path string) bool {
	if dir == "" {
		return false
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	if path, err = filepath.Abs(path); err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// lockPage serialises tool calls against one page.
func (r *Router) lockPage(pageID string) func() {
	r.pageLocksMu.Lock()
	mu, ok := r.pageLocks[pageID]
	if !ok {
		mu = &sync.Mutex{}
		r.pageLocks[pageID] = mu
	}
	r.pageLocksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (r *Router) forgetPage(pageID string) {
	r.pageLocksMu.Lock()
	delete(r.pageLocks, pageID)
	r.pageLocksMu.Unlock()
}

// target selects the page a call operates on. An empty PreviewID means the
// registry's current page.
type target struct {
	PreviewID string `json:"previewId"`
}

// resolvePage maps a target to a registered page.
func (r *Router) resolvePage(t target) (*browser.PageHandle, error) {
	if t.PreviewID != "" {
		p, ok := r.previews.get(t.PreviewID)
		if !ok {
			return nil, previewNotFound(t.PreviewID)
		}
		h, ok := r.registry.Page(p.PageID)
		if !ok {
			return nil, fmt.Errorf("page for preview %q %w", t.PreviewID, browser.ErrNotFound)
		}
		return h, nil
	}

	h, ok := r.registry.CurrentPage()
	if !ok {
		return nil, ErrNoActivePage
	}
	return h, nil
}

// pageFunc is a tool body that runs against a resolved page.
type pageFunc func(ctx context.Context, page browser.Page, args json.RawMessage) (string, map[string]interface{}, error)

// onPage resolves the target page before validating the tool's own
// arguments, so a call without an active page fails with ErrNoActivePage
// regardless of them, then runs fn while holding the page's lock. A
// malformed previewId is only reported once a page exists.
func (r *Router) onPage(fn pageFunc) execFunc {
	return func(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
		var t target
		if err := tools.DecodeArgs(args, &t); err != nil {
			if _, ok := r.registry.CurrentPage(); !ok {
				return "", nil, ErrNoActivePage
			}
			return "", nil, err
		}
		h, err := r.resolvePage(t)
		if err != nil {
			return "", nil, err
		}

		unlock := r.lockPage(h.ID)
		defer unlock()
		return fn(ctx, h.Page, args)
	}
}

type execFunc func(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error)

// tool is a catalog entry backed by a function.
type tool struct {
	name        string
	description string
	schema      map[string]interface{}
	exec        execFunc
}

func (t *tool) Name() string                   { return t.name }
func (t *tool) Description() string            { return t.description }
func (t *tool) Schema() map[string]interface{} { return t.schema }

func (t *tool) Execute(ctx context.Context, args json.RawMessage) (string, map[string]interface{}, error) {
	return t.exec(ctx, args)
}

// pageSchema adds the optional previewId selector to a page-bound tool's
// schema.
func pageSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	properties["previewId"] = map[string]interface{}{
		"type":        "string",
		"description": "Preview to operate on. Defaults to the most recently opened page.",
	}
	return tools.BaseToolSchema(properties, required)
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func propDefault(typ, description string, def interface{}) map[string]interface{} {
	p := prop(typ, description)
	p["default"] = def
	return p
}

func enumProp(description string, def string, values ...string) map[string]interface{} {
	p := map[string]interface{}{
		"type":        "string",
		"enum":        values,
		"description": description,
	}
	if def != "" {
		p["default"] = def
	}
	return p
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
