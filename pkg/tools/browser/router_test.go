package browser

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/browser/browsertest"
	"github.com/entrhq/webpreview/pkg/screenshot"
	"github.com/entrhq/webpreview/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router   *Router
	driver   *browsertest.Driver
	registry *browser.Registry
	pipeline *screenshot.Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	driver := browsertest.NewDriver()
	registry := browser.NewRegistry(driver)
	pipeline := screenshot.New(filepath.Join(t.TempDir(), "screenshots"))
	t.Cleanup(func() { _ = registry.Shutdown() })

	opts = append([]Option{WithDefaults(Defaults{Headless: true})}, opts...)
	return &fixture{
		router:   NewRouter(registry, pipeline, opts...),
		driver:   driver,
		registry: registry,
		pipeline: pipeline,
	}
}

func (f *fixture) call(t *testing.T, name, args string) (*tools.Result, error) {
	t.Helper()
	return f.router.Dispatch(context.Background(), name, json.RawMessage(args))
}

func (f *fixture) mustCall(t *testing.T, name, args string) *tools.Result {
	t.Helper()
	res, err := f.call(t, name, args)
	require.NoError(t, err, name)
	return res
}

// open opens a preview and returns the fake page behind it.
func (f *fixture) open(t *testing.T, url string) *browsertest.Page {
	t.Helper()
	f.mustCall(t, "preview_open", `{"url":"`+url+`"}`)
	page := f.driver.LastPage()
	require.NotNil(t, page)
	return page
}

func TestDispatch_UnknownTool(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(t, "teleport", `{}`)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), "teleport")
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)
	catalog := f.router.Catalog()
	assert.Len(t, catalog, 33)

	seen := map[string]bool{}
	for _, tool := range catalog {
		assert.False(t, seen[tool.Name()], "duplicate %s", tool.Name())
		seen[tool.Name()] = true
		assert.NotEmpty(t, tool.Description(), tool.Name())
		assert.Equal(t, "object", tool.Schema()["type"], tool.Name())
	}

	for _, name := range []string{"preview_open", "interact_wait", "capture_compare", "debug_evaluate", "automate_test", "generate_documentation"} {
		assert.True(t, seen[name], name)
	}
}

var pageBoundTools = []string{
	"navigate_to", "navigate_back", "navigate_forward", "navigate_reload",
	"interact_click", "interact_type", "interact_hover", "interact_select", "interact_scroll", "interact_wait",
	"capture_screenshot", "capture_element_info",
	"debug_evaluate", "debug_highlight", "debug_accessibility", "debug_performance",
	"automate_sequence", "automate_form_fill", "automate_test",
}

func TestPageTools_NoActivePage(t *testing.T) {
	f := newFixture(t)
	for _, name := range pageBoundTools {
		t.Run(name, func(t *testing.T) {
			_, err := f.call(t, name, `{}`)
			require.ErrorIs(t, err, ErrNoActivePage)
			assert.Equal(t, "No active page. Please open a preview first.", err.Error())

			_, err = f.call(t, name, `{"previewId":5}`)
			assert.ErrorIs(t, err, ErrNoActivePage, "malformed previewId without any page")
		})
	}
}

func TestPageTools_MalformedPreviewIDWithPage(t *testing.T) {
	f := newFixture(t)
	f.open(t, "https://example.test")

	_, err := f.call(t, "navigate_reload", `{"previewId":5}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestPageTools_UnknownPreviewID(t *testing.T) {
	f := newFixture(t)
	f.open(t, "http://localhost:3000")

	_, err := f.call(t, "navigate_back", `{"previewId":"preview_99"}`)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestPreviewOpen(t *testing.T) {
	f := newFixture(t)

	res := f.mustCall(t, "preview_open", `{"url":"http://localhost:3000"}`)
	assert.Equal(t, "Preview opened successfully!\n\nPreview ID: preview_1\nURL: http://localhost:3000\nMode: local\n"+
		"Public URL: http://localhost:3000\nBrowser: chromium\nAuto-refresh: true", res.Text())
	assert.Equal(t, "preview_1", res.Metadata["previewId"])

	assert.Equal(t, "page_preview_1", f.registry.CurrentPageID())
	_, ok := f.registry.Browser("browser_preview_1")
	assert.True(t, ok)
	ctxHandle, ok := f.registry.Context("context_preview_1")
	require.True(t, ok)
	assert.Equal(t, &browser.Viewport{Width: 1280, Height: 720}, ctxHandle.Options.Viewport)

	page := f.driver.LastPage()
	assert.Equal(t, []string{"goto http://localhost:3000"}, page.Calls())

	browsers := f.driver.Browsers()
	require.Len(t, browsers, 1)
	assert.Equal(t, browser.EngineChromium, browsers[0].Engine)
	assert.True(t, browsers[0].Headless)

	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000","browserType":"firefox","headless":false,"viewport":{"width":800}}`)
	assert.Equal(t, "page_preview_2", f.registry.CurrentPageID())
	ctxHandle, ok = f.registry.Context("context_preview_2")
	require.True(t, ok)
	assert.Equal(t, &browser.Viewport{Width: 800, Height: 720}, ctxHandle.Options.Viewport)
	assert.Equal(t, browser.EngineFirefox, f.driver.Browsers()[1].Engine)
	assert.False(t, f.driver.Browsers()[1].Headless)
}

func TestPreviewOpen_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		args string
	}{
		{"missing url", `{}`},
		{"bad mode", `{"url":"http://x","mode":"secret"}`},
		{"bad engine", `{"url":"http://x","browserType":"netscape"}`},
		{"wrong type", `{"url":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.call(t, "preview_open", tt.args)
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
	assert.Empty(t, f.router.Previews())
}

func TestPreviewOpen_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("no display")
	f.driver.LaunchErr = cause

	_, err := f.call(t, "preview_open", `{"url":"http://localhost:3000"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open preview")
	assert.True(t, browser.IsLaunchError(err))
	assert.ErrorIs(t, err, cause)

	assert.Empty(t, f.router.Previews())
	assert.Equal(t, browser.Stats{}, f.registry.Stats())
}

func TestPreviewClose(t *testing.T) {
	f := newFixture(t)
	f.open(t, "http://localhost:3000")

	res := f.mustCall(t, "preview_close", `{"previewId":"preview_1"}`)
	assert.Equal(t, "Preview preview_1 closed successfully", res.Text())
	assert.Equal(t, 0, f.driver.LiveBrowsers())
	assert.Equal(t, browser.Stats{}, f.registry.Stats())
	assert.Empty(t, f.router.Previews())

	_, err := f.call(t, "navigate_reload", `{}`)
	assert.ErrorIs(t, err, ErrNoActivePage)

	_, err = f.call(t, "preview_close", `{"previewId":"preview_1"}`)
	assert.ErrorIs(t, err, browser.ErrNotFound)

	_, err = f.call(t, "preview_close", `{}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestPreviewList(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "No active previews", f.mustCall(t, "preview_list", `{}`).Text())

	f.open(t, "http://localhost:3000")
	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000","mode":"public"}`)

	res := f.mustCall(t, "preview_list", ``)
	assert.Equal(t, "Active previews:\n\n- preview_1: http://localhost:3000 (local)\n- preview_2: http://localhost:4000 (public)", res.Text())
	assert.Equal(t, 2, res.Metadata["count"])
}

func TestPreviewIDsAreNotReused(t *testing.T) {
	f := newFixture(t)
	f.open(t, "http://a")
	f.mustCall(t, "preview_close", `{"previewId":"preview_1"}`)

	res := f.mustCall(t, "preview_open", `{"url":"http://b"}`)
	assert.Equal(t, "preview_2", res.Metadata["previewId"])
}

func TestPreviewRefresh(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, "preview_refresh", `{"previewId":"preview_7"}`)
	assert.ErrorIs(t, err, browser.ErrNotFound)

	page := f.open(t, "http://localhost:3000")
	res := f.mustCall(t, "preview_refresh", `{"previewId":"preview_1"}`)
	assert.Equal(t, "Preview preview_1 refreshed", res.Text())
	assert.Contains(t, page.Calls(), "reload")

	require.NoError(t, f.registry.ClosePage("page_preview_1"))
	_, err = f.call(t, "preview_refresh", `{"previewId":"preview_1"}`)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

type recordingPublisher struct {
	mu          sync.Mutex
	published   []string
	unpublished []string
	err         error
}

func (p *recordingPublisher) Publish(_ context.Context, localURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, localURL)
	return "https://share.example.test/" + localURL[len("http://"):], nil
}

func (p *recordingPublisher) Unpublish(_ context.Context, publicURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unpublished = append(p.unpublished, publicURL)
	return nil
}

func TestPreview_PublicMode(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, WithPublisher(pub))

	res := f.mustCall(t, "preview_open", `{"url":"http://localhost:3000","mode":"public"}`)
	assert.Contains(t, res.Text(), "Public URL: https://share.example.test/localhost:3000")
	assert.Equal(t, []string{"http://localhost:3000"}, pub.published)

	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000"}`)
	assert.Len(t, pub.published, 1, "local previews are not published")

	f.mustCall(t, "preview_close", `{"previewId":"preview_1"}`)
	assert.Equal(t, []string{"https://share.example.test/localhost:3000"}, pub.unpublished)
}

func TestPreview_PublishFailureClosesBrowser(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("proxy down")}
	f := newFixture(t, WithPublisher(pub))

	_, err := f.call(t, "preview_open", `{"url":"http://localhost:3000","mode":"public"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy down")
	assert.Equal(t, 0, f.driver.LiveBrowsers())
	assert.Empty(t, f.router.Previews())
}

func TestSubdomainPublisher(t *testing.T) {
	p := &SubdomainPublisher{
		Domain: "preview.example.test",
		now:    func() time.Time { return time.UnixMilli(1700000000123) },
	}
	got, err := p.Publish(context.Background(), "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "https://preview-1700000000123.preview.example.test", got)
	assert.NoError(t, p.Unpublish(context.Background(), got))

	empty := &SubdomainPublisher{}
	got, err = empty.Publish(context.Background(), "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", got)
}

type recordingWatcher struct {
	mu    sync.Mutex
	paths []string
}

func (w *recordingWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
	return nil
}

func TestPreview_AutoRefresh(t *testing.T) {
	watcher := &recordingWatcher{}
	f := newFixture(t, WithWatcher(watcher))
	project := t.TempDir()

	page := f.open(t, "http://localhost:3000")
	assert.Empty(t, watcher.paths, "no project path, nothing to watch")

	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000","projectPath":`+quote(project)+`}`)
	watched := f.driver.LastPage()
	assert.Equal(t, []string{project}, watcher.paths)

	f.mustCall(t, "preview_open", `{"url":"http://localhost:5000","autoRefresh":false,"projectPath":`+quote(project)+`}`)
	unwatched := f.driver.LastPage()
	assert.Len(t, watcher.paths, 1)

	f.router.HandleFileChange(filepath.Join(project, "index.html"))
	f.router.reloads.Wait()
	assert.Contains(t, watched.Calls(), "reload")
	assert.NotContains(t, unwatched.Calls(), "reload")
	assert.NotContains(t, page.Calls(), "reload")

	f.router.HandleFileChange("/somewhere/else.css")
	f.router.reloads.Wait()
	assert.Equal(t, 1, countCalls(watched.Calls(), "reload"))
}

func TestPreview_AutoRefreshRelativeProjectPath(t *testing.T) {
	watcher := &recordingWatcher{}
	f := newFixture(t, WithWatcher(watcher))

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "site"), 0o755))
	t.Chdir(root)
	abs, err := filepath.Abs("site")
	require.NoError(t, err)

	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000","projectPath":"site"}`)
	page := f.driver.LastPage()
	assert.Equal(t, []string{abs}, watcher.paths)

	f.router.HandleFileChange(filepath.Join(abs, "index.html"))
	f.router.reloads.Wait()
	assert.Equal(t, 1, countCalls(page.Calls(), "reload"))
}

func TestPreview_AutoRefreshDoesNotWaitForPageTools(t *testing.T) {
	f := newFixture(t, WithWatcher(&recordingWatcher{}))
	project := t.TempDir()
	f.mustCall(t, "preview_open", `{"url":"http://localhost:4000","projectPath":`+quote(project)+`}`)
	page := f.driver.LastPage()

	waiting := make(chan struct{})
	go func() {
		defer close(waiting)
		_, _ = f.call(t, "interact_wait", `{"type":"timeout","value":"1000"}`)
	}()
	previewID := f.router.Previews()[0].ID
	require.Eventually(t, func() bool { return pageLocked(f.router, previewID) }, time.Second, 5*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		f.router.HandleFileChange(filepath.Join(project, "app.js"))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond, "file changes must not wait for the page lock")

	<-waiting
	f.router.reloads.Wait()
	assert.Equal(t, 1, countCalls(page.Calls(), "reload"), "queued changes coalesce into one reload")
}

// pageLocked reports whether a tool call currently holds the page lock of
// the preview.
func pageLocked(r *Router, previewID string) bool {
	p, ok := r.previews.get(previewID)
	if !ok {
		return false
	}
	r.pageLocksMu.Lock()
	mu, ok := r.pageLocks[p.PageID]
	r.pageLocksMu.Unlock()
	if !ok {
		return false
	}
	if mu.TryLock() {
		mu.Unlock()
		return false
	}
	return true
}

func TestProjectPath(t *testing.T) {
	tests := []struct {
		explicit, url, want string
	}{
		{"/srv/app/", "http://localhost", "/srv/app"},
		{"/srv/app/../site", "http://localhost", "/srv/site"},
		{"", "file:///srv/site/index.html", "/srv/site"},
		{"", "http://localhost:3000", ""},
		{"", "::not a url", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, projectPath(tt.explicit, tt.url), tt.url)
	}
}

func TestRouter_Close(t *testing.T) {
	f := newFixture(t)
	f.open(t, "http://a")
	f.open(t, "http://b")

	require.NoError(t, f.router.Close(context.Background()))
	assert.Empty(t, f.router.Previews())
	assert.Equal(t, 0, f.driver.LiveBrowsers())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newFixture(t, WithMetrics(m))

	f.open(t, "http://localhost:3000")
	_, _ = f.call(t, "navigate_to", `{}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("preview_open", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("navigate_to", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.previews))

	f.mustCall(t, "preview_close", `{"previewId":"preview_1"}`)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.previews))

	count, err := testutil.GatherAndCount(reg, "webpreview_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNavigate(t *testing.T) {
	f := newFixture(t)
	page := f.open(t, "http://localhost:3000")

	res := f.mustCall(t, "navigate_to", `{"url":"http://localhost:3000/about","waitUntil":"networkidle"}`)
	assert.Equal(t, "Navigated to: http://localhost:3000/about", res.Text())

	assert.Equal(t, "Navigated back", f.mustCall(t, "navigate_back", `{}`).Text())
	assert.Equal(t, "http://localhost:3000", page.URL())
	assert.Equal(t, "Navigated forward", f.mustCall(t, "navigate_forward", `{}`).Text())
	assert.Equal(t, "http://localhost:3000/about", page.URL())

	assert.Equal(t, "Page reloaded", f.mustCall(t, "navigate_reload", `{}`).Text())
	assert.Equal(t, "Page hard reloaded", f.mustCall(t, "navigate_reload", `{"hardReload":true}`).Text())

	_, err := f.call(t, "navigate_to", `{"url":"http://x","waitUntil":"whenever"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
	_, err = f.call(t, "navigate_to", `{}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestNavigate_ExplicitPreview(t *testing.T) {
	f := newFixture(t)
	first := f.open(t, "http://a")
	second := f.open(t, "http://b")

	f.mustCall(t, "navigate_to", `{"url":"http://a/next","previewId":"preview_1"}`)
	assert.Equal(t, "http://a/next", first.URL())
	assert.Equal(t, "http://b", second.URL())
}

func TestInteract(t *testing.T) {
	f := newFixture(t)
	page := f.open(t, "http://localhost:3000")
	page.SetMatches("#submit", 1)
	page.SetMatches("#email", 1)
	page.SetMatches("#menu", 1)
	page.SetMatches("#colour", 1)

	assert.Equal(t, "Clicked on: #submit", f.mustCall(t, "interact_click", `{"selector":"#submit","button":"right","clickCount":2}`).Text())
	assert.Contains(t, page.Calls(), "click #submit right x2")

	_, err := f.call(t, "interact_click", `{"selector":"#missing"}`)
	assert.Error(t, err)
	_, err = f.call(t, "interact_click", `{"selector":"#submit","button":"thumb"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	f.mustCall(t, "interact_type", `{"selector":"#email","text":"a@"}`)
	f.mustCall(t, "interact_type", `{"selector":"#email","text":"b.test"}`)
	assert.Equal(t, "a@b.test", page.Values["#email"])
	res := f.mustCall(t, "interact_type", `{"selector":"#email","text":"fresh","clear":true}`)
	assert.Equal(t, `Typed "fresh" into: #email`, res.Text())
	assert.Equal(t, "fresh", page.Values["#email"])
	_, err = f.call(t, "interact_type", `{"selector":"#email"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)

	assert.Equal(t, "Hovered over: #menu", f.mustCall(t, "interact_hover", `{"selector":"#menu"}`).Text())

	res = f.mustCall(t, "interact_select", `{"selector":"#colour","value":["red","blue"]}`)
	assert.Equal(t, `Selected "red, blue" in: #colour`, res.Text())
	res = f.mustCall(t, "interact_select", `{"selector":"#colour","value":"green"}`)
	assert.Equal(t, `Selected "green" in: #colour`, res.Text())
}

func TestScrollDelta(t *testing.T) {
	tests := []struct {
		direction string
		dx, dy    float64
		ok        bool
	}{
		{"up", 0, -300, true},
		{"down", 0, 300, true},
		{"left", -300, 0, true},
		{"right", 300, 0, true},
		{"diagonal", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.direction, func(t *testing.T) {
			dx, dy, ok := scrollDelta(tt.direction, 300)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.dx, dx)
			assert.Equal(t, tt.dy, dy)
		})
	}
}

func TestInteractScroll(t *testing.T) {
	f := newFixture(t)
	page := f.open(t, "http://localhost:3000")
	page.SetMatches("#list", 1)

	var gotSelector string
	var gotArg any
	page.EvaluateFunc = func(selector, _ string, arg any) (any, error) {
		gotSelector, gotArg = selector, arg
		return nil, nil
	}

	res := f.mustCall(t, "interact_scroll", `{"direction":"down"}`)
	assert.Equal(t, "Scrolled down by 300px", res.Text())
	assert.Equal(t, "", gotSelector)
	assert.Equal(t, map[string]interface{}{"x": 0.0, "y": 300.0}, gotArg)

	res = f.mustCall(t, "interact_scroll", `{"direction":"left","amount":120,"selector":"#list"}`)
	assert.Equal(t, "Scrolled left by 120px in #list", res.Text())
	assert.Equal(t, "#list", gotSelector)
	assert.Equal(t, map[string]interface{}{"x": -120.0, "y": 0.0}, gotArg)

	_, err := f.call(t, "interact_scroll", `{"direction":"sideways"}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestInteractWait(t *testing.T) {
	f := newFixture(t)
	page := f.open(t, "http://localhost:3000")
	page.SetMatches("#ready", 1)

	t.Run("timeout waits at least the requested time", func(t *testing.T) {
		before := page.Calls()
		start := time.Now()
		res := f.mustCall(t, "interact_wait", `{"type":"timeout","value":"500"}`)
		assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, "Waited for 500ms", res.Text())
		assert.Equal(t, before, page.Calls(), "no page side effects")
	})

	t.Run("numeric value", func(t *testing.T) {
		res := f.mustCall(t, "interact_wait", `{"type":"timeout","value":5}`)
		assert.Equal(t, "Waited for 5ms", res.Text())
	})

	t.Run("selector", func(t *testing.T) {
		res := f.mustCall(t, "interact_wait", `{"type":"selector","value":"#ready"}`)
		assert.Equal(t, `Waited for selector "#ready" to be visible`, res.Text())

		_, err := f.call(t, "interact_wait", `{"type":"selector","value":"#ready","state":"hidden","timeout":10}`)
		assert.Error(t, err)

		_, err = f.call(t, "interact_wait", `{"type":"selector","value":"#ready","state":"sleepy"}`)
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("function", func(t *testing.T) {
		res := f.mustCall(t, "interact_wait", `{"type":"function","value":"() => window.ready"}`)
		assert.Equal(t, "Waited for function to return true", res.Text())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.call(t, "interact_wait", `{"type":"vibes","value":"x"}`)
		assert.ErrorIs(t, err, ErrUnknownWaitType)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := f.call(t, "interact_wait", `{"type":"timeout","value":"soon"}`)
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})
}

func TestDeclaredTools(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"capture_video", "automate_record", "generate_selectors", "generate_test_data",
		"generate_page_object", "generate_api_calls", "generate_documentation"} {
		_, err := f.call(t, name, `{}`)
		assert.ErrorIs(t, err, ErrNotAvailable, name)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func countCalls(calls []string, want string) int {
	n := 0
	for _, c := range calls {
		if c == want {
			n++
		}
	}
	return n
}
