// Package browsertest provides an in-memory browser.Driver for tests.
//
// Pages render as solid-colour rasters sized to their context viewport, keep
// a navigation history, and answer selector queries from a table the test
// controls. No browser process is ever started.
package browsertest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
)

// Default raster dimensions for pages whose context sets no viewport.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// ErrClosed is returned by operations on a closed page, context or browser.
var ErrClosed = errors.New("target closed")

// Driver is a fake browser.Driver.
type Driver struct {
	mu sync.Mutex

	// LaunchErr, when set, fails every Launch.
	LaunchErr error

	// Fill is the colour of every captured raster.
	Fill color.Color

	// FullPageHeight is the document height used for full-page captures.
	// Zero means twice the viewport height.
	FullPageHeight int

	browsers []*Browser
	pages    []*Page
	closed   bool
}

// NewDriver returns a driver rendering white pages.
func NewDriver() *Driver {
	return &Driver{Fill: color.White}
}

func (d *Driver) Launch(engine browser.Engine, opts browser.LaunchOptions) (browser.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	b := &Browser{driver: d, Engine: engine, Headless: opts.Headless}
	d.browsers = append(d.browsers, b)
	return b, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Browsers returns every browser launched so far, closed or not.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// LiveBrowsers counts browsers that have not been closed.
func (d *Driver) LiveBrowsers() int {
	n := 0
	for _, b := range d.Browsers() {
		if !b.IsClosed() {
			n++
		}
	}
	return n
}

// Pages returns every page created so far, closed or not.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.pages...)
}

// LastPage returns the most recently created page, or nil.
func (d *Driver) LastPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil
	}
	return d.pages[len(d.pages)-1]
}

// Browser is a fake browser.Browser.
type Browser struct {
	driver   *Driver
	Engine   browser.Engine
	Headless bool

	mu     sync.Mutex
	closed bool
}

func (b *Browser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	if b.IsClosed() {
		return nil, ErrClosed
	}
	return &Context{browser: b, Options: opts}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (b *Browser) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Context is a fake browser.Context.
type Context struct {
	browser *Browser
	Options browser.ContextOptions

	mu     sync.Mutex
	closed bool
}

func (c *Context) NewPage() (browser.Page, error) {
	if c.IsClosed() {
		return nil, ErrClosed
	}

	width, height := DefaultWidth, DefaultHeight
	if vp := c.Options.Viewport; vp != nil {
		width, height = vp.Width, vp.Height
	}

	d := c.browser.driver
	p := &Page{
		driver:        d,
		width:         width,
		height:        height,
		url:           "about:blank",
		Selectors:     make(map[string]int),
		AriaSnapshots: make(map[string]string),
		Values:        make(map[string]string),
	}

	d.mu.Lock()
	d.pages = append(d.pages, p)
	d.mu.Unlock()
	return p, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (c *Context) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Page is a fake browser.Page.
type Page struct {
	driver *Driver
	width  int
	height int

	mu      sync.Mutex
	url     string
	history []string
	cursor  int
	closed  bool
	calls   []string

	// Selectors maps a selector to the number of elements it matches.
	// Unlisted selectors match nothing.
	Selectors map[string]int

	// Values holds the text entered into each selector.
	Values map[string]string

	// EvaluateFunc answers Evaluate and EvaluateOn. A nil func returns nil.
	EvaluateFunc func(selector, expression string, arg any) (any, error)

	// AriaSnapshots maps a selector to its ARIA snapshot.
	AriaSnapshots map[string]string

	// WaitErr, when set, fails WaitForSelector and WaitForFunction.
	WaitErr error

	// ScreenshotErr, when set, fails both screenshot methods.
	ScreenshotErr error

	onConsole []func(browser.ConsoleMessage)
	onError   []func(error)
	onNetwork []func(browser.NetworkEvent)
}

func (p *Page) record(format string, args ...any) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// Calls returns the operations performed on the page in order.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// SetMatches sets how many elements selector matches.
func (p *Page) SetMatches(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Selectors[selector] = n
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "Fake: " + p.url, nil
}

func (p *Page) Goto(url string, opts browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if len(p.history) > 0 {
		p.history = p.history[:p.cursor+1]
	}
	p.history = append(p.history, url)
	p.cursor = len(p.history) - 1
	p.url = url
	p.record("goto %s", url)
	p.emitNetworkLocked(browser.NetworkEvent{Method: "GET", URL: url, ResourceType: "document", Status: 200})
	return nil
}

func (p *Page) GoBack(opts browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor > 0 {
		p.cursor--
		p.url = p.history[p.cursor]
	}
	p.record("back")
	return nil
}

func (p *Page) GoForward(opts browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor < len(p.history)-1 {
		p.cursor++
		p.url = p.history[p.cursor]
	}
	p.record("forward")
	return nil
}

func (p *Page) Reload(opts browser.NavigateOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.record("reload")
	return nil
}

func (p *Page) requireLocked(selector string) error {
	if p.closed {
		return ErrClosed
	}
	if p.Selectors[selector] == 0 {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}

func (p *Page) Click(selector string, opts browser.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.record("click %s %s x%d", selector, opts.Button, opts.ClickCount)
	return nil
}

func (p *Page) Fill(selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.Values[selector] = value
	p.record("fill %s", selector)
	return nil
}

func (p *Page) Type(selector, text string, delay float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.Values[selector] += text
	p.record("type %s", selector)
	return nil
}

func (p *Page) Hover(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return err
	}
	p.record("hover %s", selector)
	return nil
}

func (p *Page) SelectOption(selector string, values []string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return nil, err
	}
	if len(values) > 0 {
		p.Values[selector] = values[0]
	}
	p.record("select %s %v", selector, values)
	return values, nil
}

func (p *Page) WaitForSelector(selector string, state browser.WaitState, timeout float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait selector %s %s", selector, state)
	if p.WaitErr != nil {
		return p.WaitErr
	}
	present := p.Selectors[selector] > 0
	switch state {
	case browser.StateHidden, browser.StateDetached:
		if present {
			return fmt.Errorf("timeout %.0fms exceeded waiting for %q to be %s", timeout, selector, state)
		}
	default:
		if !present {
			return fmt.Errorf("timeout %.0fms exceeded waiting for %q to be %s", timeout, selector, state)
		}
	}
	return nil
}

func (p *Page) WaitForTimeout(ms float64) {
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
}

func (p *Page) WaitForFunction(expression string, timeout float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait function")
	return p.WaitErr
}

func (p *Page) Evaluate(expression string, arg any) (any, error) {
	return p.EvaluateOn("", expression, arg)
}

func (p *Page) EvaluateOn(selector, expression string, arg any) (any, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if selector != "" {
		if err := p.requireLocked(selector); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.record("evaluate on %s", selector)
	} else {
		p.record("evaluate")
	}
	fn := p.EvaluateFunc
	p.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(selector, expression, arg)
}

func (p *Page) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.Selectors[selector], nil
}

func (p *Page) AriaSnapshot(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap, ok := p.AriaSnapshots[selector]; ok {
		return snap, nil
	}
	return "", fmt.Errorf("no aria snapshot for %q", selector)
}

func (p *Page) Screenshot(opts browser.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}

	height := p.height
	if opts.FullPage {
		height = p.driver.FullPageHeight
		if height == 0 {
			height = p.height * 2
		}
	}
	p.record("screenshot")
	return p.driver.render(p.width, height, opts)
}

func (p *Page) ElementScreenshot(selector string, opts browser.ScreenshotOptions) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireLocked(selector); err != nil {
		return nil, err
	}
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.record("screenshot %s", selector)
	return p.driver.render(p.width/4, p.height/4, opts)
}

func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConsole = append(p.onConsole, fn)
}

func (p *Page) OnPageError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = append(p.onError, fn)
}

func (p *Page) OnNetwork(fn func(browser.NetworkEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNetwork = append(p.onNetwork, fn)
}

// EmitConsole delivers msg to every console subscriber.
func (p *Page) EmitConsole(msg browser.ConsoleMessage) {
	p.mu.Lock()
	handlers := append([]func(browser.ConsoleMessage){}, p.onConsole...)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

// EmitPageError delivers err to every page-error subscriber.
func (p *Page) EmitPageError(err error) {
	p.mu.Lock()
	handlers := append([]func(error){}, p.onError...)
	p.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

// EmitNetwork delivers ev to every network subscriber.
func (p *Page) EmitNetwork(ev browser.NetworkEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitNetworkLocked(ev)
}

func (p *Page) emitNetworkLocked(ev browser.NetworkEvent) {
	for _, fn := range p.onNetwork {
		fn(ev)
	}
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (d *Driver) render(width, height int, opts browser.ScreenshotOptions) ([]byte, error) {
	d.mu.Lock()
	fill := d.Fill
	d.mu.Unlock()
	if fill == nil {
		fill = color.White
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	switch opts.Format {
	case "jpeg":
		q := 90
		if opts.Quality != nil {
			q = *opts.Quality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var (
	_ browser.Driver  = (*Driver)(nil)
	_ browser.Browser = (*Browser)(nil)
	_ browser.Context = (*Context)(nil)
	_ browser.Page    = (*Page)(nil)
)
