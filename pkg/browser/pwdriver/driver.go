// Package pwdriver implements browser.Driver on top of Playwright.
package pwdriver

import (
	"fmt"
	"io"
	"sync"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/playwright-community/playwright-go"
)

// Options configures the Playwright runtime.
type Options struct {
	// Install downloads the driver and browsers before the first launch
	Install bool

	// Browsers limits installation to the named engines (all when empty)
	Browsers []string

	// Output receives installer and driver output. Defaults to io.Discard so
	// nothing reaches stdout, which the RPC transport owns.
	Output io.Writer
}

// Driver launches Playwright-controlled browsers. The Playwright runtime is
// started lazily on first Launch.
type Driver struct {
	opts Options

	mu sync.Mutex
	pw *playwright.Playwright
}

// New returns a driver that starts Playwright on demand.
func New(opts Options) *Driver {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Driver{opts: opts}
}

func (d *Driver) runOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		Verbose:  false,
		Stdout:   d.opts.Output,
		Stderr:   d.opts.Output,
		Browsers: d.opts.Browsers,
	}
}

// Start installs (when configured) and runs Playwright. It is safe to call
// more than once.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startLocked()
}

func (d *Driver) startLocked() error {
	if d.pw != nil {
		return nil
	}

	opts := d.runOptions()
	if d.opts.Install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	return nil
}

// Launch starts a browser of the requested engine.
func (d *Driver) Launch(engine browser.Engine, opts browser.LaunchOptions) (browser.Browser, error) {
	d.mu.Lock()
	if err := d.startLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	pw := d.pw
	d.mu.Unlock()

	var bt playwright.BrowserType
	switch engine {
	case browser.EngineChromium:
		bt = pw.Chromium
	case browser.EngineFirefox:
		bt = pw.Firefox
	case browser.EngineWebKit:
		bt = pw.WebKit
	default:
		return nil, fmt.Errorf("%w: %q", browser.ErrInvalidEngine, engine)
	}

	headless := opts.Headless
	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return nil, err
	}
	return &pwBrowser{b: b}, nil
}

// Close stops the Playwright runtime.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

type pwBrowser struct {
	b playwright.Browser
}

func (b *pwBrowser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	contextOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport != nil {
		contextOpts.Viewport = &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		}
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.Locale != "" {
		contextOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		contextOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}

	c, err := b.b.NewContext(contextOpts)
	if err != nil {
		return nil, err
	}
	return &pwContext{c: c}, nil
}

func (b *pwBrowser) Close() error {
	return b.b.Close()
}

type pwContext struct {
	c playwright.BrowserContext
}

func (c *pwContext) NewPage() (browser.Page, error) {
	p, err := c.c.NewPage()
	if err != nil {
		return nil, err
	}
	return &pwPage{p: p}, nil
}

func (c *pwContext) Close() error {
	return c.c.Close()
}

var (
	_ browser.Driver  = (*Driver)(nil)
	_ browser.Browser = (*pwBrowser)(nil)
	_ browser.Context = (*pwContext)(nil)
)
