package pwdriver

import (
	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/playwright-community/playwright-go"
)

type pwPage struct {
	p playwright.Page
}

var _ browser.Page = (*pwPage)(nil)

func (p *pwPage) URL() string {
	return p.p.URL()
}

func (p *pwPage) Title() (string, error) {
	return p.p.Title()
}

func gotoOptions(opts browser.NavigateOptions) playwright.PageGotoOptions {
	o := playwright.PageGotoOptions{}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		o.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		timeout := opts.Timeout
		o.Timeout = &timeout
	}
	return o
}

func (p *pwPage) Goto(url string, opts browser.NavigateOptions) error {
	_, err := p.p.Goto(url, gotoOptions(opts))
	return err
}

func (p *pwPage) GoBack(opts browser.NavigateOptions) error {
	g := gotoOptions(opts)
	_, err := p.p.GoBack(playwright.PageGoBackOptions{WaitUntil: g.WaitUntil, Timeout: g.Timeout})
	return err
}

func (p *pwPage) GoForward(opts browser.NavigateOptions) error {
	g := gotoOptions(opts)
	_, err := p.p.GoForward(playwright.PageGoForwardOptions{WaitUntil: g.WaitUntil, Timeout: g.Timeout})
	return err
}

func (p *pwPage) Reload(opts browser.NavigateOptions) error {
	g := gotoOptions(opts)
	_, err := p.p.Reload(playwright.PageReloadOptions{WaitUntil: g.WaitUntil, Timeout: g.Timeout})
	return err
}

func (p *pwPage) Click(selector string, opts browser.ClickOptions) error {
	o := playwright.PageClickOptions{}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		o.Button = &button
	}
	if opts.ClickCount > 0 {
		count := opts.ClickCount
		o.ClickCount = &count
	}
	if opts.Position != nil {
		o.Position = &playwright.Position{X: opts.Position.X, Y: opts.Position.Y}
	}
	return p.p.Click(selector, o)
}

func (p *pwPage) Fill(selector, value string) error {
	return p.p.Fill(selector, value)
}

func (p *pwPage) Type(selector, text string, delay float64) error {
	o := playwright.PageTypeOptions{}
	if delay > 0 {
		o.Delay = &delay
	}
	return p.p.Type(selector, text, o)
}

func (p *pwPage) Hover(selector string) error {
	return p.p.Hover(selector)
}

func (p *pwPage) SelectOption(selector string, values []string) ([]string, error) {
	return p.p.SelectOption(selector, playwright.SelectOptionValues{Values: &values})
}

func (p *pwPage) WaitForSelector(selector string, state browser.WaitState, timeout float64) error {
	o := playwright.PageWaitForSelectorOptions{}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		o.State = &s
	}
	if timeout > 0 {
		o.Timeout = &timeout
	}
	_, err := p.p.WaitForSelector(selector, o)
	return err
}

func (p *pwPage) WaitForTimeout(ms float64) {
	p.p.WaitForTimeout(ms)
}

func (p *pwPage) WaitForFunction(expression string, timeout float64) error {
	o := playwright.PageWaitForFunctionOptions{}
	if timeout > 0 {
		o.Timeout = &timeout
	}
	_, err := p.p.WaitForFunction(expression, nil, o)
	return err
}

func (p *pwPage) Evaluate(expression string, arg any) (any, error) {
	if arg == nil {
		return p.p.Evaluate(expression)
	}
	return p.p.Evaluate(expression, arg)
}

func (p *pwPage) EvaluateOn(selector, expression string, arg any) (any, error) {
	return p.p.Locator(selector).First().Evaluate(expression, arg)
}

func (p *pwPage) Count(selector string) (int, error) {
	return p.p.Locator(selector).Count()
}

func (p *pwPage) AriaSnapshot(selector string) (string, error) {
	return p.p.Locator(selector).First().AriaSnapshot()
}

func screenshotType(opts browser.ScreenshotOptions) (*playwright.ScreenshotType, *int) {
	format := opts.Format
	if format == "" {
		format = "png"
	}
	t := playwright.ScreenshotType(format)
	if format != "jpeg" {
		return &t, nil
	}
	return &t, opts.Quality
}

func (p *pwPage) Screenshot(opts browser.ScreenshotOptions) ([]byte, error) {
	t, quality := screenshotType(opts)
	fullPage := opts.FullPage
	return p.p.Screenshot(playwright.PageScreenshotOptions{
		FullPage: &fullPage,
		Type:     t,
		Quality:  quality,
	})
}

func (p *pwPage) ElementScreenshot(selector string, opts browser.ScreenshotOptions) ([]byte, error) {
	t, quality := screenshotType(opts)
	return p.p.Locator(selector).First().Screenshot(playwright.LocatorScreenshotOptions{
		Type:    t,
		Quality: quality,
	})
}

func (p *pwPage) OnConsole(fn func(browser.ConsoleMessage)) {
	p.p.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(browser.ConsoleMessage{Type: msg.Type(), Text: msg.Text()})
	})
}

func (p *pwPage) OnPageError(fn func(error)) {
	p.p.OnPageError(fn)
}

func (p *pwPage) OnNetwork(fn func(browser.NetworkEvent)) {
	p.p.OnResponse(func(resp playwright.Response) {
		req := resp.Request()
		fn(browser.NetworkEvent{
			Method:       req.Method(),
			URL:          resp.URL(),
			ResourceType: req.ResourceType(),
			Status:       resp.Status(),
		})
	})
	p.p.OnRequestFailed(func(req playwright.Request) {
		ev := browser.NetworkEvent{
			Method:       req.Method(),
			URL:          req.URL(),
			ResourceType: req.ResourceType(),
			Failure:      "request failed",
		}
		if err := req.Failure(); err != nil {
			ev.Failure = err.Error()
		}
		fn(ev)
	})
}

func (p *pwPage) Close() error {
	err := p.p.Close()
	if err != nil && p.p.IsClosed() {
		return nil
	}
	return err
}

func (p *pwPage) IsClosed() bool {
	return p.p.IsClosed()
}

