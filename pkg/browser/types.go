package browser

import (
	"fmt"
	"strings"
	"time"
)

// Engine identifies a browser engine the driver can launch.
type Engine string

const (
	EngineChromium Engine = "chromium"
	EngineFirefox  Engine = "firefox"
	EngineWebKit   Engine = "webkit"
)

// Engines lists every supported engine in catalog order.
var Engines = []Engine{EngineChromium, EngineFirefox, EngineWebKit}

// ParseEngine maps a caller-supplied name to an Engine. An empty name
// selects chromium.
func ParseEngine(name string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(name))) {
	case "", EngineChromium:
		return EngineChromium, nil
	case EngineFirefox:
		return EngineFirefox, nil
	case EngineWebKit:
		return EngineWebKit, nil
	default:
		return "", fmt.Errorf("%w: %q (must be 'chromium', 'firefox', or 'webkit')", ErrInvalidEngine, name)
	}
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool
}

// ContextOptions configures a browsing context. Zero values mean
// "driver default".
type ContextOptions struct {
	Viewport   *Viewport
	UserAgent  string
	Locale     string
	TimezoneID string
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means driver default)
	Timeout float64
}

// Point is a position in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Button specifies which mouse button to use (left, right, middle)
	Button string

	// ClickCount is the number of times to click
	ClickCount int

	// Position is relative to the element's top-left corner
	Position *Point
}

// WaitState is the element state awaited by WaitForSelector.
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateAttached WaitState = "attached"
	StateDetached WaitState = "detached"
)

// ScreenshotOptions configures a raster capture.
type ScreenshotOptions struct {
	// FullPage captures the entire scrollable document
	FullPage bool

	// Format is "png" or "jpeg"
	Format string

	// Quality applies to jpeg only (0-100)
	Quality *int
}

// ConsoleMessage is one message emitted through the page's console API.
type ConsoleMessage struct {
	Type string
	Text string
}

// NetworkEvent is one completed or failed request observed on a page.
type NetworkEvent struct {
	Method       string
	URL          string
	ResourceType string
	Status       int
	Failure      string
}

// Driver launches browser processes. It is the boundary to the external
// browser-control capability; the registry never talks to a browser in any
// other way.
type Driver interface {
	Launch(engine Engine, opts LaunchOptions) (Browser, error)

	// Close releases the driver itself after every browser is closed.
	Close() error
}

// Browser is one running browser process.
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing profile within a browser.
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single navigable document view.
type Page interface {
	URL() string
	Title() (string, error)

	Goto(url string, opts NavigateOptions) error
	GoBack(opts NavigateOptions) error
	GoForward(opts NavigateOptions) error
	Reload(opts NavigateOptions) error

	Click(selector string, opts ClickOptions) error
	Fill(selector, value string) error
	Type(selector, text string, delay float64) error
	Hover(selector string) error
	SelectOption(selector string, values []string) ([]string, error)

	WaitForSelector(selector string, state WaitState, timeout float64) error
	WaitForTimeout(ms float64)
	WaitForFunction(expression string, timeout float64) error

	// Evaluate runs expression in the page's main frame.
	Evaluate(expression string, arg any) (any, error)
	// EvaluateOn runs expression with the first element matching selector
	// as its first argument and arg as its second.
	EvaluateOn(selector, expression string, arg any) (any, error)
	Count(selector string) (int, error)
	AriaSnapshot(selector string) (string, error)

	Screenshot(opts ScreenshotOptions) ([]byte, error)
	// ElementScreenshot captures the first element matching selector.
	ElementScreenshot(selector string, opts ScreenshotOptions) ([]byte, error)

	OnConsole(fn func(ConsoleMessage))
	OnPageError(fn func(error))
	OnNetwork(fn func(NetworkEvent))

	Close() error
	IsClosed() bool
}

// BrowserHandle is a registered browser process.
type BrowserHandle struct {
	ID         string
	Engine     Engine
	Headless   bool
	Browser    Browser
	LaunchedAt time.Time
}

// ContextHandle is a registered browsing context owned by one browser.
type ContextHandle struct {
	ID        string
	BrowserID string
	Options   ContextOptions
	Context   Context
}

// PageHandle is a registered page owned by one context.
type PageHandle struct {
	ID        string
	ContextID string
	Page      Page
	CreatedAt time.Time
}

// Stats counts registered handles.
type Stats struct {
	Browsers int `json:"browsers"`
	Contexts int `json:"contexts"`
	Pages    int `json:"pages"`
}
