package browser

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/logging"
)

// Registry owns every browser, context and page launched through its driver,
// keyed by caller-assigned ids, plus the "current page" pointer.
//
// Ownership is a tree: pages point at their context, contexts at their
// browser. Closing a node closes and unregisters its descendants first.
// Driver objects are always closed page, then context, then browser.
type Registry struct {
	driver  Driver
	console *logging.ConsoleLog
	network *logging.NetworkLog
	log     *logging.Logger

	mu            sync.Mutex
	browsers      map[string]*BrowserHandle
	contexts      map[string]*ContextHandle
	pages         map[string]*PageHandle
	currentPageID string
}

// Option configures a Registry.
type Option func(*Registry)

// WithConsoleLog sets the sink receiving page console messages and errors.
func WithConsoleLog(c *logging.ConsoleLog) Option {
	return func(r *Registry) { r.console = c }
}

// WithNetworkLog sets the sink receiving observed page traffic.
func WithNetworkLog(n *logging.NetworkLog) Option {
	return func(r *Registry) { r.network = n }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry backed by driver.
func NewRegistry(driver Driver, opts ...Option) *Registry {
	r := &Registry{
		driver:   driver,
		browsers: make(map[string]*BrowserHandle),
		contexts: make(map[string]*ContextHandle),
		pages:    make(map[string]*PageHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Discard("registry")
	}
	if r.console == nil {
		r.console = logging.NewConsoleLog(logging.DefaultEventCapacity, nil)
	}
	if r.network == nil {
		r.network = logging.NewNetworkLog(logging.DefaultEventCapacity)
	}
	return r
}

// ConsoleLog returns the sink receiving page console output.
func (r *Registry) ConsoleLog() *logging.ConsoleLog {
	return r.console
}

// NetworkLog returns the sink receiving observed page traffic.
func (r *Registry) NetworkLog() *logging.NetworkLog {
	return r.network
}

// LaunchBrowser starts a browser process and registers it under id.
// An existing browser with the same id is fully closed first so that at
// most one process is ever registered per id.
func (r *Registry) LaunchBrowser(id string, engine Engine, opts LaunchOptions) (*BrowserHandle, error) {
	engine, err := ParseEngine(string(engine))
	if err != nil {
		return nil, err
	}

	if err := r.CloseBrowser(id); err != nil {
		r.log.Warnf("closing previous browser %q before relaunch: %v", id, err)
	}

	b, err := r.driver.Launch(engine, opts)
	if err != nil {
		return nil, &LaunchError{BrowserID: id, Engine: engine, Err: err}
	}

	handle := &BrowserHandle{
		ID:         id,
		Engine:     engine,
		Headless:   opts.Headless,
		Browser:    b,
		LaunchedAt: time.Now(),
	}

	// A concurrent launch with the same id may have registered in between.
	r.mu.Lock()
	stale := r.detachBrowserLocked(id)
	r.browsers[id] = handle
	r.mu.Unlock()

	if err := stale.close(); err != nil {
		r.log.Warnf("closing raced browser %q: %v", id, err)
	}

	r.log.Infof("launched %s browser %q (headless=%t)", engine, id, opts.Headless)
	return handle, nil
}

// CreateContext creates a browsing context inside a registered browser.
func (r *Registry) CreateContext(browserID, contextID string, opts ContextOptions) (*ContextHandle, error) {
	r.mu.Lock()
	bh, ok := r.browsers[browserID]
	r.mu.Unlock()
	if !ok {
		return nil, notFound("browser", browserID)
	}

	c, err := bh.Browser.NewContext(opts)
	if err != nil {
		return nil, err
	}

	handle := &ContextHandle{
		ID:        contextID,
		BrowserID: browserID,
		Options:   opts,
		Context:   c,
	}

	r.mu.Lock()
	stale := r.detachContextLocked(contextID)
	r.contexts[contextID] = handle
	r.mu.Unlock()

	if err := stale.close(); err != nil {
		r.log.Warnf("closing replaced context %q: %v", contextID, err)
	}

	r.log.Debugf("created context %q in browser %q", contextID, browserID)
	return handle, nil
}

// CreatePage opens a page inside a registered context, subscribes its
// console, error and network streams to the registry sinks, and makes it
// the current page.
func (r *Registry) CreatePage(contextID, pageID string) (*PageHandle, error) {
	r.mu.Lock()
	ch, ok := r.contexts[contextID]
	r.mu.Unlock()
	if !ok {
		return nil, notFound("context", contextID)
	}

	p, err := ch.Context.NewPage()
	if err != nil {
		return nil, err
	}

	r.subscribe(pageID, p)

	handle := &PageHandle{
		ID:        pageID,
		ContextID: contextID,
		Page:      p,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	var stale *PageHandle
	if prev, exists := r.pages[pageID]; exists {
		stale = prev
	}
	r.pages[pageID] = handle
	// Last created page wins.
	r.currentPageID = pageID
	r.mu.Unlock()

	if stale != nil {
		if err := stale.Page.Close(); err != nil {
			r.log.Warnf("closing replaced page %q: %v", pageID, err)
		}
	}

	r.log.Debugf("created page %q in context %q", pageID, contextID)
	return handle, nil
}

func (r *Registry) subscribe(pageID string, p Page) {
	p.OnConsole(func(msg ConsoleMessage) {
		r.console.Add(logging.ConsoleEntry{PageID: pageID, Level: msg.Type, Text: msg.Text})
	})
	p.OnPageError(func(err error) {
		r.console.Add(logging.ConsoleEntry{PageID: pageID, Level: logging.LevelPageError, Text: err.Error()})
	})
	p.OnNetwork(func(ev NetworkEvent) {
		r.network.Add(logging.NetworkEntry{
			PageID:       pageID,
			Method:       ev.Method,
			URL:          ev.URL,
			ResourceType: ev.ResourceType,
			Status:       ev.Status,
			Failure:      ev.Failure,
		})
	})
}

// CurrentPage returns the most recently created page, if it is still
// registered.
func (r *Registry) CurrentPage() (*PageHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentPageID == "" {
		return nil, false
	}
	h, ok := r.pages[r.currentPageID]
	return h, ok
}

// CurrentPageID returns the raw pointer value, which may name a page that
// no longer exists.
func (r *Registry) CurrentPageID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPageID
}

// Page looks up a page by id.
func (r *Registry) Page(id string) (*PageHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pages[id]
	return h, ok
}

// Context looks up a context by id.
func (r *Registry) Context(id string) (*ContextHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.contexts[id]
	return h, ok
}

// Browser looks up a browser by id.
func (r *Registry) Browser(id string) (*BrowserHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.browsers[id]
	return h, ok
}

// Pages returns a snapshot of the registered pages sorted by id.
func (r *Registry) Pages() []*PageHandle {
	r.mu.Lock()
	out := make([]*PageHandle, 0, len(r.pages))
	for _, h := range r.pages {
		out = append(out, h)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats counts the registered handles.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Browsers: len(r.browsers), Contexts: len(r.contexts), Pages: len(r.pages)}
}

// ClosePage closes and unregisters a page. Unknown ids are a no-op.
func (r *Registry) ClosePage(id string) error {
	r.mu.Lock()
	h, ok := r.pages[id]
	if ok {
		r.removePageLocked(id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return h.Page.Close()
}

// CloseContext closes a context after closing its pages. Unknown ids are a
// no-op.
func (r *Registry) CloseContext(id string) error {
	r.mu.Lock()
	sub := r.detachContextLocked(id)
	r.mu.Unlock()
	return sub.close()
}

// CloseBrowser closes a browser after closing its contexts and their pages.
// Unknown ids are a no-op.
func (r *Registry) CloseBrowser(id string) error {
	r.mu.Lock()
	sub := r.detachBrowserLocked(id)
	r.mu.Unlock()
	return sub.close()
}

// CloseAll closes every page, then every context, then every browser, each
// over a snapshot of the ids registered when it was called.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	pageIDs := sortedKeys(r.pages)
	contextIDs := sortedKeys(r.contexts)
	browserIDs := sortedKeys(r.browsers)
	r.mu.Unlock()

	var errs []error
	for _, id := range pageIDs {
		if err := r.ClosePage(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range contextIDs {
		if err := r.CloseContext(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range browserIDs {
		if err := r.CloseBrowser(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown closes everything and releases the driver.
func (r *Registry) Shutdown() error {
	err := r.CloseAll()
	if r.driver != nil {
		if driverErr := r.driver.Close(); driverErr != nil {
			err = errors.Join(err, driverErr)
		}
	}
	return err
}

// subtree is a detached branch of the ownership tree awaiting driver close.
type subtree struct {
	pages    []*PageHandle
	contexts []*ContextHandle
	browser  *BrowserHandle
}

func (s subtree) close() error {
	var errs []error
	for _, p := range s.pages {
		if err := p.Page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range s.contexts {
		if err := c.Context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.browser != nil {
		if err := s.browser.Browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) removePageLocked(id string) {
	delete(r.pages, id)
	if r.currentPageID == id {
		r.currentPageID = ""
	}
}

func (r *Registry) detachContextLocked(id string) subtree {
	var sub subtree
	ch, ok := r.contexts[id]
	if !ok {
		return sub
	}
	for _, pid := range sortedKeys(r.pages) {
		if ph := r.pages[pid]; ph.ContextID == id {
			sub.pages = append(sub.pages, ph)
			r.removePageLocked(pid)
		}
	}
	sub.contexts = append(sub.contexts, ch)
	delete(r.contexts, id)
	return sub
}

func (r *Registry) detachBrowserLocked(id string) subtree {
	var sub subtree
	bh, ok := r.browsers[id]
	if !ok {
		return sub
	}
	for _, cid := range sortedKeys(r.contexts) {
		if r.contexts[cid].BrowserID != id {
			continue
		}
		child := r.detachContextLocked(cid)
		sub.pages = append(sub.pages, child.pages...)
		sub.contexts = append(sub.contexts, child.contexts...)
	}
	sub.browser = bh
	delete(r.browsers, id)
	return sub
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
