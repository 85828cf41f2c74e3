package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/logging"
)

// Preview modes.
const (
	ModeLocal  = "local"
	ModePublic = "public"
)

// PreviewSession groups the browser, context and page opened for one
// preview_open call.
type PreviewSession struct {
	ID          string           `json:"id"`
	BrowserID   string           `json:"browserId"`
	ContextID   string           `json:"contextId"`
	PageID      string           `json:"pageId"`
	URL         string           `json:"url"`
	Mode        string           `json:"mode"`
	PublicURL   string           `json:"publicUrl"`
	AutoRefresh bool             `json:"autoRefresh"`
	ProjectPath string           `json:"projectPath,omitempty"`
	Engine      browser.Engine   `json:"engine"`
	Viewport    browser.Viewport `json:"viewport"`
	CreatedAt   time.Time        `json:"createdAt"`

	seq int
}

// previewTable maps preview ids to sessions. Ids come from a monotonic
// counter and are never reused within a process.
type previewTable struct {
	mu       sync.Mutex
	counter  int
	sessions map[string]*PreviewSession
}

func newPreviewTable() *previewTable {
	return &previewTable{sessions: make(map[string]*PreviewSession)}
}

// next reserves a fresh preview id and its sequence number.
func (t *previewTable) next() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	return fmt.Sprintf("preview_%d", t.counter), t.counter
}

func (t *previewTable) add(s *PreviewSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.ID] = s
}

func (t *previewTable) get(id string) (*PreviewSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (t *previewTable) remove(id string) (*PreviewSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return s, ok
}

// list returns copies of every session in opening order.
func (t *previewTable) list() []PreviewSession {
	t.mu.Lock()
	out := make([]PreviewSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (t *previewTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Publisher exposes a local preview address publicly.
type Publisher interface {
	Publish(ctx context.Context, localURL string) (string, error)
	Unpublish(ctx context.Context, publicURL string) error
}

// NopPublisher returns the local address unchanged.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, localURL string) (string, error) {
	return localURL, nil
}

func (NopPublisher) Unpublish(context.Context, string) error {
	return nil
}

// SubdomainPublisher assigns each published preview a subdomain of Domain.
// It only computes addresses; routing traffic to them is left to the proxy
// that owns the domain.
type SubdomainPublisher struct {
	Domain string
	Log    *logging.Logger

	// now is replaced in tests.
	now func() time.Time
}

func (p *SubdomainPublisher) Publish(_ context.Context, localURL string) (string, error) {
	if p.Domain == "" {
		return localURL, nil
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	public := fmt.Sprintf("https://preview-%d.%s", now().UnixMilli(), strings.TrimPrefix(p.Domain, "."))
	if p.Log != nil {
		p.Log.Infof("published %s as %s", localURL, public)
	}
	return public, nil
}

func (p *SubdomainPublisher) Unpublish(_ context.Context, publicURL string) error {
	if p.Log != nil {
		p.Log.Infof("released public address %s", publicURL)
	}
	return nil
}

// Watcher starts watching a project directory for changes.
type Watcher interface {
	Watch(projectPath string) error
}
