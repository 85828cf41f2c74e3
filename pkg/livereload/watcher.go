package livereload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultIgnore skips dotfiles and dot-directories.
var DefaultIgnore = []string{".*"}

// Watcher watches project directories recursively and reports written or
// created files to its change handlers.
type Watcher struct {
	fsw    *fsnotify.Watcher
	ignore []glob.Glob
	log    *logging.Logger

	mu       sync.Mutex
	roots    map[string]bool
	handlers []func(path string)

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher creates a watcher. Each ignore pattern is matched against
// every path component below a watched root and against the whole
// slash-separated relative path.
func NewWatcher(ignore []string, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Discard("livereload")
	}

	globs := make([]glob.Glob, 0, len(ignore))
	for _, pattern := range ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		ignore: globs,
		log:    log,
		roots:  make(map[string]bool),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// OnChange registers fn to be called with the path of every changed file.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Watch starts watching root and everything below it. Watching the same
// root twice is a no-op.
func (w *Watcher) Watch(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watching %s: not a directory", root)
	}

	w.mu.Lock()
	if w.roots[abs] {
		w.mu.Unlock()
		return nil
	}
	w.roots[abs] = true
	w.mu.Unlock()

	if err := w.addTree(abs); err != nil {
		w.mu.Lock()
		delete(w.roots, abs)
		w.mu.Unlock()
		return err
	}
	w.log.Infof("watching %s", abs)
	return nil
}

// Roots returns the watched project roots, sorted.
func (w *Watcher) Roots() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.roots))
	for r := range w.roots {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
	})
	return w.closeErr
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether path, relative to the root containing it,
// matches an ignore pattern.
func (w *Watcher) ignored(path string) bool {
	rel := w.relative(path)
	if rel == "" {
		return false
	}
	slashed := filepath.ToSlash(rel)
	for _, g := range w.ignore {
		if g.Match(slashed) {
			return true
		}
		for _, part := range strings.Split(slashed, "/") {
			if g.Match(part) {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) relative(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	best := ""
	for root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == "" || len(rel) < len(best) {
			best = rel
		}
	}
	if best == "." {
		return ""
	}
	return best
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("file watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if w.ignored(ev.Name) {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warnf("watching new directory %s: %v", ev.Name, err)
			}
			return
		}
	}

	w.log.Debugf("file changed: %s", ev.Name)
	w.mu.Lock()
	handlers := append([]func(string){}, w.handlers...)
	w.mu.Unlock()
	for _, fn := range handlers {
		fn(ev.Name)
	}
}
