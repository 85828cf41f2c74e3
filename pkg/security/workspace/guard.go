// Package workspace restricts file system access to a set of project roots.
// The live-reload server uses it to decide which directories a client may
// ask it to watch.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrOutsideRoots is returned for paths that are not under any allowed root.
var ErrOutsideRoots = errors.New("path is outside the allowed project roots")

// Guard checks paths against a list of allowed root directories. A guard
// with no roots allows every path.
type Guard struct {
	mu    sync.RWMutex
	roots []string // absolute, symlink-resolved
}

// NewGuard creates a guard allowing paths under roots.
func NewGuard(roots ...string) (*Guard, error) {
	g := &Guard{}
	for _, root := range roots {
		if err := g.AddRoot(root); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddRoot allows dir and everything below it. Adding a root twice is a
// no-op.
func (g *Guard) AddRoot(dir string) error {
	if dir == "" {
		return fmt.Errorf("root directory cannot be empty")
	}
	abs, err := absPath(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve root %s: %w", dir, err)
	}
	resolved := resolveSymlinks(abs)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.roots {
		if existing == resolved {
			return nil
		}
	}
	g.roots = append(g.roots, resolved)
	sort.Strings(g.roots)
	return nil
}

// Roots returns the allowed roots, sorted.
func (g *Guard) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.roots...)
}

// ValidatePath returns nil when path is an allowed root or lies below one.
// Relative paths are resolved against the working directory and ~ is
// expanded.
func (g *Guard) ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	abs, err := absPath(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if !g.Contains(abs) {
		return fmt.Errorf("%w: %s", ErrOutsideRoots, path)
	}
	return nil
}

// Contains reports whether the absolute path abs is inside an allowed root.
func (g *Guard) Contains(abs string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.roots) == 0 {
		return true
	}

	resolved := resolveSymlinks(filepath.Clean(abs))
	for _, root := range g.roots {
		if within(root, resolved) {
			return true
		}
	}
	return false
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}

func absPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return filepath.Abs(path)
}

// resolveSymlinks evaluates symlinks in path. For paths that do not exist
// yet, the deepest existing ancestor is resolved and the remaining
// components are appended, so /var/x and /private/var/x compare equal on
// macOS either way.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var rest []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(rest) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, rest[i])
			}
			return resolved
		}
		parent := filepath.Dir(current)
		if parent == current {
			return path
		}
		rest = append(rest, filepath.Base(current))
		current = parent
	}
}
