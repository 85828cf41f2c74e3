package screenshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister mirrors cached captures to durable storage. It decides
// where a capture lives and returns that location.
type FilePersister interface {
	Persist(ctx context.Context, name, format string, data []byte) (path string, err error)
}

// LocalFilePersister writes captures to {Dir}/{name}.{format}.
type LocalFilePersister struct {
	Dir string
}

// Path returns the file a capture is written to.
func (l *LocalFilePersister) Path(name, format string) string {
	return filepath.Join(filepath.Clean(l.Dir), name+"."+format)
}

// Persist writes data next to its final path and renames it into place, so
// readers never observe a half-written image. An existing file is
// replaced.
func (l *LocalFilePersister) Persist(ctx context.Context, name, format string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := l.Path(name, format)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating screenshot directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temporary file in %q: %w", dir, err)
	}
	// Removing after a successful rename fails harmlessly.
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing %q: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("setting mode of %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("moving screenshot into %q: %w", path, err)
	}
	return path, nil
}
