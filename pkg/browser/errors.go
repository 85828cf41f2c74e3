package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an id does not name a registered handle.
	ErrNotFound = errors.New("not found")

	// ErrInvalidEngine is returned for engine names outside the supported set.
	ErrInvalidEngine = errors.New("invalid browser engine")
)

// LaunchError reports a browser process that could not be started.
type LaunchError struct {
	BrowserID string
	Engine    Engine
	Err       error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s browser %q: %v", e.Engine, e.BrowserID, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError reports whether err is or wraps a LaunchError.
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return errors.As(err, &launchErr)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q %w", kind, id, ErrNotFound)
}
