package browser

import (
	"errors"
	"fmt"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/tools"
)

var (
	// ErrNoActivePage is returned by page-bound tools when no page can be
	// resolved. The text is shown to the calling agent as guidance.
	ErrNoActivePage = errors.New("No active page. Please open a preview first.")

	// ErrUnknownTool is returned by Dispatch for names outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrUnknownWaitType is returned by interact_wait for unsupported kinds.
	ErrUnknownWaitType = errors.New("unknown wait type")

	// ErrNotAvailable is returned by catalog entries that are declared but
	// not backed by an implementation.
	ErrNotAvailable = errors.New("tool not available")

	// ErrInvalidArguments is returned when arguments fail to decode or
	// validate.
	ErrInvalidArguments = tools.ErrInvalidArguments
)

func previewNotFound(id string) error {
	return fmt.Errorf("preview %q %w", id, browser.ErrNotFound)
}

func invalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
