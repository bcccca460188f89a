// Package browser owns the headless browser session lifecycle. The
// orchestration layers depend only on the Session interface, which
// wraps the driver capability set (navigate, query DOM, move mouse,
// type, wait); the rod-backed implementation lives here.
package browser

import (
	"context"

	"github.com/ysmood/gson"
)

// Box is an element's bounding rectangle in page coordinates.
type Box struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Session is one live browser page. Implementations must make Close
// idempotent: closing an already-closed session is a no-op.
type Session interface {
	// Navigate loads the URL, honoring ctx for cancellation.
	Navigate(ctx context.Context, url string) error

	// WaitStable blocks until the DOM stops mutating or ctx expires.
	WaitStable(ctx context.Context) error

	// HTML returns the rendered page HTML.
	HTML(ctx context.Context) (string, error)

	// Eval runs a JS function expression in the page and returns its value.
	Eval(ctx context.Context, js string) (gson.JSON, error)

	// MoveMouse moves the pointer to page coordinates in one step.
	MoveMouse(ctx context.Context, x, y float64) error

	// Click presses and releases the left button at page coordinates.
	Click(ctx context.Context, x, y float64) error

	// InsertText emits the given text as keyboard input.
	InsertText(ctx context.Context, text string) error

	// PressBackspace emits a single backspace key press.
	PressBackspace(ctx context.Context) error

	// Scroll dispatches a wheel event with the given deltas.
	Scroll(ctx context.Context, dx, dy float64) error

	// ElementBox returns the bounding box of the first element matching
	// the CSS selector, or false when no element matches.
	ElementBox(ctx context.Context, selector string) (Box, bool)

	// UserAgent reports the user agent fixed for this session's lifetime.
	UserAgent() string

	// Viewport reports the emulated window size.
	Viewport() (width, height int)

	// Close releases all underlying browser resources. Idempotent.
	Close() error
}
