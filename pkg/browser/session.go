// Package browser drives the portal through a real browser.
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Session is the set of browser capabilities the pipeline relies on.
// Selectors are CSS selectors. Element lookups wait up to the session's
// implicit wait and fail with an error wrapping apperrors.ErrElementNotFound.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	Click(ctx context.Context, sel string) error
	// SetValue clears an input and types value into it.
	SetValue(ctx context.Context, sel, value string) error
	Text(ctx context.Context, sel string) (string, error)
	// Exists reports whether sel currently matches an element, without waiting.
	Exists(ctx context.Context, sel string) (bool, error)
	// AttributeAll returns attr of every element matching sel, in document order.
	AttributeAll(ctx context.Context, sel, attr string) ([]string, error)
	// MoveTo scrolls the element into view.
	MoveTo(ctx context.Context, sel string) error
	// Drag presses on from, moves to to and releases.
	Drag(ctx context.Context, from, to string) error
	Back(ctx context.Context) error
	Close() error
}

// ByID returns a selector matching the element with the given id attribute.
// Unlike "#id" it accepts ids that start with a digit.
func ByID(id string) string {
	return fmt.Sprintf(`[id="%s"]`, strings.ReplaceAll(id, `"`, `\"`))
}
