// internal/ui/adapter.go
package ui

import (
	"context"
	"errors"
	"strings"
)

// ErrStaleHandle is returned when an Element or Row no longer resolves to a
// node on the page. Handles are only valid for the poll that produced them.
var ErrStaleHandle = errors.New("ui: stale element handle")

// Element is an opaque reference to an interactive node on the live page.
type Element struct {
	// Handle is the adapter specific address of the node (for the browser
	// adapter, a CSS selector on a temporary data attribute).
	Handle string
	// Text is the trimmed text content observed when the handle was issued.
	Text string
	// Role is the ARIA role or lower-cased tag name.
	Role string
}

// Row is a single visible entry in the external queue view.
type Row struct {
	Handle string
	// Position is the zero-based display index at snapshot time.
	Position int
}

// Predicate describes an element by what a person would look for on screen.
// Empty fields match anything.
type Predicate struct {
	// TextContains is matched case-insensitively against the element's text.
	TextContains string
	// Roles restricts matches to the given roles ("button", "menuitem", ...).
	Roles []string
}

// Matches reports whether an element with the given text and role satisfies p.
func (p Predicate) Matches(text, role string) bool {
	if p.TextContains != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(p.TextContains)) {
		return false
	}
	if len(p.Roles) == 0 {
		return true
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// String renders the predicate for log fields.
func (p Predicate) String() string {
	if len(p.Roles) == 0 {
		return "text~" + p.TextContains
	}
	return "text~" + p.TextContains + " role=" + strings.Join(p.Roles, "|")
}

// ButtonRoles are the roles the target page uses for clickable controls.
var ButtonRoles = []string{"button"}

// Adapter is the sole boundary between the submission logic and the rendered
// page. Every call reads the page fresh; nothing may be cached across calls.
type Adapter interface {
	// FindActionable returns a visible, enabled element matching p.
	// found is false when nothing matches right now.
	FindActionable(ctx context.Context, p Predicate) (el Element, found bool, err error)
	// ListQueueRows returns the visible queue rows in display order, header excluded.
	ListQueueRows(ctx context.Context) ([]Row, error)
	// RowSignature returns a text fingerprint of row at this instant.
	RowSignature(ctx context.Context, row Row) (string, error)
	// SelectionCandidates returns the ranked click targets inside row:
	// the most specific leaf text node, its container, then the row itself.
	SelectionCandidates(ctx context.Context, row Row) ([]Element, error)
	// Invoke performs a full hover, press, release, activate sequence on el.
	Invoke(ctx context.Context, el Element) error
	// OpenRowMenu triggers the row's contextual action menu.
	OpenRowMenu(ctx context.Context, row Row) (bool, error)
	// FindMenuAction returns the nearest actionable ancestor of a leaf whose
	// text contains label.
	FindMenuAction(ctx context.Context, label string) (el Element, found bool, err error)
	// PageContains reports whether the page body text contains text.
	PageContains(ctx context.Context, text string) (bool, error)
	// ActiveTabLabel returns the text of the currently selected tab, or "".
	ActiveTabLabel(ctx context.Context) (string, error)
	// NavigateBack returns to the queue view identified by tabLabel.
	NavigateBack(ctx context.Context, tabLabel string) error
}
