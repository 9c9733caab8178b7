// Package uitest provides an in-memory stand-in for the rendered target page.
// It models just enough of the real page's behavior (row selection revealing
// the advance control, a confirmation modal, delayed row removal, an animated
// row menu, a quota banner) to drive the submission pipeline without a browser.
package uitest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xkilldash9x/autosubmit/internal/ui"
)

// Labels are the visible texts the fake page renders.
type Labels struct {
	Advance string
	Submit  string
	Clone   string
	Quota   string
}

// DefaultLabels mirror the reference target.
var DefaultLabels = Labels{
	Advance: "Continue and preview job",
	Submit:  "Confirm and submit",
	Clone:   "Clone and reuse",
	Quota:   "Daily quota reached. Try again tomorrow.",
}

// Candidate indexes returned by SelectionCandidates.
const (
	CandidateLeaf = iota
	CandidateContainer
	CandidateRow
	// CandidateNone makes every selection attempt miss.
	CandidateNone = -1
)

// Page is a fake ui.Adapter. Configure the exported fields before use; the
// recorded fields can be read after a run through the accessor methods.
type Page struct {
	mu sync.Mutex

	Labels Labels
	Tab    string
	Rows   []string

	// SelectableCandidate is the candidate index whose click selects a row.
	SelectableCandidate int
	// AdvanceMissing keeps the advance control hidden even after selection.
	AdvanceMissing bool
	// ModalNeverOpens makes the advance click do nothing visible.
	ModalNeverOpens bool
	// DropSubmits ignores that many submit clicks before accepting one.
	DropSubmits int
	// SubmitLatency is the number of queue reads after an accepted submit
	// that still show the old queue.
	SubmitLatency int
	// StuckSubmits accepts that many submits without ever removing the row.
	StuckSubmits int
	// QuotaAfter shows the quota banner once this many submissions landed.
	QuotaAfter int
	// QuotaOnAdvance shows the quota banner when advance is clicked instead
	// of opening the modal.
	QuotaOnAdvance bool
	// MenuUnavailable makes OpenRowMenu report failure.
	MenuUnavailable bool
	// MenuDelay is how many menu polls miss before the clone item renders.
	// Negative means it never renders.
	MenuDelay int

	selectedRow    int
	advanceVisible bool
	modalOpen      bool
	quota          bool

	pending          bool
	pendingCountdown int
	pendingTarget    int

	menuOpen    bool
	menuPolls   int
	menuSource  string
	cloneView   bool
	cloneSource string
	cloneRows   []string

	touched       []string
	submitted     []string
	invocations   []string
	submitClicks  int
	advanceClicks int
	navigateBacks int
}

var _ ui.Adapter = (*Page)(nil)

// NewPage returns a draft queue page whose rows select on the first candidate.
func NewPage(rows ...string) *Page {
	return &Page{
		Labels:              DefaultLabels,
		Tab:                 "Drafts",
		Rows:                append([]string(nil), rows...),
		SelectableCandidate: CandidateLeaf,
		selectedRow:         -1,
	}
}

// NewFailedPage returns a failed-jobs page with an immediately rendering menu.
func NewFailedPage(rows ...string) *Page {
	p := NewPage(rows...)
	p.Tab = "Failed"
	return p
}

func (p *Page) visibleRows() []string {
	if p.cloneView {
		return p.cloneRows
	}
	return p.Rows
}

func (p *Page) rowAt(handle string) (int, string, string, error) {
	parts := strings.Split(handle, "/")
	if len(parts) < 2 || parts[0] != "row" {
		return 0, "", "", fmt.Errorf("%w: %s", ui.ErrStaleHandle, handle)
	}
	pos, err := strconv.Atoi(parts[1])
	rows := p.visibleRows()
	if err != nil || pos < 0 || pos >= len(rows) {
		return 0, "", "", fmt.Errorf("%w: %s", ui.ErrStaleHandle, handle)
	}
	kind := ""
	if len(parts) > 2 {
		kind = parts[2]
	}
	return pos, rows[pos], kind, nil
}

func (p *Page) settlePending() {
	if !p.pending {
		return
	}
	if p.pendingCountdown > 0 {
		p.pendingCountdown--
		return
	}
	p.pending = false
	if p.cloneView {
		p.cloneRows = append([]string{"clone:" + p.cloneSource}, p.cloneRows...)
		return
	}
	if p.pendingTarget >= 0 && p.pendingTarget < len(p.Rows) {
		p.Rows = append(p.Rows[:p.pendingTarget:p.pendingTarget], p.Rows[p.pendingTarget+1:]...)
	}
}

// FindActionable implements ui.Adapter.
func (p *Page) FindActionable(ctx context.Context, pred ui.Predicate) (ui.Element, bool, error) {
	if err := ctx.Err(); err != nil {
		return ui.Element{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var visible []ui.Element
	if p.modalOpen {
		visible = append(visible, ui.Element{Handle: "control/submit", Text: p.Labels.Submit, Role: "button"})
	} else if p.advanceVisible {
		visible = append(visible, ui.Element{Handle: "control/advance", Text: p.Labels.Advance, Role: "button"})
	}
	for _, el := range visible {
		if pred.Matches(el.Text, el.Role) {
			return el, true, nil
		}
	}
	return ui.Element{}, false, nil
}

// ListQueueRows implements ui.Adapter.
func (p *Page) ListQueueRows(ctx context.Context) ([]ui.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settlePending()
	rows := p.visibleRows()
	out := make([]ui.Row, len(rows))
	for i := range rows {
		out[i] = ui.Row{Handle: "row/" + strconv.Itoa(i), Position: i}
	}
	return out, nil
}

// RowSignature implements ui.Adapter.
func (p *Page) RowSignature(ctx context.Context, row ui.Row) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, sig, _, err := p.rowAt(row.Handle)
	return sig, err
}

// SelectionCandidates implements ui.Adapter.
func (p *Page) SelectionCandidates(ctx context.Context, row ui.Row) ([]ui.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, sig, _, err := p.rowAt(row.Handle)
	if err != nil {
		return nil, err
	}
	return []ui.Element{
		{Handle: row.Handle + "/leaf", Text: sig, Role: "span"},
		{Handle: row.Handle + "/container", Text: sig, Role: "div"},
		{Handle: row.Handle, Text: sig, Role: "row"},
	}, nil
}

// Invoke implements ui.Adapter.
func (p *Page) Invoke(ctx context.Context, el ui.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invocations = append(p.invocations, el.Handle)

	switch {
	case strings.HasPrefix(el.Handle, "row/"):
		pos, sig, kind, err := p.rowAt(el.Handle)
		if err != nil {
			return err
		}
		p.touched = append(p.touched, sig)
		idx := CandidateRow
		switch kind {
		case "leaf":
			idx = CandidateLeaf
		case "container":
			idx = CandidateContainer
		}
		if idx == p.SelectableCandidate {
			p.selectedRow = pos
			p.advanceVisible = !p.AdvanceMissing
		}
		return nil

	case el.Handle == "control/advance":
		if !p.advanceVisible || p.modalOpen {
			return fmt.Errorf("%w: %s", ui.ErrStaleHandle, el.Handle)
		}
		p.advanceClicks++
		if p.QuotaOnAdvance {
			p.quota = true
		}
		if p.quota || p.ModalNeverOpens {
			return nil
		}
		p.modalOpen = true
		return nil

	case el.Handle == "control/submit":
		if !p.modalOpen {
			return fmt.Errorf("%w: %s", ui.ErrStaleHandle, el.Handle)
		}
		p.submitClicks++
		if p.DropSubmits > 0 {
			p.DropSubmits--
			return nil
		}
		p.modalOpen = false
		p.advanceVisible = false
		source := ""
		if p.cloneView {
			source = p.cloneSource
		} else if p.selectedRow >= 0 && p.selectedRow < len(p.Rows) {
			source = p.Rows[p.selectedRow]
		}
		p.submitted = append(p.submitted, source)
		if p.StuckSubmits > 0 {
			p.StuckSubmits--
		} else {
			p.pending = true
			p.pendingCountdown = p.SubmitLatency
			p.pendingTarget = p.selectedRow
		}
		p.selectedRow = -1
		if p.QuotaAfter > 0 && len(p.submitted) >= p.QuotaAfter {
			p.quota = true
		}
		return nil

	case el.Handle == "menu/clone":
		if !p.menuOpen {
			return fmt.Errorf("%w: %s", ui.ErrStaleHandle, el.Handle)
		}
		p.menuOpen = false
		p.cloneView = true
		p.cloneSource = p.menuSource
		p.cloneRows = nil
		p.advanceVisible = !p.AdvanceMissing
		return nil
	}
	return fmt.Errorf("%w: %s", ui.ErrStaleHandle, el.Handle)
}

// OpenRowMenu implements ui.Adapter.
func (p *Page) OpenRowMenu(ctx context.Context, row ui.Row) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, sig, _, err := p.rowAt(row.Handle)
	if err != nil {
		return false, err
	}
	p.touched = append(p.touched, sig)
	if p.MenuUnavailable {
		return false, nil
	}
	p.menuOpen = true
	p.menuPolls = 0
	p.menuSource = sig
	return true, nil
}

// FindMenuAction implements ui.Adapter.
func (p *Page) FindMenuAction(ctx context.Context, label string) (ui.Element, bool, error) {
	if err := ctx.Err(); err != nil {
		return ui.Element{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.menuOpen {
		return ui.Element{}, false, nil
	}
	p.menuPolls++
	if p.MenuDelay < 0 || p.menuPolls <= p.MenuDelay {
		return ui.Element{}, false, nil
	}
	if !(ui.Predicate{TextContains: label}).Matches(p.Labels.Clone, "menuitem") {
		return ui.Element{}, false, nil
	}
	return ui.Element{Handle: "menu/clone", Text: p.Labels.Clone, Role: "menuitem"}, true, nil
}

// PageContains implements ui.Adapter.
func (p *Page) PageContains(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quota {
		return false, nil
	}
	return strings.Contains(strings.ToLower(p.Labels.Quota), strings.ToLower(text)), nil
}

// ActiveTabLabel implements ui.Adapter.
func (p *Page) ActiveTabLabel(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cloneView {
		return "", nil
	}
	return p.Tab, nil
}

// NavigateBack implements ui.Adapter.
func (p *Page) NavigateBack(ctx context.Context, tabLabel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigateBacks++
	p.cloneView = false
	p.menuOpen = false
	p.modalOpen = false
	p.advanceVisible = false
	p.selectedRow = -1
	p.pending = false
	if tabLabel != "" {
		p.Tab = tabLabel
	}
	return nil
}

// SetTab switches the selected tab, as a user clicking around would.
func (p *Page) SetTab(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tab = label
}

// Remaining returns the queue rows still on the source list.
func (p *Page) Remaining() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Rows...)
}

// Submitted returns the source signature of every accepted submission.
func (p *Page) Submitted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.submitted...)
}

// Touched returns the signature of every row that was clicked or had its
// menu opened, in order.
func (p *Page) Touched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.touched...)
}

// Invocations returns every invoked handle in order.
func (p *Page) Invocations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.invocations...)
}

// SubmitClicks counts every activation of the submit control, accepted or not.
func (p *Page) SubmitClicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitClicks
}

// AdvanceClicks counts activations of the advance control.
func (p *Page) AdvanceClicks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advanceClicks
}

// NavigateBacks counts calls to NavigateBack.
func (p *Page) NavigateBacks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigateBacks
}
