// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autosubmit/internal/ui"
)

// Clicker performs a pointer-driven click on the node matching selector.
// *humanoid.Humanoid satisfies it.
type Clicker interface {
	IntelligentClick(ctx context.Context, selector string) error
}

type evalFunc func(ctx context.Context, script string) (json.RawMessage, error)

// markedElement is what the tagging scripts return for a node.
type markedElement struct {
	Value string `json:"value"`
	Text  string `json:"text"`
	Role  string `json:"role"`
}

func (m markedElement) element(attr string) ui.Element {
	return ui.Element{Handle: selectorFor(attr, m.Value), Text: m.Text, Role: m.Role}
}

// Highlight colors for synthetic clicks, by what is being clicked.
const (
	colorPrimary   = "rgba(255, 0, 0, 0.3)"
	colorFallback  = "rgba(0, 0, 255, 0.3)"
	colorAffirming = "rgba(0, 255, 0, 0.3)"
)

// Page implements ui.Adapter on a live tab. Every call reads the DOM afresh.
type Page struct {
	eval         evalFunc
	clicker      Clicker
	headerMarker string
	logger       *zap.Logger
	gen          atomic.Uint64
}

var _ ui.Adapter = (*Page)(nil)

// NewPage builds the adapter over tab. A nil clicker falls back to
// synthetic DOM events; headerMarker identifies the queue's header row.
func NewPage(tab *Tab, clicker Clicker, headerMarker string, logger *zap.Logger) *Page {
	return newPage(tab.Evaluate, clicker, headerMarker, logger)
}

func newPage(eval evalFunc, clicker Clicker, headerMarker string, logger *zap.Logger) *Page {
	return &Page{
		eval:         eval,
		clicker:      clicker,
		headerMarker: headerMarker,
		logger:       logger.Named("page"),
	}
}

func (p *Page) nextGen() string {
	return strconv.FormatUint(p.gen.Add(1), 10)
}

// call evaluates a named script and decodes its result into out. It reports
// false when the script returned null.
func (p *Page) call(ctx context.Context, name, body string, args, out interface{}) (bool, error) {
	raw, err := p.eval(ctx, buildScript(name, body, args))
	if err != nil {
		return false, fmt.Errorf("browser: %s: %w", name, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("browser: %s: decoding %s: %w", name, raw, err)
	}
	return true, nil
}

func stale(handle string) error {
	return fmt.Errorf("%w: %s", ui.ErrStaleHandle, handle)
}

func (p *Page) FindActionable(ctx context.Context, pred ui.Predicate) (ui.Element, bool, error) {
	args := map[string]interface{}{
		"text": pred.TextContains, "roles": pred.Roles,
		"attr": ctlAttr, "value": "ctl-" + p.nextGen(),
	}
	var m markedElement
	found, err := p.call(ctx, "find-actionable", findActionableJS, args, &m)
	if err != nil || !found {
		return ui.Element{}, false, err
	}
	return m.element(ctlAttr), true, nil
}

func (p *Page) ListQueueRows(ctx context.Context) ([]ui.Row, error) {
	args := map[string]interface{}{"marker": p.headerMarker, "attr": rowAttr, "gen": p.nextGen()}
	var values []string
	if _, err := p.call(ctx, "list-rows", listRowsJS, args, &values); err != nil {
		return nil, err
	}
	rows := make([]ui.Row, len(values))
	for i, v := range values {
		rows[i] = ui.Row{Handle: selectorFor(rowAttr, v), Position: i}
	}
	return rows, nil
}

func (p *Page) RowSignature(ctx context.Context, row ui.Row) (string, error) {
	var sig string
	found, err := p.call(ctx, "row-signature", rowSignatureJS, map[string]string{"sel": row.Handle}, &sig)
	if err != nil {
		return "", err
	}
	if !found {
		return "", stale(row.Handle)
	}
	return sig, nil
}

func (p *Page) SelectionCandidates(ctx context.Context, row ui.Row) ([]ui.Element, error) {
	args := map[string]string{"sel": row.Handle, "attr": candAttr, "gen": p.nextGen()}
	var marked []markedElement
	found, err := p.call(ctx, "selection-candidates", selectionCandidatesJS, args, &marked)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, stale(row.Handle)
	}
	out := make([]ui.Element, len(marked))
	for i, m := range marked {
		out[i] = m.element(candAttr)
	}
	return out, nil
}

// Invoke clicks el. Either way the node is scrolled into view and flashed.
// With a Clicker the pointer then travels to it; otherwise the click is
// synthesized in the page.
func (p *Page) Invoke(ctx context.Context, el ui.Element) error {
	if p.clicker == nil {
		return p.syntheticClick(ctx, el)
	}
	var present bool
	args := map[string]string{"sel": el.Handle, "color": highlightColor(el.Role)}
	if _, err := p.call(ctx, "highlight", highlightJS, args, &present); err != nil {
		return err
	}
	if !present {
		return stale(el.Handle)
	}
	if err := p.clicker.IntelligentClick(ctx, el.Handle); err != nil {
		return fmt.Errorf("browser: clicking %q: %w", el.Text, err)
	}
	return nil
}

// highlightColor tints buttons green, menu entries blue and anything else red.
func highlightColor(role string) string {
	switch role {
	case "button":
		return colorAffirming
	case "menuitem", "li":
		return colorFallback
	}
	return colorPrimary
}

func (p *Page) syntheticClick(ctx context.Context, el ui.Element) error {
	var present bool
	args := map[string]string{"sel": el.Handle, "color": highlightColor(el.Role)}
	if _, err := p.call(ctx, "synthetic-click", syntheticClickJS, args, &present); err != nil {
		return err
	}
	if !present {
		return stale(el.Handle)
	}
	return nil
}

func (p *Page) OpenRowMenu(ctx context.Context, row ui.Row) (bool, error) {
	args := map[string]string{"sel": row.Handle, "attr": menuAttr, "value": "menu-" + p.nextGen()}
	var m markedElement
	found, err := p.call(ctx, "row-menu", rowMenuJS, args, &m)
	if err != nil {
		return false, err
	}
	if !found {
		return false, stale(row.Handle)
	}
	if m.Value == "" {
		p.logger.Debug("Row has no menu trigger.", zap.String("row", row.Handle))
		return false, nil
	}
	if err := p.Invoke(ctx, m.element(menuAttr)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Page) FindMenuAction(ctx context.Context, label string) (ui.Element, bool, error) {
	args := map[string]string{"label": label, "attr": ctlAttr, "value": "action-" + p.nextGen()}
	var m markedElement
	found, err := p.call(ctx, "menu-action", menuActionJS, args, &m)
	if err != nil || !found {
		return ui.Element{}, false, err
	}
	return m.element(ctlAttr), true, nil
}

func (p *Page) PageContains(ctx context.Context, text string) (bool, error) {
	var contains bool
	if _, err := p.call(ctx, "page-contains", pageContainsJS, map[string]string{"text": text}, &contains); err != nil {
		return false, err
	}
	return contains, nil
}

func (p *Page) ActiveTabLabel(ctx context.Context) (string, error) {
	var label string
	if _, err := p.call(ctx, "active-tab", activeTabJS, struct{}{}, &label); err != nil {
		return "", err
	}
	return label, nil
}

// NavigateBack clicks the tab whose label contains tabLabel.
func (p *Page) NavigateBack(ctx context.Context, tabLabel string) error {
	args := map[string]string{"label": tabLabel, "attr": ctlAttr, "value": "tab-" + p.nextGen()}
	var m markedElement
	found, err := p.call(ctx, "find-tab", findTabJS, args, &m)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("browser: no tab labelled %q", tabLabel)
	}
	p.logger.Debug("Returning to queue tab.", zap.String("tab", m.Text))
	return p.Invoke(ctx, m.element(ctlAttr))
}
