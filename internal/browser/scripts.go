// internal/browser/scripts.go
package browser

import "fmt"

// Elements handed to callers are tagged with a data attribute per handle
// kind; the value embeds a generation so a re-tagged node invalidates
// earlier handles.
const (
	rowAttr  = "data-autosubmit-row"
	candAttr = "data-autosubmit-cand"
	ctlAttr  = "data-autosubmit-ctl"
	menuAttr = "data-autosubmit-menu"
)

// selectorFor builds the handle for a tagged node.
func selectorFor(attr, value string) string {
	return fmt.Sprintf(`[%s=%q]`, attr, value)
}

// prelude is shared by every script. describe tags a node and returns the
// fields of a markedElement.
const prelude = `
const visible = (el) => !!el && el.offsetParent !== null;
const roleOf = (el) => (el.getAttribute('role') || el.tagName.toLowerCase());
const textOf = (el) => (el.textContent || '').trim().replace(/\s+/g, ' ');
const describe = (el, attr, value) => {
  el.setAttribute(attr, value);
  return { value: value, text: textOf(el), role: roleOf(el) };
};`

// buildScript wraps body in a function receiving args and stringifies the
// result. The leading comment names the script in DevTools and in tests.
func buildScript(name, body string, args interface{}) string {
	return fmt.Sprintf("/* autosubmit:%s */\nJSON.stringify((() => {%s\nconst args = %s;\n%s\n})() ?? null)",
		name, prelude, jsonEncode(args), body)
}

const findActionableJS = `
const want = (args.text || '').toLowerCase();
const roles = args.roles || [];
const el = Array.from(document.querySelectorAll('button, [role="button"], [role="menuitem"], [role="tab"]')).find(e => {
  if (!visible(e) || e.disabled || e.getAttribute('aria-disabled') === 'true') return false;
  if (!textOf(e).toLowerCase().includes(want)) return false;
  return roles.length === 0 || roles.includes(roleOf(e));
});
return el ? describe(el, args.attr, args.value) : null;`

// Rows are found through their checkboxes: the nearest enclosing TR, ARIA
// row or element whose class mentions "row". The header carries args.marker.
const listRowsJS = `
const rows = [];
for (const cb of document.querySelectorAll('input[type="checkbox"]')) {
  let p = cb.parentElement;
  while (p && p !== document.body) {
    const role = p.getAttribute('role') || '';
    const cls = typeof p.className === 'string' ? p.className : '';
    if (p.tagName === 'TR' || role.includes('row') || cls.includes('row')) break;
    p = p.parentElement;
  }
  if (p && p !== document.body && !rows.includes(p)) rows.push(p);
}
return rows
  .filter(r => !args.marker || !(r.textContent || '').includes(args.marker))
  .map((r, i) => {
    const v = args.gen + '-' + i;
    r.setAttribute(args.attr, v);
    return v;
  });`

const rowSignatureJS = `
const row = document.querySelector(args.sel);
return row ? textOf(row) : null;`

// The longest leaf text node is the likeliest click target, then its
// parent, then the row itself.
const selectionCandidatesJS = `
const row = document.querySelector(args.sel);
if (!row) return null;
const leaves = Array.from(row.querySelectorAll('*'))
  .filter(e => e.children.length === 0 && e.tagName !== 'INPUT' && textOf(e).length > 0);
leaves.sort((a, b) => textOf(b).length - textOf(a).length);
const picks = [];
if (leaves.length > 0) {
  picks.push(leaves[0]);
  if (leaves[0].parentElement) picks.push(leaves[0].parentElement);
}
picks.push(row);
return picks
  .filter((e, i) => picks.indexOf(e) === i)
  .map((e, i) => describe(e, args.attr, args.gen + '-' + i));`

// flashJS scrolls el into view and tints it briefly.
const flashJS = `
el.scrollIntoView({ behavior: 'auto', block: 'center' });
const bg = el.style.backgroundColor;
const tr = el.style.transition;
el.style.backgroundColor = args.color;
el.style.transition = 'background 0.2s';
setTimeout(() => { el.style.backgroundColor = bg; el.style.transition = tr; }, 300);`

// highlightJS runs ahead of a pointer-driven click.
const highlightJS = `
const el = document.querySelector(args.sel);
if (!el) return false;` + flashJS + `
return true;`

// syntheticClickJS flashes the node and dispatches the events a real click
// produces before calling click().
const syntheticClickJS = `
const el = document.querySelector(args.sel);
if (!el) return false;` + flashJS + `
const opts = { bubbles: true, cancelable: true, view: window, buttons: 1 };
el.dispatchEvent(new MouseEvent('mouseover', opts));
el.dispatchEvent(new MouseEvent('mousedown', opts));
el.dispatchEvent(new MouseEvent('mouseup', opts));
el.click();
return true;`

// rowMenuJS prefers a button labelled as a menu; otherwise the row's last
// button, which is where the overflow menu sits. {} means none.
const rowMenuJS = `
const row = document.querySelector(args.sel);
if (!row) return null;
const buttons = Array.from(row.querySelectorAll('button, [role="button"]')).filter(visible);
if (buttons.length === 0) return {};
const labelled = buttons.find(b => /more|menu|action/i.test(b.getAttribute('aria-label') || ''));
return describe(labelled || buttons[buttons.length - 1], args.attr, args.value);`

const menuActionJS = `
const want = args.label.toLowerCase();
const leaf = Array.from(document.querySelectorAll('body *'))
  .find(e => e.children.length === 0 && visible(e) && textOf(e).toLowerCase().includes(want));
if (!leaf) return null;
const target = leaf.closest('li, [role="menuitem"], button, [role="button"]') || leaf;
return describe(target, args.attr, args.value);`

const pageContainsJS = `
return !!document.body && (document.body.textContent || '').includes(args.text);`

const activeTabJS = `
const tab = document.querySelector('button[aria-selected="true"], div[aria-selected="true"], [role="tab"][aria-selected="true"]');
return tab ? textOf(tab) : '';`

const findTabJS = `
const want = args.label.toLowerCase();
const tab = Array.from(document.querySelectorAll('[role="tab"], button[aria-selected], div[aria-selected]'))
  .filter(visible)
  .find(t => textOf(t).toLowerCase().includes(want));
return tab ? describe(tab, args.attr, args.value) : null;`

// geometryJS returns the border box of a visible node, preferring
// getBoxQuads where the browser has it.
const geometryJS = `
const node = document.querySelector(args.sel);
if (!node) return null;
const rect = node.getBoundingClientRect();
const style = window.getComputedStyle(node);
if (rect.width <= 0 || rect.height <= 0 || style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
  return null;
}
let vertices = null;
if (typeof node.getBoxQuads === 'function') {
  const quads = node.getBoxQuads({ box: 'border' });
  if (quads && quads.length > 0) {
    const q = quads[0];
    vertices = [q.p1.x, q.p1.y, q.p2.x, q.p2.y, q.p3.x, q.p3.y, q.p4.x, q.p4.y];
  }
}
if (!vertices) {
  vertices = [rect.left, rect.top, rect.right, rect.top, rect.right, rect.bottom, rect.left, rect.bottom];
}
return { vertices: vertices, width: Math.round(rect.width), height: Math.round(rect.height) };`
