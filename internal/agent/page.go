package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"echoclicker/internal/models"
	"echoclicker/pkg/chrome"
)

// Tab is the slice of a DevTools tab session the agent drives.
type Tab interface {
	Evaluate(ctx context.Context, expression string, res interface{}, await bool) error
	Bind(ctx context.Context, name string, fn func(payload string)) error
	URL(ctx context.Context) (string, error)
}

const retryDelay = 100 * time.Millisecond

// waitScript resolves true once the selector matches, or false after the
// timeout (0 waits forever).
const waitScript = `new Promise((resolve, reject) => {
  const sel = %s, timeout = %d;
  const find = () => document.querySelector(sel);
  try { if (find()) return resolve(true); } catch (e) { return reject(e); }
  let timer = null;
  const obs = new MutationObserver(() => {
    if (find()) { obs.disconnect(); clearTimeout(timer); resolve(true); }
  });
  obs.observe(document.documentElement || document, { childList: true, subtree: true, attributes: true });
  if (timeout > 0) timer = setTimeout(() => { obs.disconnect(); resolve(!!find()); }, timeout);
})`

const clickScript = `(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.click();
  return true;
})()`

const setValueScript = `(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const value = %s;
  const proto = Object.getPrototypeOf(el);
  const desc = proto && Object.getOwnPropertyDescriptor(proto, 'value');
  if (desc && desc.set) desc.set.call(el, value); else el.value = value;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`

const pingScript = `typeof window.__echoAgent === 'object' && window.__echoAgent !== null && window.__echoAgent.version === 1`

// cdpPage implements Driver by evaluating script in the tab. Replay snippets
// are self-contained so they keep working after the page script is lost.
type cdpPage struct {
	tab Tab
}

func newCDPPage(tab Tab) *cdpPage {
	return &cdpPage{tab: tab}
}

func jsArgs(args ...interface{}) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", err
		}
		parts[i] = string(b)
	}
	return strings.Join(parts, ", "), nil
}

func unreachable(err error) error {
	return fmt.Errorf("%w: %v", models.ErrAgentUnreachable, err)
}

func (p *cdpPage) Ping(ctx context.Context) error {
	var ok bool
	if err := p.tab.Evaluate(ctx, pingScript, &ok, false); err != nil {
		return unreachable(err)
	}
	if !ok {
		return fmt.Errorf("%w: page script not loaded", models.ErrAgentUnreachable)
	}
	return nil
}

// call invokes a page-script method. The page answers 1 or 0, or -1 when the
// script is gone.
func (p *cdpPage) call(ctx context.Context, method string, args ...interface{}) (bool, error) {
	js, err := jsArgs(args...)
	if err != nil {
		return false, err
	}
	expr := fmt.Sprintf(`(() => { const a = window.__echoAgent; return a ? (a.%s(%s) ? 1 : 0) : -1; })()`, method, js)
	var res int
	if err := p.tab.Evaluate(ctx, expr, &res, false); err != nil {
		if chrome.IsContextLost(err) {
			return false, unreachable(err)
		}
		return false, fmt.Errorf("%s: %w", method, err)
	}
	if res < 0 {
		return false, fmt.Errorf("%w: page script not loaded", models.ErrAgentUnreachable)
	}
	return res == 1, nil
}

func (p *cdpPage) AttachRecorder(ctx context.Context) error {
	_, err := p.call(ctx, "startRecording")
	return err
}

func (p *cdpPage) DetachRecorder(ctx context.Context) error {
	_, err := p.call(ctx, "stopRecording")
	return err
}

func (p *cdpPage) ShowPicker(ctx context.Context, variant models.SelectionVariant) error {
	_, err := p.call(ctx, "enterSelection", string(variant))
	return err
}

func (p *cdpPage) HidePicker(ctx context.Context) error {
	_, err := p.call(ctx, "exitSelection")
	return err
}

func (p *cdpPage) Toast(ctx context.Context, message string) error {
	_, err := p.call(ctx, "toast", message)
	return err
}

func (p *cdpPage) ClickAt(ctx context.Context, x, y float64, pageCoords bool) (bool, error) {
	return p.call(ctx, "clickAt", x, y, pageCoords)
}

// WaitFor watches DOM mutations until selector matches. A navigation that
// replaces the document re-arms the wait in the new one.
func (p *cdpPage) WaitFor(ctx context.Context, selector string) error {
	sel, err := jsArgs(selector)
	if err != nil {
		return err
	}
	for {
		var ms int64
		if deadline, ok := ctx.Deadline(); ok {
			ms = time.Until(deadline).Milliseconds()
			if ms <= 0 {
				return context.DeadlineExceeded
			}
		}

		var found bool
		err := p.tab.Evaluate(ctx, fmt.Sprintf(waitScript, sel, ms), &found, true)
		switch {
		case err == nil && found:
			return nil
		case err == nil:
			return context.DeadlineExceeded
		case ctx.Err() != nil:
			return ctx.Err()
		case chrome.IsContextLost(err):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		case strings.Contains(err.Error(), "SyntaxError"):
			return fmt.Errorf("%w: invalid selector %q", models.ErrInvalidRequest, selector)
		default:
			return err
		}
	}
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	sel, err := jsArgs(selector)
	if err != nil {
		return err
	}
	return p.runOnElement(ctx, selector, fmt.Sprintf(clickScript, sel))
}

func (p *cdpPage) SetValue(ctx context.Context, selector, value string) error {
	sel, err := jsArgs(selector)
	if err != nil {
		return err
	}
	val, err := jsArgs(value)
	if err != nil {
		return err
	}
	return p.runOnElement(ctx, selector, fmt.Sprintf(setValueScript, sel, val))
}

func (p *cdpPage) runOnElement(ctx context.Context, selector, expr string) error {
	var ok bool
	err := p.tab.Evaluate(ctx, expr, &ok, false)
	switch {
	case err != nil && chrome.IsContextLost(err):
		// the action itself navigated away before the result came back
		return nil
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("%w: %s", models.ErrElementNotFound, selector)
	}
	return nil
}
