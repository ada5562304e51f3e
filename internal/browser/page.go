// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

const (
	defaultNavTimeout = 60 * time.Second

	jsIsVisible = `function() {
	const r = this.getBoundingClientRect();
	if (r.width === 0 || r.height === 0) return false;
	const s = window.getComputedStyle(this);
	return s.display !== 'none' && s.visibility !== 'hidden';
}`

	jsIsDisabled = `function() {
	return !!this.disabled || this.getAttribute('aria-disabled') === 'true';
}`

	jsTextContent = `function() {
	return (this.innerText || this.textContent || '').trim();
}`

	jsClick = `function() { this.click(); }`

	// Contenteditable editors keep their own model, so content is removed the
	// way a user would remove it rather than by assigning textContent.
	jsClear = `function() {
	this.focus();
	if (this.isContentEditable) {
		const range = document.createRange();
		range.selectNodeContents(this);
		const sel = window.getSelection();
		sel.removeAllRanges();
		sel.addRange(range);
		document.execCommand('delete');
		return;
	}
	if ('value' in this) {
		this.value = '';
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}
}`
)

// chromeElement is a DOM node found on a chromePage.
type chromeElement struct {
	node  *cdp.Node
	query string
}

func (e *chromeElement) Description() string {
	return fmt.Sprintf("%s <%s>", e.query, e.node.LocalName)
}

// chromePage drives one browser tab.
type chromePage struct {
	id         string
	session    *chromeSession
	ctx        context.Context
	cancel     context.CancelFunc
	primary    bool
	navTimeout time.Duration
	logger     *zap.Logger

	closeOnce sync.Once
}

var _ schemas.Page = (*chromePage)(nil)

func (p *chromePage) ID() string { return p.id }

// run executes actions on this tab, bounded by the caller's ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's deadline rather than the derived cancellation.
		if ctx.Err() != nil {
			return fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return err
	}
	return nil
}

func (p *chromePage) onNode(ctx context.Context, h schemas.ElementHandle, fn func(ctx context.Context, node *cdp.Node) error) error {
	el, ok := h.(*chromeElement)
	if !ok {
		return fmt.Errorf("element handle %T does not belong to a chrome page", h)
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return fn(ctx, el.node)
	}))
}

// call runs function with the element bound to this. The node is resolved to
// a remote object first; res is decoded from the returned value.
func (p *chromePage) call(ctx context.Context, h schemas.ElementHandle, function string, res interface{}) error {
	return p.onNode(ctx, h, func(ctx context.Context, node *cdp.Node) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve node for %s: %w", h.Description(), err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(function, res,
			func(params *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return params.WithObjectID(obj.ObjectID)
			},
		).Do(ctx)
	})
}

// Navigate loads url and waits for the load event.
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	timeout := p.navTimeout
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v", url, timeout)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// QueryAll returns the current matches of d without waiting for any.
func (p *chromePage) QueryAll(ctx context.Context, d schemas.Descriptor) ([]schemas.ElementHandle, error) {
	by := chromedp.ByQueryAll
	if d.By == schemas.ByXPath {
		by = chromedp.BySearch
	}
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(d.Query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	handles := make([]schemas.ElementHandle, 0, len(nodes))
	for _, n := range nodes {
		handles = append(handles, &chromeElement{node: n, query: d.String()})
	}
	return handles, nil
}

func (p *chromePage) IsVisible(ctx context.Context, h schemas.ElementHandle) (bool, error) {
	var visible bool
	err := p.call(ctx, h, jsIsVisible, &visible)
	return visible, err
}

func (p *chromePage) IsDisabled(ctx context.Context, h schemas.ElementHandle) (bool, error) {
	var disabled bool
	err := p.call(ctx, h, jsIsDisabled, &disabled)
	return disabled, err
}

func (p *chromePage) TextContent(ctx context.Context, h schemas.ElementHandle) (string, error) {
	var text string
	err := p.call(ctx, h, jsTextContent, &text)
	return text, err
}

func (p *chromePage) Click(ctx context.Context, h schemas.ElementHandle) error {
	return p.onNode(ctx, h, func(ctx context.Context, node *cdp.Node) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID).Do(ctx); err != nil {
			return err
		}
		return chromedp.MouseClickNode(node).Do(ctx)
	})
}

func (p *chromePage) ClickDOM(ctx context.Context, h schemas.ElementHandle) error {
	return p.call(ctx, h, jsClick, nil)
}

// Hover moves the pointer to the element's center.
func (p *chromePage) Hover(ctx context.Context, h schemas.ElementHandle) error {
	return p.onNode(ctx, h, func(ctx context.Context, node *cdp.Node) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(node.NodeID).Do(ctx); err != nil {
			return err
		}
		box, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		x, y := center(box.Content)
		return chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx)
	})
}

func (p *chromePage) Clear(ctx context.Context, h schemas.ElementHandle) error {
	return p.call(ctx, h, jsClear, nil)
}

// TypeText focuses the element and inserts text as a single input event.
func (p *chromePage) TypeText(ctx context.Context, h schemas.ElementHandle, text string) error {
	return p.onNode(ctx, h, func(ctx context.Context, node *cdp.Node) error {
		if err := dom.Focus().WithNodeID(node.NodeID).Do(ctx); err != nil {
			return err
		}
		return input.InsertText(text).Do(ctx)
	})
}

func (p *chromePage) PressKey(ctx context.Context, key string) error {
	return p.run(ctx, chromedp.KeyEvent(keyFor(key)))
}

// ExpectDownload routes downloads into dir until release is called. Routing is
// browser-wide, so concurrent captures in one session take turns; waiting for
// a turn ends with ctx.
func (p *chromePage) ExpectDownload(ctx context.Context, dir string) (func(), error) {
	if err := p.session.downloads.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting to route downloads to %s: %w", dir, err)
	}

	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		// The browser executor keeps the command from carrying this tab's sessionId.
		return cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir).
			Do(cdp.WithExecutor(ctx, c.Browser))
	}))
	if err != nil {
		p.session.downloads.Release(1)
		return nil, fmt.Errorf("failed to route downloads to %s: %w", dir, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			resetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := p.run(resetCtx, chromedp.ActionFunc(func(ctx context.Context) error {
				c := chromedp.FromContext(ctx)
				return cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorDefault).
					Do(cdp.WithExecutor(ctx, c.Browser))
			}))
			if err != nil {
				p.logger.Debug("Failed to reset download behavior.", zap.Error(err))
			}
			p.session.downloads.Release(1)
		})
	}
	return release, nil
}

// Close closes the tab. Closing the primary tab leaves the browser running.
func (p *chromePage) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.session.forget(p.id)
		if p.primary {
			err = p.run(ctx, cdppage.Close())
			return
		}
		p.cancel()
	})
	return err
}

func center(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}

func keyFor(key string) string {
	switch key {
	case "Enter":
		return kb.Enter
	case "Escape":
		return kb.Escape
	case "Tab":
		return kb.Tab
	default:
		return key
	}
}
