package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/api/schemas"
)

const (
	navigateTimeout = 45 * time.Second
	actionTimeout   = 10 * time.Second
)

// Session is one browser tab implementing schemas.Page over CDP.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cursor *cursor
}

var _ schemas.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, cur *cursor) *Session {
	return &Session{
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("session"),
		cursor: cur,
	}
}

// Close releases the tab. Safe to call on every exit path.
func (s *Session) Close() {
	s.cancel()
}

// run executes chromedp actions under both the session context and the
// caller's context, with a timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// Navigate loads a URL and waits for the document body to exist.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	err := s.run(ctx, navigateTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the page's present address.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, actionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// IsVisible reports whether a selector matches a rendered element right now.
// It never blocks waiting for the element to appear.
func (s *Session) IsVisible(ctx context.Context, selector string) bool {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 &&
			style.display !== 'none' && style.visibility !== 'hidden';
	})()`, strconv.Quote(selector))

	var visible bool
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &visible)); err != nil {
		s.logger.Debug("Visibility probe failed", zap.String("selector", selector), zap.Error(err))
		return false
	}
	return visible
}

// ClickSelector clicks the first visible match of a CSS selector.
func (s *Session) ClickSelector(ctx context.Context, selector string) error {
	err := s.run(ctx, actionTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}
	return nil
}

// ClickByText clicks the first visible clickable element containing the text.
func (s *Session) ClickByText(ctx context.Context, text string) error {
	xpath := fmt.Sprintf(
		`//*[self::button or self::a or @role="button" or @role="menuitem"][contains(normalize-space(.), "%s")]`,
		text,
	)
	err := s.run(ctx, actionTimeout,
		chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		return fmt.Errorf("click by text %q failed: %w", text, err)
	}
	return nil
}

// ClickAt walks the pointer to the viewport coordinates and dispatches a raw
// mouse press/release there. This bypasses hit-testing entirely; the caller's
// post-condition check is the only confirmation anything happened.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	actions := s.cursor.travel(x, y)
	actions = append(actions,
		input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1),
	)

	if err := s.run(ctx, actionTimeout, actions...); err != nil {
		return fmt.Errorf("coordinate click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// harvestJS enumerates visible interactive elements with their geometry. Kept
// deliberately broad: the target page carries no stable test ids, so anything
// clickable is a candidate for the geometry heuristic.
const harvestJS = `(() => {
	const out = [];
	const selectors = 'button, a, [role="button"], [role="menuitem"], [onclick], [class*="btn"], [class*="button"]';
	document.querySelectorAll(selectors).forEach(el => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		if (rect.width <= 0 || rect.height <= 0) return;
		if (style.display === 'none' || style.visibility === 'hidden') return;

		let selector = el.tagName.toLowerCase();
		if (el.id) {
			selector = '#' + el.id;
		} else if (el.getAttribute('aria-label')) {
			selector = selector + '[aria-label="' + el.getAttribute('aria-label') + '"]';
		}

		out.push({
			tag: el.tagName.toLowerCase(),
			selector: selector,
			text: (el.textContent || '').trim().substring(0, 120),
			x: rect.left,
			y: rect.top,
			width: rect.width,
			height: rect.height,
		});
	});
	return out.slice(0, 150);
})()`

// HarvestInteractive returns the visible interactive elements on the page.
func (s *Session) HarvestInteractive(ctx context.Context) ([]schemas.PageElement, error) {
	var elements []schemas.PageElement
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(harvestJS, &elements)); err != nil {
		return nil, fmt.Errorf("failed to harvest interactive elements: %w", err)
	}
	return elements, nil
}

// Evaluate runs a JavaScript expression and unmarshals its result into res.
func (s *Session) Evaluate(ctx context.Context, js string, res interface{}) error {
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, res)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// CaptureScreenshot takes a full-page screenshot for diagnostics.
func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, actionTimeout, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// CaptureHTML serializes the page markup for diagnostics and extraction.
func (s *Session) CaptureHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, actionTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page markup: %w", err)
	}
	return html, nil
}
