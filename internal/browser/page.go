package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Page is one isolated tab. Every DOM primitive is bounded by an
// explicit timeout; there is no unbounded wait anywhere.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Close releases the tab. Safe on a zero-value Page.
func (p *Page) Close() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Page) bound(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(p.ctx, timeout)
}

// Navigate loads url and waits for the document body to be ready.
func (p *Page) Navigate(url string, timeout time.Duration) error {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	return chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Title returns the current document title.
func (p *Page) Title() (string, error) {
	ctx, cancel := p.bound(textProbeTimeout)
	defer cancel()
	var title string
	err := chromedp.Run(ctx, chromedp.Title(&title))
	return title, err
}

// BodyText returns the visible body text.
func (p *Page) BodyText() (string, error) {
	ctx, cancel := p.bound(textProbeTimeout)
	defer cancel()
	var text string
	err := chromedp.Run(ctx, chromedp.Text("body", &text, chromedp.ByQuery))
	return text, err
}

// Visible reports whether sel is visible within timeout. A timeout is
// an ordinary "no": selector chains probe candidates with short waits
// and move on.
func (p *Page) Visible(sel string, timeout time.Duration) bool {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.WaitVisible(sel, chromedp.ByQuery)) == nil
}

// Fill clears sel and types value into it. Typing (rather than value
// assignment) fires the input events client-side validation listens for.
func (p *Page) Fill(sel, value string, timeout time.Duration) error {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	return chromedp.Run(ctx,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
}

// Click clicks sel.
func (p *Page) Click(sel string, timeout time.Duration) error {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

// PressEnter submits by sending Enter to sel, for layouts with no
// discoverable submit control.
func (p *Page) PressEnter(sel string, timeout time.Duration) error {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	return chromedp.Run(ctx, chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery))
}

// HTML returns the full page markup.
func (p *Page) HTML(timeout time.Duration) (string, error) {
	ctx, cancel := p.bound(timeout)
	defer cancel()
	var html string
	err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}
