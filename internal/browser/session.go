// Package browser manages the headless Chrome session and page
// lifecycle. All chromedp wiring lives here so the scraping logic only
// sees the Page primitives.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/fetch"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/config"
)

// stealthScript softens the most common automation fingerprints before
// any site script runs. It is injected into every new document.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = window.chrome || { runtime: {} };
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`

// Session owns one browser process and hands out isolated pages. It is
// not safe for concurrent use; the pipeline drives it sequentially.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	proxy         config.ProxyConfig
	log           *logrus.Entry
}

// NewSession launches an isolated browser context with a realistic
// viewport, locale and user agent. The parent ctx scopes the whole
// browser process: cancelling it (e.g. on SIGINT) tears everything down.
func NewSession(ctx context.Context, cfg config.BrowserConfig, log *logrus.Entry) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", cfg.Locale),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if proxyURL := cfg.Proxy.ServerURL(); proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
		log.WithField("proxy", cfg.Proxy.Host).Info("Routing browser traffic through proxy")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		proxy:         cfg.Proxy,
		log:           log,
	}

	// Launch and verify the browser before any real work.
	startCtx, cancel := context.WithTimeout(browserCtx, cfg.StartTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser start failed: %w", err)
	}

	log.Info("Browser session started")
	return s, nil
}

// NewPage opens a fresh tab for one queue item so cookies and
// navigation state from a failed attempt never leak into the next one.
// The stealth patches and proxy credentials are installed before any
// navigation happens.
func (s *Session) NewPage() (*Page, error) {
	pageCtx, cancel := chromedp.NewContext(s.browserCtx)

	if s.proxy.Enabled && s.proxy.Username != "" {
		if err := chromedp.Run(pageCtx, fetch.Enable().WithHandleAuthRequests(true)); err != nil {
			cancel()
			return nil, fmt.Errorf("enable proxy auth interception: %w", err)
		}
		s.listenProxyAuth(pageCtx)
	}

	err := chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("install stealth patches: %w", err)
	}

	return &Page{ctx: pageCtx, cancel: cancel}, nil
}

// listenProxyAuth answers the proxy's auth challenge with the
// configured credentials and lets every other paused request through.
func (s *Session) listenProxyAuth(pageCtx context.Context) {
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventAuthRequired:
			go func() {
				err := chromedp.Run(pageCtx, fetch.ContinueWithAuth(
					e.RequestID,
					&fetch.AuthChallengeResponse{
						Response: fetch.AuthChallengeResponseResponseProvideCredentials,
						Username: s.proxy.Username,
						Password: s.proxy.Password,
					},
				))
				if err != nil {
					s.log.WithError(err).Debug("Proxy auth response failed")
				}
			}()
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(pageCtx, fetch.ContinueRequest(e.RequestID))
			}()
		}
	})
}

// Close tears down the browser process and every page it owns. Safe to
// call more than once; main defers it so no Chrome subprocess outlives
// the run.
func (s *Session) Close() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
}

// textProbeTimeout bounds title/body reads used for diagnostics and
// challenge probing so a wedged page cannot stall the whole item.
const textProbeTimeout = 3 * time.Second
