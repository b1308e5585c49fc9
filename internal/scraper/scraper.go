// Package scraper drives the case-status form for one receipt number
// and extracts the resulting status markup.
package scraper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/challenge"
	"github.com/tramitewatch/casestatus/internal/config"
	"github.com/tramitewatch/casestatus/internal/retry"
)

// Page is the subset of browser page operations the scraper drives.
// The browser package provides the live implementation; tests stub it.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Title() (string, error)
	BodyText() (string, error)
	Visible(sel string, timeout time.Duration) bool
	Fill(sel, value string, timeout time.Duration) error
	Click(sel string, timeout time.Duration) error
	PressEnter(sel string, timeout time.Duration) error
	HTML(timeout time.Duration) (string, error)
}

// Scraper looks up one receipt number per call on a fresh page.
type Scraper struct {
	cfg        config.ScraperConfig
	chains     Chains
	challenges *challenge.Handler
	log        *logrus.Entry
}

// New creates a scraper with the default selector chains.
func New(cfg config.ScraperConfig, log *logrus.Entry) *Scraper {
	return &Scraper{
		cfg:    cfg,
		chains: DefaultChains(),
		challenges: challenge.New(challenge.Options{
			MaxCycles:  cfg.ChallengeMaxCycles,
			CycleDelay: cfg.ChallengeCycleDelay,
			MaxWait:    cfg.ChallengeMaxWait,
			Jitter:     0.3,
		}, log),
		log: log,
	}
}

// pageProbe adapts a Page to the challenge handler. The awaited target
// is the receipt input: once it is visible the interstitial is gone.
type pageProbe struct {
	page    Page
	input   Chain
	timeout time.Duration
}

func (p pageProbe) Title() (string, error)    { return p.page.Title() }
func (p pageProbe) BodyText() (string, error) { return p.page.BodyText() }
func (p pageProbe) TargetVisible() bool {
	_, ok := p.input.Resolve(func(sel string) bool {
		return p.page.Visible(sel, p.timeout)
	})
	return ok
}

// Scrape performs one lookup: navigate, pass the interstitial, fill and
// submit the form, wait for a result, extract. Every failure carries a
// kind; the pipeline never inspects message text.
func (s *Scraper) Scrape(ctx context.Context, page Page, receipt string) (string, error) {
	log := s.log.WithField("receipt", receipt)

	if err := s.navigate(page); err != nil {
		return "", err
	}

	probe := pageProbe{page: page, input: s.chains.Input, timeout: s.cfg.SelectorTimeout}
	if !s.challenges.Pass(ctx, probe) {
		return "", &ScrapeError{
			Kind:    KindBlocked,
			Receipt: receipt,
			Msg:     "challenge never cleared",
		}
	}

	inputSel, ok := s.chains.Input.Resolve(func(sel string) bool {
		return page.Visible(sel, s.cfg.SelectorTimeout)
	})
	if !ok {
		return "", &ScrapeError{
			Kind:    KindInputNotFound,
			Receipt: receipt,
			Msg:     "input not found",
			Snippet: s.snippet(page),
		}
	}

	if err := page.Fill(inputSel, receipt, s.cfg.SelectorTimeout); err != nil {
		return "", &ScrapeError{
			Kind:    KindInputNotFound,
			Receipt: receipt,
			Msg:     "receipt input rejected typing",
			Err:     err,
		}
	}

	if err := s.submit(page, inputSel); err != nil {
		return "", &ScrapeError{
			Kind:    KindSubmitNotFound,
			Receipt: receipt,
			Msg:     "form could not be submitted",
			Err:     err,
		}
	}

	if !s.waitResult(ctx, page) {
		log.Debug("No result container appeared, extracting whole page")
	}

	html, err := page.HTML(s.cfg.SelectorTimeout)
	if err != nil {
		return "", &ScrapeError{
			Kind:    KindExtraction,
			Receipt: receipt,
			Msg:     "result page markup unavailable",
			Err:     err,
		}
	}

	return Extract(html, receipt, s.chains.Result, s.cfg.MinContentLen)
}

// navigate loads the primary entry URL and falls back to the legacy one
// when the primary fails outright.
func (s *Scraper) navigate(page Page) error {
	err := page.Navigate(s.cfg.EntryURL, s.cfg.NavTimeout)
	if err == nil {
		return nil
	}
	s.log.WithError(err).Warn("Primary entry URL failed, trying legacy URL")

	if s.cfg.LegacyEntryURL != "" {
		if legacyErr := page.Navigate(s.cfg.LegacyEntryURL, s.cfg.NavTimeout); legacyErr == nil {
			return nil
		}
	}
	return &ScrapeError{
		Kind: KindNavigation,
		Msg:  "entry page unreachable",
		Err:  err,
	}
}

// submit clicks the first visible submit control, or falls back to
// pressing Enter in the input field when the layout hides the button.
func (s *Scraper) submit(page Page, inputSel string) error {
	submitSel, ok := s.chains.Submit.Resolve(func(sel string) bool {
		return page.Visible(sel, s.cfg.SelectorTimeout)
	})
	if ok {
		return page.Click(submitSel, s.cfg.SelectorTimeout)
	}
	s.log.Debug("No submit control found, pressing Enter")
	return page.PressEnter(inputSel, s.cfg.SelectorTimeout)
}

// waitResult polls the result chain until a container shows up or the
// result budget elapses. Submit may or may not trigger a navigation, so
// container appearance is the only signal worth trusting.
func (s *Scraper) waitResult(ctx context.Context, page Page) bool {
	deadline := time.Now().Add(s.cfg.ResultTimeout)
	probeTimeout := s.cfg.SelectorTimeout
	if probeTimeout > 2*time.Second {
		probeTimeout = 2 * time.Second
	}

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		if _, ok := s.chains.Result.Resolve(func(sel string) bool {
			return page.Visible(sel, probeTimeout)
		}); ok {
			return true
		}
		if !retry.Sleep(ctx, 500*time.Millisecond) {
			return false
		}
	}
	return false
}

// snippet captures a short excerpt of the current page for operator
// debugging when a selector chain comes up empty.
func (s *Scraper) snippet(page Page) string {
	text, err := page.BodyText()
	if err != nil {
		return ""
	}
	return truncate(text, snippetLimit)
}
