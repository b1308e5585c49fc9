// Package challenge detects and waits out passive anti-bot interstitials.
// It never solves an interactive challenge; it only distinguishes "still
// loading" from "actively blocked" so the caller can stop retrying a
// receipt that will never clear.
package challenge

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/retry"
)

// Signatures that mark a page as an interstitial. Matched lowercase
// against the page title and body text.
var (
	challengeTitles = []string{
		"just a moment",
		"checking your browser",
		"attention required",
		"please wait",
		"access denied",
		"ddos-guard",
	}
	challengeBodyHints = []string{
		"verifying you are human",
		"verify you are human",
		"checking if the site connection is secure",
		"enable javascript and cookies to continue",
		"cf-browser-verification",
		"challenge-platform",
		"cf-chl",
	}
)

// Probe supplies the page signals the handler needs. The scraper adapts
// its live page to this interface; tests stub it.
type Probe interface {
	// Title returns the current document title.
	Title() (string, error)
	// BodyText returns the visible body text.
	BodyText() (string, error)
	// TargetVisible reports whether the awaited element (the receipt
	// input) is already on screen, which always means cleared.
	TargetVisible() bool
}

// Options bound the wait loop.
type Options struct {
	MaxCycles  int
	CycleDelay time.Duration
	MaxWait    time.Duration
	Jitter     float64
}

// Handler probes a page for interstitial signatures within a bounded
// time budget.
type Handler struct {
	opts Options
	log  *logrus.Entry
}

// New creates a challenge handler.
func New(opts Options, log *logrus.Entry) *Handler {
	if opts.MaxCycles < 1 {
		opts.MaxCycles = 1
	}
	return &Handler{opts: opts, log: log}
}

// Pass waits for the interstitial to clear. It returns true once the
// target element is visible or the signatures stop matching, and false
// when MaxCycles or MaxWait is exhausted with the page still challenged.
// It never hangs: every probe cycle is bounded by the deadline.
func (h *Handler) Pass(ctx context.Context, p Probe) bool {
	deadline := time.Now().Add(h.opts.MaxWait)

	for cycle := 1; cycle <= h.opts.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			return false
		}

		if p.TargetVisible() {
			if cycle > 1 {
				h.log.WithField("cycle", cycle).Info("Challenge cleared")
			}
			return true
		}

		challenged, hint := h.challenged(p)
		if !challenged {
			// No signature and no target yet: the page is merely slow,
			// not challenged. Let the selector waits downstream decide.
			return true
		}

		h.log.WithFields(logrus.Fields{
			"cycle": cycle,
			"hint":  hint,
		}).Debug("Interstitial still present")

		if cycle == h.opts.MaxCycles || !time.Now().Before(deadline) {
			break
		}

		delay := retry.Backoff(h.opts.CycleDelay, cycle, h.opts.Jitter)
		if remaining := time.Until(deadline); delay > remaining {
			delay = remaining
		}
		if !retry.Sleep(ctx, delay) {
			return false
		}
	}

	h.log.WithFields(logrus.Fields{
		"max_cycles": h.opts.MaxCycles,
		"max_wait":   h.opts.MaxWait.String(),
	}).Warn("Challenge never cleared within budget")
	return false
}

// challenged reports whether any interstitial signature currently
// matches, along with the matching hint.
func (h *Handler) challenged(p Probe) (bool, string) {
	if title, err := p.Title(); err == nil {
		lower := strings.ToLower(title)
		for _, t := range challengeTitles {
			if strings.Contains(lower, t) {
				return true, t
			}
		}
	}
	if body, err := p.BodyText(); err == nil {
		lower := strings.ToLower(body)
		for _, hint := range challengeBodyHints {
			if strings.Contains(lower, hint) {
				return true, hint
			}
		}
	}
	return false, ""
}
