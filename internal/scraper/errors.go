package scraper

import (
	"errors"
	"fmt"
)

// ErrorKind tags a scrape failure at the point of detection so the
// pipeline classifies outcomes without matching on message text.
type ErrorKind int

const (
	KindNavigation ErrorKind = iota
	// KindBlocked: the interstitial never cleared within its budget.
	// Terminal for the item; retrying an active block wastes the budget.
	KindBlocked
	KindInputNotFound
	KindSubmitNotFound
	KindInsufficientContent
	KindExtraction
)

func (k ErrorKind) String() string {
	switch k {
	case KindNavigation:
		return "navigation"
	case KindBlocked:
		return "blocked"
	case KindInputNotFound:
		return "input_not_found"
	case KindSubmitNotFound:
		return "submit_not_found"
	case KindInsufficientContent:
		return "insufficient_content"
	case KindExtraction:
		return "extraction"
	default:
		return "unknown"
	}
}

// ScrapeError is a per-item failure with its kind attached.
type ScrapeError struct {
	Kind    ErrorKind
	Receipt string
	Msg     string
	Snippet string // optional page excerpt for operator debugging
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// KindOf extracts the kind from err, if it carries one.
func KindOf(err error) (ErrorKind, bool) {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// SnippetOf extracts the diagnostic snippet from err, if any.
func SnippetOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Snippet
	}
	return ""
}

// IsBlocked reports whether err is a terminal block.
func IsBlocked(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBlocked
}
