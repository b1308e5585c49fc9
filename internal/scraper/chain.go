package scraper

// Chain is an ordered list of candidate selectors for one logical UI
// element. Order encodes fallback priority: the first visible candidate
// wins, and the order must be preserved as the site's layout drifts.
type Chain []string

// Resolve walks the chain in declared order and returns the first
// candidate the probe reports visible. The probe owns the per-candidate
// timeout.
func (c Chain) Resolve(visible func(sel string) bool) (string, bool) {
	for _, sel := range c {
		if visible(sel) {
			return sel, true
		}
	}
	return "", false
}

// Chains groups the selector chains for the three logical elements of
// the status form.
type Chains struct {
	Input  Chain
	Submit Chain
	Result Chain
}

// DefaultChains covers the layout variants of the case-status site seen
// in production. Most specific first; the generic tail keeps a lookup
// alive through cosmetic redesigns.
func DefaultChains() Chains {
	return Chains{
		Input: Chain{
			`#receipt_number`,
			`input[name="appReceiptNum"]`,
			`input[name="receipt_number"]`,
			`#caseStatusSearchInput`,
			`form input[type="text"]`,
		},
		Submit: Chain{
			`#caseStatusSearchBtn`,
			`input[name="initCaseSearch"]`,
			`button[type="submit"]`,
			`input[type="submit"]`,
		},
		Result: Chain{
			`div.current-status-sec`,
			`div.appointment-sec`,
			`div.rows.text-center`,
			`#formErrorMessages`,
			`div.main-notice`,
		},
	}
}
