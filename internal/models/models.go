package models

// QueueItem is one pending lookup pulled from the backend queue.
// ExternalID is the backend's correlation key (tramite_id); ReceiptNumber
// is the government case identifier used against the status site.
type QueueItem struct {
	ExternalID    int64
	ReceiptNumber string
}

// OutcomeKind classifies what happened to a single queue item.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeBlocked means the anti-bot interstitial never cleared within
	// the time budget. Distinct from OutcomeFailed so the backend can
	// treat persistent blocks differently from layout breakage.
	OutcomeBlocked
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified result for one queue item. Exactly one
// Outcome is produced per item; the pipeline never drops items.
type Outcome struct {
	Kind    OutcomeKind
	Item    QueueItem
	HTML    string // result markup, set on success
	Reason  string // error description, set on blocked/failed
	Snippet string // optional page excerpt for operator debugging
}

// SuccessReport is the wire shape for one successful scrape.
type SuccessReport struct {
	TramiteID int64  `json:"tramite_id"`
	HTML      string `json:"html"`
}

// FailureReport is the wire shape for one failed scrape.
type FailureReport struct {
	ReceiptNumber string `json:"receipt_number"`
	Error         string `json:"error"`
}

// ReportBatch accumulates outcomes across a run. Successes and failures
// are flushed as two separate POSTs so the backend can apply different
// side effects to each batch.
type ReportBatch struct {
	Successes []SuccessReport
	Failures  []FailureReport

	// Blocked counts the failures caused by an uncleared interstitial.
	// They ride the failure batch on the wire; the count survives for
	// the run summary.
	Blocked int
}

// Add files an outcome into the matching batch list.
func (b *ReportBatch) Add(o Outcome) {
	switch o.Kind {
	case OutcomeSuccess:
		b.Successes = append(b.Successes, SuccessReport{
			TramiteID: o.Item.ExternalID,
			HTML:      o.HTML,
		})
	default:
		if o.Kind == OutcomeBlocked {
			b.Blocked++
		}
		b.Failures = append(b.Failures, FailureReport{
			ReceiptNumber: o.Item.ReceiptNumber,
			Error:         o.Reason,
		})
	}
}

// Total returns the number of classified items in the batch.
func (b *ReportBatch) Total() int {
	return len(b.Successes) + len(b.Failures)
}
