// Package pipeline runs the queue sequentially through the scraper and
// classifies every item into exactly one outcome.
package pipeline

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tramitewatch/casestatus/internal/config"
	"github.com/tramitewatch/casestatus/internal/models"
	"github.com/tramitewatch/casestatus/internal/retry"
	"github.com/tramitewatch/casestatus/internal/scraper"
)

// Scraper performs one lookup on a page. Satisfied by *scraper.Scraper.
type Scraper interface {
	Scrape(ctx context.Context, page scraper.Page, receipt string) (string, error)
}

// PageFactory opens fresh isolated pages. Satisfied by *browser.Session.
type PageFactory interface {
	NewPage() (scraper.Page, func(), error)
}

// Cache stores scraped markup keyed by receipt. Satisfied by
// *cache.Store; may be nil to disable caching entirely.
type Cache interface {
	Get(ctx context.Context, receipt string) (string, bool)
	Set(ctx context.Context, receipt, html string)
}

// Orchestrator walks the queue one item at a time. Sequential on
// purpose: the target site rate-limits aggressively, and parallel tabs
// multiply the block risk without improving throughput.
type Orchestrator struct {
	cfg     config.ScraperConfig
	force   bool
	scraper Scraper
	pages   PageFactory
	cache   Cache
	limiter *rate.Limiter
	log     *logrus.Entry
}

// New creates an orchestrator. force bypasses cache reads but still
// writes fresh results back.
func New(cfg config.ScraperConfig, force bool, sc Scraper, pages PageFactory, cache Cache, log *logrus.Entry) *Orchestrator {
	perMinute := cfg.NavPerMinute
	if perMinute < 1 {
		perMinute = 1
	}
	return &Orchestrator{
		cfg:     cfg,
		force:   force,
		scraper: sc,
		pages:   pages,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		log:     log,
	}
}

// Run processes every queue item and returns the full batch of
// outcomes. Each input item yields exactly one outcome; cancellation
// mid-run converts the unprocessed remainder into failures so the
// backend still hears about every item.
func (o *Orchestrator) Run(ctx context.Context, items []models.QueueItem) models.ReportBatch {
	var batch models.ReportBatch

	for i, item := range items {
		if ctx.Err() != nil {
			o.failRemainder(&batch, items[i:])
			break
		}

		if i > 0 {
			if !retry.Sleep(ctx, o.jitter()) {
				o.failRemainder(&batch, items[i:])
				break
			}
		}

		batch.Add(o.process(ctx, item))
	}

	return batch
}

// process produces the single outcome for one item.
func (o *Orchestrator) process(ctx context.Context, item models.QueueItem) models.Outcome {
	log := o.log.WithFields(logrus.Fields{
		"receipt":     item.ReceiptNumber,
		"external_id": item.ExternalID,
	})

	if o.cache != nil && !o.force {
		if html, ok := o.cache.Get(ctx, item.ReceiptNumber); ok {
			log.Info("Serving cached status")
			return models.Outcome{Kind: models.OutcomeSuccess, Item: item, HTML: html}
		}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return models.Outcome{
			Kind:   models.OutcomeFailed,
			Item:   item,
			Reason: "run interrupted",
		}
	}

	var html string
	err := retry.Do(ctx, retry.Config{
		Attempts:  o.cfg.MaxAttempts,
		BaseDelay: o.cfg.RetryBaseDelay,
		Jitter:    0.3,
		Permanent: scraper.IsBlocked,
	}, log, func(ctx context.Context) error {
		page, closePage, err := o.pages.NewPage()
		if err != nil {
			return err
		}
		defer closePage()

		html, err = o.scraper.Scrape(ctx, page, item.ReceiptNumber)
		return err
	})

	if err != nil {
		return o.classify(item, err, log)
	}

	if o.cache != nil {
		o.cache.Set(ctx, item.ReceiptNumber, html)
	}
	log.Info("Status scraped")
	return models.Outcome{Kind: models.OutcomeSuccess, Item: item, HTML: html}
}

// classify maps a final scrape error to its outcome. Blocked is its own
// class so operators can tell anti-bot pressure from site drift.
func (o *Orchestrator) classify(item models.QueueItem, err error, log *logrus.Entry) models.Outcome {
	kind := models.OutcomeFailed
	snippet := scraper.SnippetOf(err)
	entry := log
	if snippet != "" {
		entry = entry.WithField("snippet", snippet)
	}
	if scraper.IsBlocked(err) {
		kind = models.OutcomeBlocked
		entry.WithError(err).Warn("Receipt blocked by interstitial")
	} else {
		entry.WithError(err).Warn("Receipt failed")
	}
	return models.Outcome{
		Kind:    kind,
		Item:    item,
		Reason:  err.Error(),
		Snippet: snippet,
	}
}

// failRemainder records every unprocessed item as failed after a
// cancellation so the batch stays complete.
func (o *Orchestrator) failRemainder(batch *models.ReportBatch, rest []models.QueueItem) {
	o.log.WithField("remaining", len(rest)).Warn("Run interrupted, failing remaining items")
	for _, item := range rest {
		batch.Add(models.Outcome{
			Kind:   models.OutcomeFailed,
			Item:   item,
			Reason: "run interrupted",
		})
	}
}

// jitter picks a random inter-item delay in [JitterMin, JitterMax].
func (o *Orchestrator) jitter() time.Duration {
	min, max := o.cfg.JitterMin, o.cfg.JitterMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
