// Command runner performs one scrape cycle: pull the pending queue,
// look up every receipt on the case-status site, and report the
// outcomes back to the backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/apiclient"
	"github.com/tramitewatch/casestatus/internal/browser"
	"github.com/tramitewatch/casestatus/internal/cache"
	"github.com/tramitewatch/casestatus/internal/config"
	"github.com/tramitewatch/casestatus/internal/logger"
	"github.com/tramitewatch/casestatus/internal/pipeline"
	"github.com/tramitewatch/casestatus/internal/scraper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	log := logger.WithRun(logger.New(cfg.Log.Level, cfg.Log.Format), uuid.NewString())
	log.Info("Runner starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := apiclient.New(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout, log)

	items, err := api.GetQueue(ctx, cfg.API.Limit, cfg.API.Force)
	if err != nil {
		// Only context cancellation propagates out of GetQueue.
		log.WithError(err).Warn("Run cancelled while fetching queue")
		return 0
	}
	if len(items) == 0 {
		log.Info("Queue empty, nothing to do")
		return 0
	}
	log.WithField("items", len(items)).Info("Queue fetched")

	store := cache.New(ctx, cfg.Cache, log)
	defer store.Close()

	session, err := browser.NewSession(ctx, cfg.Browser, log)
	if err != nil {
		log.WithError(err).Error("Browser failed to start")
		return 1
	}
	defer session.Close()

	orch := pipeline.New(
		cfg.Scraper,
		cfg.API.Force,
		scraper.New(cfg.Scraper, log),
		sessionPages{session},
		store,
		log,
	)

	start := time.Now()
	batch := orch.Run(ctx, items)
	log.WithFields(logrus.Fields{
		"successes": len(batch.Successes),
		"blocked":   batch.Blocked,
		"failures":  len(batch.Failures) - batch.Blocked,
		"elapsed":   time.Since(start).Round(time.Second).String(),
	}).Info("Run complete")

	// Reporting runs on a fresh context so an interrupt that cut the
	// run short does not also swallow the outcomes. The HTTP client's
	// own timeout bounds these calls.
	reportCtx := context.Background()

	// Success reporting lands first and is escalated: undelivered
	// results mean the whole run was wasted, so the process exits
	// non-zero for the scheduler.
	code := 0
	if err := api.ReportResults(reportCtx, batch.Successes); err != nil {
		log.WithError(err).Error("Success report not delivered")
		code = 1
	}

	// Failure reporting is best effort; losing it costs one retry cycle.
	if err := api.ReportFailed(reportCtx, batch.Failures); err != nil {
		log.WithError(err).Warn("Failure report not delivered")
	}

	return code
}

// sessionPages adapts the browser session to the pipeline's factory.
type sessionPages struct {
	session *browser.Session
}

func (f sessionPages) NewPage() (scraper.Page, func(), error) {
	page, err := f.session.NewPage()
	if err != nil {
		return nil, nil, err
	}
	return page, page.Close, nil
}
