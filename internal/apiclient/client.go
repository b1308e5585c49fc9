// Package apiclient talks to the backend queue/report API with bearer
// auth and JSON bodies.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tramitewatch/casestatus/internal/models"
)

// Client wraps the queue and report endpoints.
type Client struct {
	base   string
	token  string
	client *http.Client
	log    *logrus.Entry
}

// New creates an API client. The base URL is normalized once here; all
// endpoint paths are joined against the normalized form.
func New(baseURL, token string, timeout time.Duration, log *logrus.Entry) *Client {
	return &Client{
		base:   NormalizeBase(baseURL),
		token:  token,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// NormalizeBase trims whitespace, strips trailing slashes and collapses
// a duplicated trailing path segment ("…/api/api" -> "…/api"). The
// deployed base URL arrives with or without the sub-path prefix already
// attached, so normalization must be idempotent.
func NormalizeBase(raw string) string {
	s := strings.TrimSpace(raw)
	for strings.HasSuffix(s, "/") {
		s = strings.TrimSuffix(s, "/")
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return s
	}
	segs := strings.Split(trimmed, "/")
	for len(segs) >= 2 && segs[len(segs)-1] == segs[len(segs)-2] {
		segs = segs[:len(segs)-1]
	}
	u.Path = "/" + strings.Join(segs, "/")
	return u.String()
}

// queueEntry tolerates the field namings used across backend versions:
// the list key varies (queue/tramites/items) and the correlation key is
// either tramite_id or id.
type queueEntry struct {
	ReceiptNumber string      `json:"receipt_number"`
	TramiteID     json.Number `json:"tramite_id"`
	ID            json.Number `json:"id"`
}

type queueEnvelope struct {
	Queue    []queueEntry `json:"queue"`
	Tramites []queueEntry `json:"tramites"`
	Items    []queueEntry `json:"items"`
}

func (e *queueEnvelope) entries() []queueEntry {
	switch {
	case len(e.Queue) > 0:
		return e.Queue
	case len(e.Tramites) > 0:
		return e.Tramites
	default:
		return e.Items
	}
}

func (q queueEntry) externalID() int64 {
	for _, n := range []json.Number{q.TramiteID, q.ID} {
		if n == "" {
			continue
		}
		if v, err := n.Int64(); err == nil {
			return v
		}
	}
	return 0
}

// GetQueue fetches pending items. Queue unavailability must not crash a
// scheduled run, so every transport, status or decoding problem is
// logged and soft-fails to an empty list. Only context cancellation is
// surfaced to the caller.
func (c *Client) GetQueue(ctx context.Context, limit int, force bool) ([]models.QueueItem, error) {
	endpoint := c.base + "/queue"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if force {
		q.Set("force", "1")
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.WithError(err).Warn("Queue request could not be built")
		return nil, nil
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.WithError(err).Warn("Queue fetch failed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithField("status", resp.StatusCode).Warn("Queue endpoint returned non-2xx")
		return nil, nil
	}

	var envelope queueEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		c.log.WithError(err).Warn("Queue response is not valid JSON")
		return nil, nil
	}

	var items []models.QueueItem
	for _, entry := range envelope.entries() {
		receipt := strings.TrimSpace(entry.ReceiptNumber)
		if receipt == "" {
			c.log.WithField("tramite_id", entry.externalID()).Warn("Skipping queue entry without receipt number")
			continue
		}
		items = append(items, models.QueueItem{
			ExternalID:    entry.externalID(),
			ReceiptNumber: receipt,
		})
	}

	c.log.WithField("count", len(items)).Info("Queue fetched")
	return items, nil
}

// ReportResults posts the success batch. A failure here is escalated:
// losing scraped results silently would be a data-loss bug, so the
// caller must treat the returned error as fatal for the run.
func (c *Client) ReportResults(ctx context.Context, successes []models.SuccessReport) error {
	if len(successes) == 0 {
		return nil
	}
	if err := c.post(ctx, "/report", map[string]interface{}{"items": successes}); err != nil {
		return fmt.Errorf("report success batch: %w", err)
	}
	c.log.WithField("count", len(successes)).Info("Success batch reported")
	return nil
}

// ReportFailed posts the failure batch. Losing it is low severity (the
// items resurface on the next queue poll), so the caller only logs the
// returned error.
func (c *Client) ReportFailed(ctx context.Context, failures []models.FailureReport) error {
	if len(failures) == 0 {
		return nil
	}
	if err := c.post(ctx, "/report-failed", map[string]interface{}{"items": failures}); err != nil {
		return fmt.Errorf("report failure batch: %w", err)
	}
	c.log.WithField("count", len(failures)).Info("Failure batch reported")
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}
