// Package webhook forwards fan-out events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/matchbook/internal/fanout"
)

const defaultQueueSize = 256

// Sink POSTs each non-system event as JSON to a fixed URL. Send only
// queues; a background worker performs the requests so a slow endpoint
// never stalls the hub. Failed deliveries are logged and not retried.
type Sink struct {
	url    string
	client *http.Client
	queue  chan fanout.Event
	logger *slog.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewSink validates rawURL and creates a Sink. Call Start to begin
// delivering.
func NewSink(rawURL string, timeout time.Duration, logger *slog.Logger) (*Sink, error) {
	if len(rawURL) > 2048 {
		return nil, fmt.Errorf("webhook url must be at most 2048 characters")
	}
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil || !parsed.IsAbs() {
		return nil, fmt.Errorf("webhook url must be a valid absolute URL")
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("webhook url must use http or https scheme")
	}
	return &Sink{
		url:    rawURL,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan fanout.Event, defaultQueueSize),
		logger: logger,
	}, nil
}

// Send implements fanout.Sink. A full queue drops the event rather than
// failing the subscriber.
func (s *Sink) Send(_ context.Context, ev fanout.Event) error {
	if ev.Section == fanout.SectionSystem {
		return nil
	}
	select {
	case s.queue <- ev:
	default:
		s.failed.Add(1)
		s.logger.Warn("webhook queue full, event dropped", "section", ev.Section, "type", ev.Type)
	}
	return nil
}

// Start runs the delivery worker until ctx is cancelled.
func (s *Sink) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.queue:
				if err := s.deliver(ctx, ev); err != nil {
					s.failed.Add(1)
					s.logger.Warn("webhook delivery failed",
						"url", s.url,
						"section", ev.Section,
						"type", ev.Type,
						"error", err,
					)
					continue
				}
				s.delivered.Add(1)
			}
		}
	}()
}

// Stats reports delivery counters.
func (s *Sink) Stats() (delivered, failed uint64) {
	return s.delivered.Load(), s.failed.Load()
}

// deliver sends the event via HTTP POST with the delivery headers.
func (s *Sink) deliver(ctx context.Context, ev fanout.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Event-Id", ev.ID)
	req.Header.Set("X-Event-Type", ev.Section+"."+ev.Type)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
