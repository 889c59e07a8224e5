package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/efreitasn/matchbook/internal/fanout"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewSink_RejectsInvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative", "ftp://example.com/hook"} {
		if _, err := NewSink(u, time.Second, discard); err == nil {
			t.Errorf("NewSink(%q) expected error", u)
		}
	}
}

func TestSink_DeliversEvent(t *testing.T) {
	type received struct {
		event     fanout.Event
		eventType string
		delivery  string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev fanout.Event
		json.NewDecoder(r.Body).Decode(&ev)
		got <- received{event: ev, eventType: r.Header.Get("X-Event-Type"), delivery: r.Header.Get("X-Delivery-Id")}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewSink(srv.URL, time.Second, discard)
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	ev := fanout.Event{ID: "e1", Section: "market", Type: "trade", Data: json.RawMessage(`{"price":"1"}`), Timestamp: time.Now().UTC()}
	if err := s.Send(ctx, ev); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case r := <-got:
		if r.event.ID != "e1" {
			t.Errorf("event id = %q, want e1", r.event.ID)
		}
		if r.eventType != "market.trade" {
			t.Errorf("X-Event-Type = %q, want market.trade", r.eventType)
		}
		if r.delivery == "" {
			t.Error("expected X-Delivery-Id header")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestSink_NonSuccessStatusCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, _ := NewSink(srv.URL, time.Second, discard)
	err := s.deliver(context.Background(), fanout.Event{Section: "market", Type: "update", Data: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestSink_SkipsSystemEvents(t *testing.T) {
	s, _ := NewSink("http://localhost/hook", time.Second, discard)
	s.Send(context.Background(), fanout.Event{Section: fanout.SectionSystem, Type: fanout.TypeKeepalive})
	if len(s.queue) != 0 {
		t.Errorf("expected system event to be skipped, queue has %d", len(s.queue))
	}
}

func TestSink_FullQueueDropsWithoutError(t *testing.T) {
	s, _ := NewSink("http://localhost/hook", time.Second, discard)
	for i := 0; i < defaultQueueSize+5; i++ {
		if err := s.Send(context.Background(), fanout.Event{Section: "market", Type: "update"}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if _, failed := s.Stats(); failed != 5 {
		t.Errorf("failed = %d, want 5", failed)
	}
}
