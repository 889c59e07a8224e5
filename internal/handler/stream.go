package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/fanout"
)

const streamBuffer = 64

var errStreamBacklog = errors.New("stream backlog full")

// streamSink buffers events for one server-sent events connection. Send
// never blocks: a full buffer or a closed stream is a delivery failure,
// which makes the hub drop the subscriber.
type streamSink struct {
	events chan fanout.Event
	done   chan struct{}
	once   sync.Once
}

func newStreamSink(size int) *streamSink {
	return &streamSink{
		events: make(chan fanout.Event, size),
		done:   make(chan struct{}),
	}
}

func (s *streamSink) Send(_ context.Context, ev fanout.Event) error {
	select {
	case <-s.done:
		return domain.ErrSubscriberClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return errStreamBacklog
	}
}

func (s *streamSink) close() {
	s.once.Do(func() { close(s.done) })
}

// StreamHandler serves the fan-out as server-sent events.
type StreamHandler struct {
	hub    *fanout.Hub
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler that subscribes each connection
// to hub.
func NewStreamHandler(hub *fanout.Hub, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, logger: logger}
}

// Stream handles GET /stream. Each event is written as one data frame
// holding the JSON encoded event.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("streaming not supported", "error", err)
		return
	}

	sink := newStreamSink(streamBuffer)
	sub, err := h.hub.Subscribe(r.Context(), sink)
	if err != nil {
		h.logger.Warn("subscribe failed", "error", err)
		return
	}
	defer h.hub.Unsubscribe(sub)
	defer sink.close()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sink.events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", "event_id", ev.ID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
