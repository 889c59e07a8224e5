package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config tunes a Hub. Zero values fall back to the defaults below.
type Config struct {
	DedupWindow       time.Duration
	KeepaliveInterval time.Duration
	QueueSize         int
	Now               func() time.Time
}

const (
	DefaultDedupWindow       = time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultQueueSize         = 1024
)

// Hub fans events out to subscribers. Duplicate events inside the dedup
// window are dropped at publish time. A failing subscriber is removed
// without affecting the others.
type Hub struct {
	mu        sync.RWMutex
	subs      map[string]*Subscriber
	dedup     *dedupWindow
	queue     chan Event
	keepalive time.Duration
	now       func() time.Time
	logger    *slog.Logger

	published  atomic.Uint64
	duplicates atomic.Uint64
	dropped    atomic.Uint64
}

// NewHub creates a Hub. Call Run to start asynchronous delivery.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		subs:      make(map[string]*Subscriber),
		dedup:     newDedupWindow(cfg.DedupWindow),
		queue:     make(chan Event, cfg.QueueSize),
		keepalive: cfg.KeepaliveInterval,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Subscribe registers sink and moves it from Connecting to Open, sending a
// connected acknowledgement to that subscriber only. If the ack cannot be
// written the subscriber ends Closed and is not registered.
func (h *Hub) Subscribe(ctx context.Context, sink Sink) (*Subscriber, error) {
	s := &Subscriber{
		id:    uuid.New().String(),
		sink:  sink,
		state: StateConnecting,
	}

	ack, err := h.newEvent(SectionSystem, TypeConnected, connectedData{
		Message:      "stream established",
		SubscriberID: s.id,
	})
	if err != nil {
		return nil, err
	}

	// Hold the subscriber lock across registration and the ack so that a
	// concurrent broadcast waits until the ack is written.
	s.mu.Lock()
	h.mu.Lock()
	h.subs[s.id] = s
	count := len(h.subs)
	h.mu.Unlock()

	s.state = StateOpen
	if err := sink.Send(ctx, ack); err != nil {
		s.state = StateClosed
		s.mu.Unlock()
		h.remove(s)
		return nil, fmt.Errorf("send connected ack: %w", err)
	}
	s.mu.Unlock()

	h.logger.Debug("subscriber connected", "subscriber_id", s.id, "subscribers", count)
	return s, nil
}

// Unsubscribe closes s and removes it from the active set. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	if s.close() {
		h.logger.Debug("subscriber closed", "subscriber_id", s.id)
	}
	h.remove(s)
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish encodes payload and queues it for delivery without blocking. It
// returns false when the event is a duplicate inside the dedup window or
// the queue is full.
func (h *Hub) Publish(section, typ string, payload any) bool {
	ev, ok := h.admit(section, typ, payload)
	if !ok {
		return false
	}
	select {
	case h.queue <- ev:
		return true
	default:
		h.dropped.Add(1)
		h.logger.Warn("fan-out queue full, event dropped", "section", section, "type", typ)
		return false
	}
}

// Deliver is the synchronous form of Publish: the event is broadcast
// before Deliver returns.
func (h *Hub) Deliver(ctx context.Context, section, typ string, payload any) bool {
	ev, ok := h.admit(section, typ, payload)
	if !ok {
		return false
	}
	h.Broadcast(ctx, ev)
	return true
}

func (h *Hub) admit(section, typ string, payload any) (Event, bool) {
	ev, err := h.newEvent(section, typ, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "section", section, "type", typ, "error", err)
		return Event{}, false
	}
	if !h.dedup.admit(Fingerprint(section, typ, ev.Data), ev.Timestamp) {
		h.duplicates.Add(1)
		return Event{}, false
	}
	h.published.Add(1)
	return ev, true
}

func (h *Hub) newEvent(section, typ string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:        uuid.New().String(),
		Section:   section,
		Type:      typ,
		Data:      data,
		Timestamp: h.now(),
	}, nil
}

// Broadcast delivers ev to every open subscriber. Subscribers whose sink
// fails are closed and removed; the rest still receive ev.
func (h *Hub) Broadcast(ctx context.Context, ev Event) int {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		ok, err := s.deliver(ctx, ev)
		if err != nil {
			h.logger.Warn("subscriber delivery failed, removing",
				"subscriber_id", s.id,
				"section", ev.Section,
				"type", ev.Type,
				"error", err,
			)
			h.remove(s)
			continue
		}
		if ok {
			delivered++
		}
	}
	return delivered
}

// Keepalive broadcasts a keepalive carrying the current time. Keepalives
// bypass the dedup window.
func (h *Hub) Keepalive(ctx context.Context) {
	now := h.now()
	ev, err := h.newEvent(SectionSystem, TypeKeepalive, keepaliveData{Timestamp: now})
	if err != nil {
		return
	}
	n := h.Broadcast(ctx, ev)
	h.logger.Debug("keepalive sent", "subscribers", n)
}

// Stats reports publish counters.
func (h *Hub) Stats() (published, duplicates, dropped uint64) {
	return h.published.Load(), h.duplicates.Load(), h.dropped.Load()
}

// Run drains the publish queue and sends keepalives until ctx is
// cancelled. Remaining queued events are discarded on return.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.queue:
			h.Broadcast(ctx, ev)
		case <-ticker.C:
			h.Keepalive(ctx)
		}
	}
}

// Start launches Run in a background goroutine. It stops when ctx is
// cancelled.
func (h *Hub) Start(ctx context.Context) {
	go h.Run(ctx)
}
