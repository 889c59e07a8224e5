package fanout

import (
	"context"
	"sync"
)

// State is the lifecycle of one subscriber connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Sink is the transport behind a subscriber. Send must not retain ev.Data
// after it returns; an error closes the subscriber.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Subscriber is one connection registered with a Hub. Closed is terminal;
// reconnecting creates a new Subscriber.
type Subscriber struct {
	id   string
	sink Sink

	// mu serializes sends and state changes, so the connected ack always
	// precedes broadcast events and no send happens after close.
	mu    sync.Mutex
	state State
}

// ID returns the subscriber's identifier.
func (s *Subscriber) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// deliver sends ev if the subscriber is open. A send error closes it.
func (s *Subscriber) deliver(ctx context.Context, ev Event) (delivered bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return false, nil
	}
	if err := s.sink.Send(ctx, ev); err != nil {
		s.state = StateClosed
		return false, err
	}
	return true, nil
}

// close moves the subscriber to Closed and reports whether it was open.
func (s *Subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.state
	s.state = StateClosed
	return was != StateClosed
}
