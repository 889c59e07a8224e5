package service

import (
	"encoding/json"
	"regexp"

	"github.com/efreitasn/matchbook/internal/domain"
)

var signalTypeRegex = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

// SignalService relays opaque payloads from upstream collaborators through
// the fan-out as signal/<type> events. The payload is never inspected.
type SignalService struct {
	pub Publisher
}

func NewSignalService(pub Publisher) *SignalService {
	return &SignalService{pub: pub}
}

// Relay publishes payload unchanged. It reports whether the event was
// queued; a duplicate inside the dedup window is not.
func (s *SignalService) Relay(typ string, payload json.RawMessage) (bool, error) {
	if !signalTypeRegex.MatchString(typ) {
		return false, domain.Reject(domain.RejectInvalidRequest, "type must match ^[a-z0-9_.-]{1,64}$")
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return false, domain.Reject(domain.RejectInvalidRequest, "payload must be valid JSON")
	}
	return s.pub.Publish(SectionSignal, typ, payload), nil
}
