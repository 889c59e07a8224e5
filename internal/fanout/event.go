package fanout

import (
	"encoding/json"
	"time"
)

// Sections and types used by the hub itself.
const (
	SectionSystem = "system"

	TypeConnected = "connected"
	TypeKeepalive = "keepalive"
)

// Event is one broadcast unit. Data holds the payload already encoded as
// JSON so every subscriber sees identical bytes.
type Event struct {
	ID        string          `json:"id"`
	Section   string          `json:"section"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type connectedData struct {
	Message      string `json:"message"`
	SubscriberID string `json:"subscriber_id"`
}

type keepaliveData struct {
	Timestamp time.Time `json:"timestamp"`
}
