package handler

import (
	"encoding/json"
	"net/http"

	"github.com/efreitasn/matchbook/internal/service"
)

// SignalHandler accepts external signals for relay to subscribers.
type SignalHandler struct {
	signalSvc *service.SignalService
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(signalSvc *service.SignalService) *SignalHandler {
	return &SignalHandler{signalSvc: signalSvc}
}

type signalRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type signalResponse struct {
	Relayed bool `json:"relayed"`
}

// Relay handles POST /signals. A duplicate inside the dedup window is
// accepted but reported as not relayed.
func (h *SignalHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	relayed, err := h.signalSvc.Relay(req.Type, req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, signalResponse{Relayed: relayed})
}
