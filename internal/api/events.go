package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/sweeper"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// EventsHandler receives triggers from collaborating services on the
// internal, unauthenticated route group
type EventsHandler struct {
	calls   *CallsHandler
	sweeper *sweeper.Sweeper
	logger  zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(calls *CallsHandler, sw *sweeper.Sweeper, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		calls:   calls,
		sweeper: sw,
		logger:  logger.With().Str("component", "events_api").Logger(),
	}
}

type verificationCompletedEvent struct {
	VerificationID string `json:"verificationId"`
	CustomerID     string `json:"customerId"`
	PriorityHint   string `json:"priorityHint"`
}

// VerificationCompleted handles POST /internal/events/verification-completed.
// The verification pipeline fires this when a customer finishes document
// checks and needs a video call.
func (h *EventsHandler) VerificationCompleted(w http.ResponseWriter, r *http.Request) {
	var event verificationCompletedEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}
	if event.VerificationID == "" || event.CustomerID == "" {
		http.Error(w, "verificationId and customerId are required", http.StatusBadRequest)
		return
	}

	priority, err := types.ParsePriority(event.PriorityHint)
	if err != nil {
		// An unknown hint downgrades to normal rather than dropping the
		// event: the customer is already waiting.
		h.logger.Warn().
			Str("verification_id", event.VerificationID).
			Str("priority_hint", event.PriorityHint).
			Msg("unknown priority hint, defaulting to normal")
		priority = types.PriorityNormal
	}

	call, err := h.calls.enqueueFromEvent(r.Context(), event.VerificationID, event.CustomerID, priority)
	if err != nil {
		h.logger.Error().Err(err).
			Str("verification_id", event.VerificationID).
			Msg("failed to queue call from verification event")
		http.Error(w, "failed to queue call", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(call)
}

// Sweep handles POST /internal/sweep, an operator-triggered sweep pass
func (h *EventsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	assigned := h.sweeper.RunOnce(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"assigned": assigned})
}
