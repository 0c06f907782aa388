package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/assign"
	"github.com/Tsipchain/thronos-verifyid/internal/auth"
	"github.com/Tsipchain/thronos-verifyid/internal/gateway"
	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/queue"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// CallsHandler provides REST endpoints for the call request lifecycle
type CallsHandler struct {
	store    store.Store
	queue    *queue.Manager
	engine   *assign.Engine
	registry *registry.AgentRegistry
	hub      *gateway.Hub
	logger   zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler
func NewCallsHandler(st store.Store, q *queue.Manager, e *assign.Engine, reg *registry.AgentRegistry, hub *gateway.Hub, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		store:    st,
		queue:    q,
		engine:   e,
		registry: reg,
		hub:      hub,
		logger:   logger.With().Str("component", "calls_api").Logger(),
	}
}

type queueCallRequest struct {
	VerificationID string `json:"verificationId"`
	CustomerID     string `json:"customerId"`
	Priority       string `json:"priority"`
}

// Queue handles POST /api/calls/queue
func (h *CallsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	var req queueCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.VerificationID == "" || req.CustomerID == "" {
		http.Error(w, "verificationId and customerId are required", http.StatusBadRequest)
		return
	}

	priority, err := types.ParsePriority(req.Priority)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call, err := h.enqueueFromEvent(r.Context(), req.VerificationID, req.CustomerID, priority)
	if err != nil {
		if errors.Is(err, store.ErrInvalidPriority) {
			http.Error(w, "invalid priority", http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("failed to enqueue call request")
		http.Error(w, "failed to queue call", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(call)
}

// enqueueFromEvent queues a request, announces it, and makes a best-effort
// immediate assignment. Shared by the REST enqueue and the internal
// verification-completed event.
func (h *CallsHandler) enqueueFromEvent(ctx context.Context, verificationID, customerID string, priority types.Priority) (*types.CallRequest, error) {
	call, err := h.queue.Enqueue(ctx, verificationID, customerID, priority)
	if err != nil {
		return nil, err
	}

	metrics.Get().RecordEnqueue()
	h.hub.BroadcastNewCall(call.ID, call.Priority)

	// If it fails the sweeper picks the request up on its next pass.
	if agentID, err := h.engine.TryAssign(ctx, call.ID); err == nil {
		metrics.Get().RecordAssignment()
		call.Status = types.CallStatusAssigned
		call.AssignedAgentID = agentID
	}

	return call, nil
}

// pendingCall is a pending request annotated with its current wait time
type pendingCall struct {
	*types.CallRequest
	WaitTimeSeconds float64 `json:"waitTimeSeconds"`
}

// Pending handles GET /api/calls/pending
func (h *CallsHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.PeekEligible(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list pending calls")
		http.Error(w, "failed to list pending calls", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	out := make([]pendingCall, 0, len(pending))
	for _, call := range pending {
		out = append(out, pendingCall{CallRequest: call, WaitTimeSeconds: call.WaitSeconds(now)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// Mine handles GET /api/calls/mine, the polling path that keeps WebSocket
// notifications advisory
func (h *CallsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || claims.Subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	calls, err := h.store.ListByAgent(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Error().Err(err).Str("agent_id", claims.Subject).Msg("failed to list agent calls")
		http.Error(w, "failed to list calls", http.StatusInternalServerError)
		return
	}
	if calls == nil {
		calls = []*types.CallRequest{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calls)
}

type assignCallRequest struct {
	AgentID string `json:"agentId"`
}

// Assign handles POST /api/calls/{callId}/assign. With an explicit agentId
// the call goes to that agent; without one the scoring engine picks.
func (h *CallsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	var req assignCallRequest
	if r.Body != nil {
		// Empty body means engine-picked assignment
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	var agentID string
	var err error
	if req.AgentID != "" {
		agentID, err = h.assignToAgent(r.Context(), callID, req.AgentID)
	} else {
		agentID, err = h.engine.TryAssign(r.Context(), callID)
	}

	switch {
	case err == nil:
		metrics.Get().RecordAssignment()
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "call not found", http.StatusNotFound)
		return
	case errors.Is(err, store.ErrRequestNotEligible):
		http.Error(w, "call is no longer pending", http.StatusConflict)
		return
	case errors.Is(err, store.ErrAgentAtCapacity):
		http.Error(w, "agent at capacity", http.StatusConflict)
		return
	case errors.Is(err, store.ErrNoAgentAvailable):
		http.Error(w, "no agent available", http.StatusServiceUnavailable)
		return
	default:
		h.logger.Error().Err(err).Str("call_id", callID).Msg("manual assignment failed")
		http.Error(w, "assignment failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"callId":  callID,
		"agentId": agentID,
	})
}

// assignToAgent commits a manual assignment to a specific agent, holding the
// same reserve-then-transition order as the engine
func (h *CallsHandler) assignToAgent(ctx context.Context, callID, agentID string) (string, error) {
	if err := h.registry.Reserve(agentID); err != nil {
		return "", err
	}

	_, err := h.store.TransitionCall(ctx, callID,
		types.CallStatusPending, types.CallStatusAssigned,
		func(c *types.CallRequest) {
			now := time.Now()
			c.AssignedAgentID = agentID
			c.AssignedAt = &now
		})
	if err != nil {
		h.registry.Release(agentID)
		return "", err
	}

	h.hub.NotifyAssigned(agentID, callID)
	return agentID, nil
}

// Start handles POST /api/calls/{callId}/start
func (h *CallsHandler) Start(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	call, err := h.store.GetCall(r.Context(), callID)
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}
	if !h.mayAct(claims, call.AssignedAgentID) {
		http.Error(w, "call is assigned to another agent", http.StatusForbidden)
		return
	}

	updated, err := h.store.TransitionCall(r.Context(), callID,
		types.CallStatusAssigned, types.CallStatusInProgress,
		func(c *types.CallRequest) {
			now := time.Now()
			c.StartedAt = &now
		})
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

type completeCallRequest struct {
	Notes  string `json:"notes"`
	Result string `json:"result"`
}

// Complete handles POST /api/calls/{callId}/complete
func (h *CallsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req completeCallRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	call, err := h.store.GetCall(r.Context(), callID)
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}
	if !h.mayAct(claims, call.AssignedAgentID) {
		http.Error(w, "call is assigned to another agent", http.StatusForbidden)
		return
	}
	if call.Status != types.CallStatusAssigned && call.Status != types.CallStatusInProgress {
		http.Error(w, "call cannot be completed from its current status", http.StatusConflict)
		return
	}

	updated, err := h.store.TransitionCall(r.Context(), callID,
		call.Status, types.CallStatusCompleted,
		func(c *types.CallRequest) {
			now := time.Now()
			c.CompletedAt = &now
			c.Notes = req.Notes
			c.Result = req.Result
		})
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}

	h.finishCall(r.Context(), updated, false)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// Cancel handles POST /api/calls/{callId}/cancel
func (h *CallsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")

	call, err := h.store.GetCall(r.Context(), callID)
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}
	if call.Status.Terminal() {
		http.Error(w, "call already finished", http.StatusConflict)
		return
	}

	updated, err := h.store.TransitionCall(r.Context(), callID,
		call.Status, types.CallStatusCancelled,
		func(c *types.CallRequest) {
			now := time.Now()
			c.CompletedAt = &now
		})
	if err != nil {
		h.respondStoreError(w, callID, err)
		return
	}

	// Capacity was only held if an agent had the call.
	if call.Status == types.CallStatusAssigned || call.Status == types.CallStatusInProgress {
		h.registry.Release(updated.AssignedAgentID)
	}

	metrics.Get().RecordCancellation()
	h.recordFinishedCall(r.Context(), updated, true)
	h.hub.BroadcastCallCompleted(updated.ID)
	h.assignNext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

// finishCall runs the post-completion bookkeeping: capacity release, agent
// stats, history record, broadcast, and a drain attempt for the freed slot
func (h *CallsHandler) finishCall(ctx context.Context, call *types.CallRequest, cancelled bool) {
	agentID := call.AssignedAgentID
	if agentID != "" {
		h.registry.Release(agentID)

		duration := callDuration(call)
		h.registry.RecordCompletion(agentID, duration)
	}

	metrics.Get().RecordCompletion()
	h.recordFinishedCall(ctx, call, cancelled)
	h.hub.BroadcastCallCompleted(call.ID)
	h.assignNext(ctx)
}

// recordFinishedCall persists the flattened history record. Failures are
// logged, not surfaced: the lifecycle transition already committed.
func (h *CallsHandler) recordFinishedCall(ctx context.Context, call *types.CallRequest, cancelled bool) {
	record := types.CallRecord{
		DateKey:        call.CreatedAt.Format("2006-01-02"),
		CallID:         call.ID,
		VerificationID: call.VerificationID,
		CustomerID:     call.CustomerID,
		AgentID:        call.AssignedAgentID,
		Priority:       call.Priority.String(),
		Result:         call.Result,
		Notes:          call.Notes,
		CreatedAt:      call.CreatedAt.Format(time.RFC3339),
		Cancelled:      cancelled,
		Escalations:    call.EscalationCount,
	}
	if call.AssignedAt != nil {
		record.AssignedAt = call.AssignedAt.Format(time.RFC3339)
		record.WaitTimeSeconds = call.AssignedAt.Sub(call.CreatedAt).Seconds()
	}
	if call.CompletedAt != nil {
		record.CompletedAt = call.CompletedAt.Format(time.RFC3339)
		record.CallDuration = callDuration(call).Seconds()
	}

	if err := h.store.SaveCallRecord(ctx, record); err != nil {
		h.logger.Error().Err(err).Str("call_id", call.ID).Msg("failed to save call record")
	}
}

// assignNext tries to hand the freed capacity to the head of the queue
func (h *CallsHandler) assignNext(ctx context.Context) {
	pending, err := h.queue.PeekEligible(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list pending calls for drain")
		return
	}

	for _, call := range pending {
		_, err := h.engine.TryAssign(ctx, call.ID)
		switch {
		case err == nil:
			metrics.Get().RecordAssignment()
			return
		case errors.Is(err, store.ErrRequestNotEligible):
			continue
		default:
			return
		}
	}
}

// mayAct reports whether the caller owns the call or holds an elevated role
func (h *CallsHandler) mayAct(claims *auth.Claims, assignedAgentID string) bool {
	if claims.Role == "admin" || claims.Role == "manager" {
		return true
	}
	return claims.Subject != "" && claims.Subject == assignedAgentID
}

func (h *CallsHandler) respondStoreError(w http.ResponseWriter, callID string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "call not found", http.StatusNotFound)
	case errors.Is(err, store.ErrRequestNotEligible):
		http.Error(w, "call changed state concurrently", http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("call_id", callID).Msg("call operation failed")
		http.Error(w, "operation failed", http.StatusInternalServerError)
	}
}

func callDuration(call *types.CallRequest) time.Duration {
	if call.CompletedAt == nil {
		return 0
	}
	start := call.StartedAt
	if start == nil {
		start = call.AssignedAt
	}
	if start == nil {
		return 0
	}
	return call.CompletedAt.Sub(*start)
}
