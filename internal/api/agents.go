package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/auth"
	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// AgentsHandler provides REST endpoints for agent availability and history
type AgentsHandler struct {
	registry *registry.AgentRegistry
	store    store.Store
	logger   zerolog.Logger
}

// NewAgentsHandler creates a new AgentsHandler
func NewAgentsHandler(reg *registry.AgentRegistry, st store.Store, logger zerolog.Logger) *AgentsHandler {
	return &AgentsHandler{
		registry: reg,
		store:    st,
		logger:   logger.With().Str("component", "agents_api").Logger(),
	}
}

type statusReportRequest struct {
	Status string `json:"status"`
}

// ReportStatus handles POST /api/agents/status. The agent record is created
// on first report; busy cannot be reported directly.
func (h *AgentsHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || claims.Subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req statusReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status := types.AgentStatus(req.Status)
	switch status {
	case types.AgentStatusOnline, types.AgentStatusOffline, types.AgentStatusBusy:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	agent := h.registry.Report(claims.Subject, status)

	h.logger.Info().
		Str("agent_id", claims.Subject).
		Str("status", string(agent.Status)).
		Msg("agent status reported")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// Availability handles GET /api/agents/availability
func (h *AgentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	agents := h.registry.GetAll()
	if agents == nil {
		agents = []types.Agent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}

// Heartbeat handles POST /api/agents/heartbeat, the REST fallback for agents
// without a WebSocket connection
func (h *AgentsHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || claims.Subject == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.registry.Heartbeat(claims.Subject) {
		http.Error(w, "agent unknown, report a status first", http.StatusNotFound)
		return
	}
	metrics.Get().RecordHeartbeat()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetCalls returns completed call records for the given agent on a specific
// date. GET /api/agents/{agentId}/calls?date=YYYY-MM-DD
func (h *AgentsHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	records, err := h.store.GetAgentCalls(r.Context(), agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get agent calls")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []types.CallRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
