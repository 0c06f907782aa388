package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// Hub maintains one logical notification channel per agent identity.
// Everything it sends is advisory: authoritative state lives in the store
// and registry, and agents re-sync via the REST listing endpoints, so a
// dropped message never needs recovery.
type Hub struct {
	// Registered agent clients
	agents map[string]*Client // agentID -> client

	// Register requests from agent clients
	register chan *Client

	// Unregister requests from agent clients
	unregister chan *Client

	// Heartbeat messages from agents
	heartbeat chan *types.Heartbeat

	// Mutex to protect agents map
	mu sync.RWMutex

	logger zerolog.Logger

	// Agent registry (heartbeats and implicit online-on-connect)
	registry *registry.AgentRegistry
}

// NewHub creates a new Hub
func NewHub(reg *registry.AgentRegistry, logger zerolog.Logger) *Hub {
	return &Hub{
		agents:     make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		heartbeat:  make(chan *types.Heartbeat, 256),
		logger:     logger.With().Str("component", "gateway").Logger(),
		registry:   reg,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	m := metrics.Get()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// Replace an existing channel for the same agent; the new
			// connection wins.
			if existing, ok := h.agents[client.agentID]; ok {
				existing.Close()
				delete(h.agents, client.agentID)
			}
			h.agents[client.agentID] = client
			h.mu.Unlock()

			// Connecting implies the agent is online.
			h.registry.Report(client.agentID, types.AgentStatusOnline)
			m.RecordAgentConnect()

			ack := types.Connected{Type: "connected", AgentID: client.agentID}
			if data, err := json.Marshal(ack); err == nil {
				client.safeSend(data)
			}

			h.logger.Debug().
				Str("agent_id", client.agentID).
				Int("total_agents", len(h.agents)).
				Msg("agent channel connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.agents[client.agentID]; ok && existing == client {
				delete(h.agents, client.agentID)
				client.Close()
				m.RecordAgentDisconnect()

				// The agent is NOT marked offline here: transient
				// network drops must not disrupt in-progress calls.
				// Heartbeat timeout owns the offline transition.
				h.logger.Debug().
					Str("agent_id", client.agentID).
					Int("total_agents", len(h.agents)).
					Msg("agent channel disconnected")
			}
			h.mu.Unlock()

		case hb := <-h.heartbeat:
			h.registry.Heartbeat(hb.AgentID)
			m.RecordHeartbeat()
		}
	}
}

// NotifyAssigned sends a call_assigned event to one agent (assign.Notifier)
func (h *Hub) NotifyAssigned(agentID, callID string) {
	msg := types.CallAssigned{
		Type:      "call_assigned",
		CallID:    callID,
		AgentID:   agentID,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal call_assigned")
		return
	}
	if !h.SendToAgent(agentID, data) {
		// Best effort: the agent discovers the assignment on its next
		// poll of assigned calls.
		h.logger.Warn().
			Str("agent_id", agentID).
			Str("call_id", callID).
			Msg("failed to deliver call_assigned")
	}
}

// BroadcastNewCall announces a freshly enqueued request to all connected
// agents. Informational only; it does not imply assignment.
func (h *Hub) BroadcastNewCall(callID string, priority types.Priority) {
	msg := types.NewCall{
		Type:      "new_call",
		CallID:    callID,
		Priority:  priority.String(),
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal new_call")
		return
	}
	h.Broadcast(data)
}

// BroadcastCallCompleted announces a terminal call state to all agents
func (h *Hub) BroadcastCallCompleted(callID string) {
	msg := types.CallCompleted{Type: "call_completed", CallID: callID}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal call_completed")
		return
	}
	h.Broadcast(data)
}

// Broadcast sends a message to every connected agent, dropping it for any
// agent whose send buffer is full
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.agents {
		client.safeSend(message)
	}
}

// SendToAgent sends a message to a specific agent
func (h *Hub) SendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return client.safeSend(message)
}

// AgentCount returns the number of connected agents
func (h *Hub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}
