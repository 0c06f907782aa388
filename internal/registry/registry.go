package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

const (
	// DefaultMaxConcurrentCalls is the per-agent capacity when none is configured
	DefaultMaxConcurrentCalls = 3

	// DefaultHeartbeatTimeout is the liveness window: 3 missed 30-second heartbeats
	DefaultHeartbeatTimeout = 90 * time.Second
)

// AgentRegistry maintains the current availability and capacity of all
// verification agents. Reserve and Release are the only mutations of
// ActiveCalls, both guarded under the lock so a reserve can never push an
// agent past its capacity.
type AgentRegistry struct {
	agents     map[string]*types.Agent // agentID -> current state
	defaultCap int
	mu         sync.RWMutex
	logger     zerolog.Logger
	now        func() time.Time // swapped in tests
}

// NewAgentRegistry creates a new agent registry
func NewAgentRegistry(defaultCap int, logger zerolog.Logger) *AgentRegistry {
	if defaultCap <= 0 {
		defaultCap = DefaultMaxConcurrentCalls
	}
	return &AgentRegistry{
		agents:     make(map[string]*types.Agent),
		defaultCap: defaultCap,
		logger:     logger.With().Str("component", "agent_registry").Logger(),
		now:        time.Now,
	}
}

// Report sets an agent's status from an explicit status report, creating the
// agent record on first contact. Busy cannot be reported directly; it is
// derived from load.
func (r *AgentRegistry) Report(agentID string, status types.AgentStatus) *types.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if status == types.AgentStatusBusy {
		status = types.AgentStatusOnline
	}

	now := r.now()
	agent, exists := r.agents[agentID]
	if !exists {
		agent = &types.Agent{
			ID:                 agentID,
			MaxConcurrentCalls: r.defaultCap,
			StatsDay:           now.Format("2006-01-02"),
		}
		r.agents[agentID] = agent
	}

	r.rollDayLocked(agent, now)
	agent.Status = status
	agent.LastHeartbeatAt = now

	cp := *agent
	return &cp
}

// Heartbeat refreshes an agent's liveness timestamp. Unknown agents are
// ignored; they must report a status first.
func (r *AgentRegistry) Heartbeat(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return false
	}

	now := r.now()
	r.rollDayLocked(agent, now)
	agent.LastHeartbeatAt = now
	return true
}

// ListAvailable returns agents that can take a call: online, spare capacity,
// and a fresh heartbeat. Ordered by active calls ascending, then by least
// recently assigned, so load spreads evenly.
func (r *AgentRegistry) ListAvailable(heartbeatTimeout time.Duration) []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-heartbeatTimeout)
	available := make([]types.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if agent.HasCapacity() && !agent.LastHeartbeatAt.Before(cutoff) {
			available = append(available, *agent)
		}
	}

	sort.Slice(available, func(i, j int) bool {
		if available[i].ActiveCalls != available[j].ActiveCalls {
			return available[i].ActiveCalls < available[j].ActiveCalls
		}
		return available[i].LastCallAt.Before(available[j].LastCallAt)
	})

	return available
}

// Reserve atomically claims one unit of an agent's capacity. Fails with
// ErrAgentAtCapacity if the agent is full, offline, or unknown.
func (r *AgentRegistry) Reserve(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists || !agent.HasCapacity() {
		return store.ErrAgentAtCapacity
	}

	agent.ActiveCalls++
	agent.LastCallAt = r.now()
	return nil
}

// Release returns one unit of capacity, floored at zero
func (r *AgentRegistry) Release(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return
	}
	if agent.ActiveCalls > 0 {
		agent.ActiveCalls--
	}
}

// RecordCompletion updates an agent's daily stats after a finished call:
// completed count and the rolling average call duration used by scoring.
func (r *AgentRegistry) RecordCompletion(agentID string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return
	}

	r.rollDayLocked(agent, r.now())

	n := float64(agent.CallsCompletedToday)
	agent.AvgCallDurationSeconds = (agent.AvgCallDurationSeconds*n + duration.Seconds()) / (n + 1)
	agent.CallsCompletedToday++
}

// SweepStale marks agents whose heartbeat is older than the liveness window
// as offline and returns their ids. Calls already assigned to a stale agent
// are left untouched; operators reassign or cancel them explicitly.
func (r *AgentRegistry) SweepStale(heartbeatTimeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-heartbeatTimeout)
	var stale []string
	for id, agent := range r.agents {
		if agent.Status == types.AgentStatusOnline && agent.LastHeartbeatAt.Before(cutoff) {
			agent.Status = types.AgentStatusOffline
			stale = append(stale, id)
		}
	}

	if len(stale) > 0 {
		r.logger.Warn().Strs("agent_ids", stale).Msg("stale agents marked offline")
	}
	return stale
}

// Get returns a copy of an agent's current state
func (r *AgentRegistry) Get(agentID string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.Agent{}, false
	}
	cp := *agent
	cp.Status = agent.EffectiveStatus()
	return cp, true
}

// GetAll returns all agents' current states
func (r *AgentRegistry) GetAll() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]types.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		cp := *agent
		cp.Status = agent.EffectiveStatus()
		agents = append(agents, cp)
	}
	return agents
}

// Count returns the total number of tracked agents
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// rollDayLocked resets daily stats when the agent is first touched on a new
// day. Lazy, so there is no scheduled job walking every record at midnight.
func (r *AgentRegistry) rollDayLocked(agent *types.Agent, now time.Time) {
	day := now.Format("2006-01-02")
	if agent.StatsDay != day {
		agent.StatsDay = day
		agent.CallsCompletedToday = 0
		agent.AvgCallDurationSeconds = 0
	}
}
