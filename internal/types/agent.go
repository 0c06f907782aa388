package types

import "time"

// AgentStatus represents the availability of a verification agent.
// Busy is derived: an agent is busy when activeCalls == maxConcurrentCalls.
type AgentStatus string

const (
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusBusy    AgentStatus = "busy"
)

// Agent represents the current state of a verification agent
type Agent struct {
	ID                 string      `json:"agentId"`
	Status             AgentStatus `json:"status"`
	MaxConcurrentCalls int         `json:"maxConcurrentCalls"`
	ActiveCalls        int         `json:"activeCalls"`
	LastHeartbeatAt    time.Time   `json:"lastHeartbeatAt"`
	LastCallAt         time.Time   `json:"lastCallAt,omitempty"`

	// Rolling daily stats, used by assignment scoring. Reset lazily
	// on the first touch of a new day.
	CallsCompletedToday    int     `json:"callsCompletedToday"`
	AvgCallDurationSeconds float64 `json:"averageCallDurationSeconds"`
	StatsDay               string  `json:"-"` // YYYY-MM-DD the daily stats belong to
}

// EffectiveStatus returns the status with busy derived from load.
func (a *Agent) EffectiveStatus() AgentStatus {
	if a.Status == AgentStatusOnline && a.ActiveCalls >= a.MaxConcurrentCalls {
		return AgentStatusBusy
	}
	return a.Status
}

// HasCapacity reports whether the agent can take another call.
func (a *Agent) HasCapacity() bool {
	return a.Status == AgentStatusOnline && a.ActiveCalls < a.MaxConcurrentCalls
}
