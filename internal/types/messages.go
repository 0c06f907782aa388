package types

import "time"

// Messages exchanged over the agent notification channel. All server→agent
// messages are advisory re-announcements of state obtainable via the REST
// listing endpoints; a lost message never changes queue state.

// Connected is sent to an agent right after its channel is established
type Connected struct {
	Type    string `json:"type"` // "connected"
	AgentID string `json:"agentId"`
}

// NewCall is broadcast to all connected agents when a request is enqueued.
// Purely informational; it does not imply assignment.
type NewCall struct {
	Type      string    `json:"type"` // "new_call"
	CallID    string    `json:"callId"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// CallAssigned is sent to the one agent an assignment was committed to
type CallAssigned struct {
	Type      string    `json:"type"` // "call_assigned"
	CallID    string    `json:"callId"`
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// CallCompleted is broadcast when a call reaches a terminal state
type CallCompleted struct {
	Type   string `json:"type"` // "call_completed"
	CallID string `json:"callId"`
}

// Heartbeat is sent from agent to server at most every 30 seconds.
// An agent that stops sending them is considered stale after the
// liveness window elapses.
type Heartbeat struct {
	Type      string    `json:"type"` // "heartbeat"
	AgentID   string    `json:"agentId"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatAck is the server's reply to a heartbeat
type HeartbeatAck struct {
	Type string `json:"type"` // "heartbeat_ack"
}
