package types

import (
	"fmt"
	"time"
)

// Priority is the ordinal priority band of a call request.
// Higher values are served first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

// String returns the wire name of the priority band.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is a known priority band.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a wire name into a Priority.
// An empty hint defaults to normal; unknown names are rejected.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Escalate returns the priority one band above p, capped at urgent.
func (p Priority) Escalate() Priority {
	if p >= PriorityUrgent {
		return PriorityUrgent
	}
	return p + 1
}

// CallStatus represents the lifecycle state of a call request
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"     // queued, no agent yet
	CallStatusAssigned   CallStatus = "assigned"    // matched to an agent, not started
	CallStatusInProgress CallStatus = "in_progress" // live video call
	CallStatusCompleted  CallStatus = "completed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Terminal reports whether the status is immutable.
func (s CallStatus) Terminal() bool {
	return s == CallStatusCompleted || s == CallStatusCancelled
}

// CallRequest represents a queued or active video verification call.
// AssignedAgentID is set iff status is assigned or in_progress.
type CallRequest struct {
	ID              string     `json:"id"`
	VerificationID  string     `json:"verificationId"`
	CustomerID      string     `json:"customerId"`
	Priority        Priority   `json:"priority"`
	Status          CallStatus `json:"status"`
	AssignedAgentID string     `json:"assignedAgentId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	AssignedAt      *time.Time `json:"assignedAt,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Result          string     `json:"result,omitempty"`
	EscalationCount int        `json:"escalationCount,omitempty"`
}

// WaitSeconds returns how long the request has been (or was) queued.
func (c *CallRequest) WaitSeconds(now time.Time) float64 {
	if c.AssignedAt != nil {
		return c.AssignedAt.Sub(c.CreatedAt).Seconds()
	}
	return now.Sub(c.CreatedAt).Seconds()
}
