package assign

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// maxReserveAttempts bounds the retry loop when reserves race with
// concurrent assignments
const maxReserveAttempts = 3

// Notifier delivers best-effort assignment events to agents
type Notifier interface {
	NotifyAssigned(agentID, callID string)
}

// Engine matches pending call requests to available agents and commits the
// assignment. It is the sole code path that transitions a request out of
// pending and the sole caller of registry.Reserve for queued calls; that
// single-writer rule, plus the store's compare-and-set transition, is what
// makes assignment at-most-once without a global lock.
type Engine struct {
	store            store.Store
	registry         *registry.AgentRegistry
	notifier         Notifier
	weights          Weights
	heartbeatTimeout time.Duration
	logger           zerolog.Logger
	now              func() time.Time
}

// NewEngine creates a new assignment engine
func NewEngine(st store.Store, reg *registry.AgentRegistry, notifier Notifier, weights Weights, heartbeatTimeout time.Duration, logger zerolog.Logger) *Engine {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = registry.DefaultHeartbeatTimeout
	}
	return &Engine{
		store:            st,
		registry:         reg,
		notifier:         notifier,
		weights:          weights,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger.With().Str("component", "assignment_engine").Logger(),
		now:              time.Now,
	}
}

// TryAssign attempts to match the request to the best available agent.
// Returns the assigned agent id, ErrNoAgentAvailable when the request should
// stay queued, or ErrRequestNotEligible when the request already left
// pending (a benign race).
func (e *Engine) TryAssign(ctx context.Context, requestID string) (string, error) {
	metrics.Get().RecordAssignmentAttempt()

	call, err := e.store.GetCall(ctx, requestID)
	if err != nil {
		return "", err
	}
	if call.Status != types.CallStatusPending {
		return "", store.ErrRequestNotEligible
	}

	excluded := make(map[string]bool)

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		agentID := e.pickAgent(call.Priority, excluded)
		if agentID == "" {
			return "", store.ErrNoAgentAvailable
		}

		if err := e.registry.Reserve(agentID); err != nil {
			// Raced by a concurrent assignment; drop this candidate
			// and rescore the rest.
			e.logger.Debug().
				Str("call_id", requestID).
				Str("agent_id", agentID).
				Msg("reserve lost race, excluding agent")
			excluded[agentID] = true
			continue
		}

		assigned, err := e.store.TransitionCall(ctx, requestID,
			types.CallStatusPending, types.CallStatusAssigned,
			func(c *types.CallRequest) {
				now := e.now()
				c.AssignedAgentID = agentID
				c.AssignedAt = &now
			})
		if err != nil {
			e.registry.Release(agentID)
			if errors.Is(err, store.ErrRequestNotEligible) {
				// Someone else won the request; not an error.
				e.logger.Debug().
					Str("call_id", requestID).
					Msg("request assigned concurrently")
			} else {
				metrics.Get().RecordAssignmentError()
			}
			return "", err
		}

		e.logger.Info().
			Str("call_id", assigned.ID).
			Str("agent_id", agentID).
			Str("priority", assigned.Priority.String()).
			Float64("wait_secs", assigned.WaitSeconds(e.now())).
			Msg("call assigned")

		if e.notifier != nil {
			e.notifier.NotifyAssigned(agentID, assigned.ID)
		}
		return agentID, nil
	}

	return "", store.ErrNoAgentAvailable
}

// pickAgent scores the available agents and returns the best candidate not
// yet excluded. Ties break on lowest active calls, then earliest last
// assignment.
func (e *Engine) pickAgent(priority types.Priority, excluded map[string]bool) string {
	available := e.registry.ListAvailable(e.heartbeatTimeout)

	var best *types.Agent
	var bestScore float64
	for i := range available {
		agent := &available[i]
		if excluded[agent.ID] {
			continue
		}

		score := Score(agent, priority, e.weights)
		if best == nil || score > bestScore || (score == bestScore && betterTiebreak(agent, best)) {
			best = agent
			bestScore = score
		}
	}

	if best == nil {
		return ""
	}
	return best.ID
}

func betterTiebreak(a, b *types.Agent) bool {
	if a.ActiveCalls != b.ActiveCalls {
		return a.ActiveCalls < b.ActiveCalls
	}
	return a.LastCallAt.Before(b.LastCallAt)
}
