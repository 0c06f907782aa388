package queue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// DefaultEscalationThreshold is how long a request may wait in a band
// before it is raised one priority level.
const DefaultEscalationThreshold = 30 * time.Minute

// Manager orders pending call requests and applies the escalation policy.
// Ordering is computed on demand from the store rather than kept in a
// separate structure, because priorities change between reads (escalation).
type Manager struct {
	store     store.Store
	threshold time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManager creates a new queue manager
func NewManager(st store.Store, threshold time.Duration, logger zerolog.Logger) *Manager {
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	return &Manager{
		store:     st,
		threshold: threshold,
		logger:    logger.With().Str("component", "call_queue").Logger(),
		now:       time.Now,
	}
}

// Enqueue creates a pending call request for a completed verification.
// Unknown priority bands fail with ErrInvalidPriority.
func (m *Manager) Enqueue(ctx context.Context, verificationID, customerID string, priority types.Priority) (*types.CallRequest, error) {
	if !priority.Valid() {
		return nil, store.ErrInvalidPriority
	}

	call := &types.CallRequest{
		ID:             uuid.New().String(),
		VerificationID: verificationID,
		CustomerID:     customerID,
		Priority:       priority,
		Status:         types.CallStatusPending,
		CreatedAt:      m.now(),
	}

	if err := m.store.CreateCall(ctx, call); err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("call_id", call.ID).
		Str("verification_id", verificationID).
		Str("priority", priority.String()).
		Msg("call request enqueued")

	return call, nil
}

// PeekEligible returns all pending requests ordered for assignment:
// priority descending, then strict FIFO on creation time within a band.
func (m *Manager) PeekEligible(ctx context.Context) ([]*types.CallRequest, error) {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}

// EscalateStale raises the priority of pending requests that have waited
// past the threshold, one band per pass, capped at urgent. A request only
// qualifies again once a further threshold period has elapsed, so repeating
// a pass without time advancing is a no-op. Returns the number escalated.
func (m *Manager) EscalateStale(ctx context.Context) (int, error) {
	pending, err := m.store.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	escalated := 0
	for _, call := range pending {
		if call.Priority >= types.PriorityUrgent {
			continue
		}
		// Each escalation raises the bar by one threshold period.
		due := call.CreatedAt.Add(m.threshold * time.Duration(call.EscalationCount+1))
		if now.Before(due) {
			continue
		}

		updated, err := m.store.EscalateCall(ctx, call.ID, call.Priority)
		if err != nil {
			// Assigned or escalated concurrently; nothing to do.
			continue
		}
		escalated++

		m.logger.Info().
			Str("call_id", call.ID).
			Str("from", call.Priority.String()).
			Str("to", updated.Priority.String()).
			Float64("wait_secs", now.Sub(call.CreatedAt).Seconds()).
			Msg("call request escalated")
	}

	return escalated, nil
}
