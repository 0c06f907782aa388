package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/assign"
	"github.com/Tsipchain/thronos-verifyid/internal/queue"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

func newTestSweeper(capacity int) (*Sweeper, *queue.Manager, *registry.AgentRegistry, store.Store) {
	st := store.NewMemoryStore()
	reg := registry.NewAgentRegistry(capacity, zerolog.Nop())
	q := queue.NewManager(st, queue.DefaultEscalationThreshold, zerolog.Nop())
	engine := assign.NewEngine(st, reg, nil, assign.DefaultWeights(), registry.DefaultHeartbeatTimeout, zerolog.Nop())
	sw := New(q, engine, reg, DefaultInterval, registry.DefaultHeartbeatTimeout, zerolog.Nop())
	return sw, q, reg, st
}

func TestRunOnceEmptyQueue(t *testing.T) {
	sw, _, _, _ := newTestSweeper(1)

	if assigned := sw.RunOnce(context.Background()); assigned != 0 {
		t.Errorf("expected 0 assignments on empty queue, got %d", assigned)
	}
}

func TestRunOnceDrainsQueueInPriorityOrder(t *testing.T) {
	sw, q, reg, st := newTestSweeper(1)
	ctx := context.Background()

	normal, _ := q.Enqueue(ctx, "verif-1", "cust-1", types.PriorityNormal)
	urgent, _ := q.Enqueue(ctx, "verif-2", "cust-2", types.PriorityUrgent)

	reg.Report("agent-1", types.AgentStatusOnline)

	// One capacity slot: only the urgent call gets it
	if assigned := sw.RunOnce(ctx); assigned != 1 {
		t.Fatalf("expected 1 assignment, got %d", assigned)
	}

	got, _ := st.GetCall(ctx, urgent.ID)
	if got.Status != types.CallStatusAssigned {
		t.Errorf("expected urgent call assigned, got %s", got.Status)
	}
	got, _ = st.GetCall(ctx, normal.ID)
	if got.Status != types.CallStatusPending {
		t.Errorf("expected normal call still pending, got %s", got.Status)
	}
}

func TestRunOnceStopsWhenNoAgentAvailable(t *testing.T) {
	sw, q, _, st := newTestSweeper(1)
	ctx := context.Background()

	call, _ := q.Enqueue(ctx, "verif-1", "cust-1", types.PriorityNormal)

	// No agents at all: the pass leaves everything queued
	if assigned := sw.RunOnce(ctx); assigned != 0 {
		t.Errorf("expected 0 assignments with no agents, got %d", assigned)
	}

	got, _ := st.GetCall(ctx, call.ID)
	if got.Status != types.CallStatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}

// Full lifecycle: requests queue up with nobody online, an agent appears,
// the next pass hands out work up to capacity and no further.
func TestSweepAssignsAfterAgentComesOnline(t *testing.T) {
	sw, q, reg, st := newTestSweeper(2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		call, err := q.Enqueue(ctx, "verif", "cust", types.PriorityNormal)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, call.ID)
	}

	if assigned := sw.RunOnce(ctx); assigned != 0 {
		t.Fatalf("expected no assignments before agent online, got %d", assigned)
	}

	reg.Report("agent-1", types.AgentStatusOnline)

	// Capacity 2: the pass assigns the two oldest and stops
	if assigned := sw.RunOnce(ctx); assigned != 2 {
		t.Fatalf("expected 2 assignments, got %d", assigned)
	}

	agent, _ := reg.Get("agent-1")
	if agent.ActiveCalls != 2 {
		t.Errorf("expected agent at capacity, got %d active calls", agent.ActiveCalls)
	}

	assignedCount := 0
	for _, id := range ids {
		call, _ := st.GetCall(ctx, id)
		if call.Status == types.CallStatusAssigned {
			assignedCount++
		}
	}
	if assignedCount != 2 {
		t.Errorf("expected 2 assigned requests, got %d", assignedCount)
	}

	// FIFO: the third (newest) request is the one left waiting
	last, _ := st.GetCall(ctx, ids[2])
	if last.Status != types.CallStatusPending {
		t.Errorf("expected newest request left pending, got %s", last.Status)
	}

	// A repeat pass at capacity assigns nothing more
	if assigned := sw.RunOnce(ctx); assigned != 0 {
		t.Errorf("expected 0 assignments at capacity, got %d", assigned)
	}
}

func TestSweepMarksStaleAgentsOffline(t *testing.T) {
	st := store.NewMemoryStore()
	reg := registry.NewAgentRegistry(1, zerolog.Nop())
	q := queue.NewManager(st, queue.DefaultEscalationThreshold, zerolog.Nop())
	ctx := context.Background()

	reg.Report("agent-1", types.AgentStatusOnline)
	call, _ := q.Enqueue(ctx, "verif-1", "cust-1", types.PriorityNormal)

	// A nanosecond liveness window puts the agent's heartbeat outside it
	// immediately.
	engine := assign.NewEngine(st, reg, nil, assign.DefaultWeights(), time.Nanosecond, zerolog.Nop())
	sw := New(q, engine, reg, DefaultInterval, time.Nanosecond, zerolog.Nop())
	time.Sleep(5 * time.Millisecond)

	if assigned := sw.RunOnce(ctx); assigned != 0 {
		t.Errorf("expected no assignment to stale agent, got %d", assigned)
	}

	agent, _ := reg.Get("agent-1")
	if agent.Status != types.AgentStatusOffline {
		t.Errorf("expected stale agent offline, got %s", agent.Status)
	}
	got, _ := st.GetCall(ctx, call.ID)
	if got.Status != types.CallStatusPending {
		t.Errorf("expected request to stay pending, got %s", got.Status)
	}
}
