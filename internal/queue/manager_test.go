package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

func newTestManager() (*Manager, *store.MemoryStore) {
	st := store.NewMemoryStore()
	m := NewManager(st, DefaultEscalationThreshold, zerolog.Nop())
	return m, st
}

func TestEnqueueCreatesPendingRequest(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()

	call, err := m.Enqueue(ctx, "verif-1", "cust-1", types.PriorityHigh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.ID == "" {
		t.Error("expected a generated call id")
	}
	if call.Status != types.CallStatusPending {
		t.Errorf("expected pending, got %s", call.Status)
	}
	if call.Priority != types.PriorityHigh {
		t.Errorf("expected high, got %v", call.Priority)
	}

	stored, err := st.GetCall(ctx, call.ID)
	if err != nil {
		t.Fatalf("call not persisted: %v", err)
	}
	if stored.VerificationID != "verif-1" {
		t.Errorf("expected verif-1, got %s", stored.VerificationID)
	}
}

func TestEnqueueRejectsInvalidPriority(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Enqueue(context.Background(), "verif-1", "cust-1", types.Priority(42))
	if !errors.Is(err, store.ErrInvalidPriority) {
		t.Errorf("expected ErrInvalidPriority, got %v", err)
	}
}

func TestPeekEligibleOrdering(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Interleave priorities and creation times
	enqueueAt := func(offset time.Duration, priority types.Priority) string {
		m.now = func() time.Time { return base.Add(offset) }
		call, err := m.Enqueue(ctx, "verif", "cust", priority)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return call.ID
	}

	normalOld := enqueueAt(0, types.PriorityNormal)
	urgent := enqueueAt(1*time.Minute, types.PriorityUrgent)
	normalNew := enqueueAt(2*time.Minute, types.PriorityNormal)
	low := enqueueAt(3*time.Minute, types.PriorityLow)
	high := enqueueAt(4*time.Minute, types.PriorityHigh)

	ordered, err := m.PeekEligible(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{urgent, high, normalOld, normalNew, low}
	if len(ordered) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(ordered))
	}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ordered[i].ID)
		}
	}
}

func TestPeekEligibleFIFOWithinBand(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 4; i++ {
		offset := time.Duration(i) * time.Second
		m.now = func() time.Time { return base.Add(offset) }
		call, _ := m.Enqueue(ctx, "verif", "cust", types.PriorityNormal)
		ids = append(ids, call.ID)
	}

	ordered, _ := m.PeekEligible(ctx)
	for i, id := range ids {
		if ordered[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ordered[i].ID)
		}
	}
}

func TestEscalateStaleRaisesOneBand(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	call, _ := m.Enqueue(ctx, "verif-1", "cust-1", types.PriorityLow)
	normal, _ := m.Enqueue(ctx, "verif-2", "cust-2", types.PriorityNormal)

	// 31 minutes later both requests are past the 30-minute threshold
	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	count, err := m.EscalateStale(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 escalations, got %d", count)
	}

	got, _ := st.GetCall(ctx, call.ID)
	if got.Priority != types.PriorityNormal {
		t.Errorf("expected low->normal, got %v", got.Priority)
	}
	if got.EscalationCount != 1 {
		t.Errorf("expected escalation count 1, got %d", got.EscalationCount)
	}
	got, _ = st.GetCall(ctx, normal.ID)
	if got.Priority != types.PriorityHigh {
		t.Errorf("expected normal->high, got %v", got.Priority)
	}
}

func TestEscalateStaleIdempotentWithoutTimeAdvancing(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	call, _ := m.Enqueue(ctx, "verif-1", "cust-1", types.PriorityLow)

	m.now = func() time.Time { return base.Add(31 * time.Minute) }
	if count, _ := m.EscalateStale(ctx); count != 1 {
		t.Fatalf("expected 1 escalation on first pass, got %d", count)
	}

	// Running the pass again at the same instant must be a no-op: the
	// second escalation is only due after another threshold period.
	if count, _ := m.EscalateStale(ctx); count != 0 {
		t.Errorf("expected no escalations on repeated pass, got %d", count)
	}

	got, _ := st.GetCall(ctx, call.ID)
	if got.Priority != types.PriorityNormal {
		t.Errorf("expected a single band raise, got %v", got.Priority)
	}

	// After a second threshold period it escalates again
	m.now = func() time.Time { return base.Add(61 * time.Minute) }
	if count, _ := m.EscalateStale(ctx); count != 1 {
		t.Errorf("expected second escalation after another threshold, got %d", count)
	}
	got, _ = st.GetCall(ctx, call.ID)
	if got.Priority != types.PriorityHigh {
		t.Errorf("expected normal->high, got %v", got.Priority)
	}
}

func TestEscalateStaleCapsAtUrgent(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	call, _ := m.Enqueue(ctx, "verif-1", "cust-1", types.PriorityUrgent)

	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if count, _ := m.EscalateStale(ctx); count != 0 {
		t.Errorf("urgent requests must not escalate, got %d", count)
	}

	got, _ := st.GetCall(ctx, call.ID)
	if got.Priority != types.PriorityUrgent {
		t.Errorf("expected urgent unchanged, got %v", got.Priority)
	}
	if got.EscalationCount != 0 {
		t.Errorf("expected no escalation recorded, got %d", got.EscalationCount)
	}
}

func TestEscalateStaleSkipsNonPending(t *testing.T) {
	m, st := newTestManager()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return base }
	call, _ := m.Enqueue(ctx, "verif-1", "cust-1", types.PriorityLow)

	st.TransitionCall(ctx, call.ID, types.CallStatusPending, types.CallStatusAssigned, nil)

	m.now = func() time.Time { return base.Add(time.Hour) }
	if count, _ := m.EscalateStale(ctx); count != 0 {
		t.Errorf("assigned requests must not escalate, got %d", count)
	}
}
