package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

func newTestRegistry() *AgentRegistry {
	return NewAgentRegistry(2, zerolog.Nop())
}

func TestReportCreatesAgent(t *testing.T) {
	reg := newTestRegistry()

	agent := reg.Report("agent-1", types.AgentStatusOnline)
	if agent.ID != "agent-1" {
		t.Errorf("expected agent-1, got %s", agent.ID)
	}
	if agent.Status != types.AgentStatusOnline {
		t.Errorf("expected online, got %s", agent.Status)
	}
	if agent.MaxConcurrentCalls != 2 {
		t.Errorf("expected default capacity 2, got %d", agent.MaxConcurrentCalls)
	}
	if reg.Count() != 1 {
		t.Errorf("expected 1 agent, got %d", reg.Count())
	}
}

func TestReportBusyCoercedToOnline(t *testing.T) {
	reg := newTestRegistry()

	agent := reg.Report("agent-1", types.AgentStatusBusy)
	if agent.Status != types.AgentStatusOnline {
		t.Errorf("busy must be derived, not reported; got %s", agent.Status)
	}
}

func TestHeartbeatUnknownAgentIgnored(t *testing.T) {
	reg := newTestRegistry()

	if reg.Heartbeat("ghost") {
		t.Error("heartbeat from unknown agent must be ignored")
	}

	reg.Report("agent-1", types.AgentStatusOnline)
	if !reg.Heartbeat("agent-1") {
		t.Error("heartbeat from known agent must be accepted")
	}
}

func TestReserveCapacityInvariant(t *testing.T) {
	reg := newTestRegistry()
	reg.Report("agent-1", types.AgentStatusOnline)

	if err := reg.Reserve("agent-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Reserve("agent-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Capacity is 2: the third reserve must fail
	if err := reg.Reserve("agent-1"); !errors.Is(err, store.ErrAgentAtCapacity) {
		t.Errorf("expected ErrAgentAtCapacity, got %v", err)
	}

	agent, _ := reg.Get("agent-1")
	if agent.ActiveCalls != 2 {
		t.Errorf("expected 2 active calls, got %d", agent.ActiveCalls)
	}
	if agent.Status != types.AgentStatusBusy {
		t.Errorf("expected derived busy status, got %s", agent.Status)
	}
}

func TestReserveConcurrentNeverExceedsCapacity(t *testing.T) {
	reg := NewAgentRegistry(3, zerolog.Nop())
	reg.Report("agent-1", types.AgentStatusOnline)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reg.Reserve("agent-1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 {
		t.Errorf("expected exactly 3 successful reserves, got %d", succeeded)
	}
	agent, _ := reg.Get("agent-1")
	if agent.ActiveCalls != 3 {
		t.Errorf("expected 3 active calls, got %d", agent.ActiveCalls)
	}
}

func TestReserveOfflineOrUnknownAgent(t *testing.T) {
	reg := newTestRegistry()

	if err := reg.Reserve("ghost"); !errors.Is(err, store.ErrAgentAtCapacity) {
		t.Errorf("expected ErrAgentAtCapacity for unknown agent, got %v", err)
	}

	reg.Report("agent-1", types.AgentStatusOffline)
	if err := reg.Reserve("agent-1"); !errors.Is(err, store.ErrAgentAtCapacity) {
		t.Errorf("expected ErrAgentAtCapacity for offline agent, got %v", err)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	reg := newTestRegistry()
	reg.Report("agent-1", types.AgentStatusOnline)

	reg.Release("agent-1")
	reg.Release("ghost") // no-op

	agent, _ := reg.Get("agent-1")
	if agent.ActiveCalls != 0 {
		t.Errorf("expected 0 active calls, got %d", agent.ActiveCalls)
	}
}

func TestListAvailableOrdering(t *testing.T) {
	reg := NewAgentRegistry(3, zerolog.Nop())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return base }

	reg.Report("agent-a", types.AgentStatusOnline)
	reg.Report("agent-b", types.AgentStatusOnline)
	reg.Report("agent-c", types.AgentStatusOnline)

	// agent-a takes two calls, agent-b one, agent-c none
	reg.Reserve("agent-a")
	reg.now = func() time.Time { return base.Add(time.Minute) }
	reg.Reserve("agent-a")
	reg.now = func() time.Time { return base.Add(2 * time.Minute) }
	reg.Reserve("agent-b")
	reg.now = func() time.Time { return base.Add(3 * time.Minute) }

	available := reg.ListAvailable(DefaultHeartbeatTimeout)
	if len(available) != 3 {
		t.Fatalf("expected 3 available agents, got %d", len(available))
	}
	if available[0].ID != "agent-c" {
		t.Errorf("expected agent-c first (least loaded), got %s", available[0].ID)
	}
	if available[1].ID != "agent-b" {
		t.Errorf("expected agent-b second, got %s", available[1].ID)
	}
	if available[2].ID != "agent-a" {
		t.Errorf("expected agent-a last (most loaded), got %s", available[2].ID)
	}
}

func TestListAvailableExcludesStaleHeartbeat(t *testing.T) {
	reg := newTestRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	reg.now = func() time.Time { return base }
	reg.Report("agent-stale", types.AgentStatusOnline)

	reg.now = func() time.Time { return base.Add(2 * time.Minute) }
	reg.Report("agent-fresh", types.AgentStatusOnline)

	// Window is 90s: agent-stale's heartbeat is 2 minutes old
	available := reg.ListAvailable(DefaultHeartbeatTimeout)
	if len(available) != 1 || available[0].ID != "agent-fresh" {
		t.Errorf("expected only agent-fresh, got %v", available)
	}
}

func TestSweepStaleMarksOffline(t *testing.T) {
	reg := newTestRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	reg.now = func() time.Time { return base }
	reg.Report("agent-1", types.AgentStatusOnline)
	reg.Report("agent-2", types.AgentStatusOnline)

	// agent-2 keeps heartbeating, agent-1 goes silent
	reg.now = func() time.Time { return base.Add(80 * time.Second) }
	reg.Heartbeat("agent-2")

	reg.now = func() time.Time { return base.Add(2 * time.Minute) }
	stale := reg.SweepStale(DefaultHeartbeatTimeout)

	if len(stale) != 1 || stale[0] != "agent-1" {
		t.Errorf("expected agent-1 swept, got %v", stale)
	}

	agent, _ := reg.Get("agent-1")
	if agent.Status != types.AgentStatusOffline {
		t.Errorf("expected offline after sweep, got %s", agent.Status)
	}
	agent, _ = reg.Get("agent-2")
	if agent.Status != types.AgentStatusOnline {
		t.Errorf("expected agent-2 to stay online, got %s", agent.Status)
	}

	// Sweeping again finds nothing new
	if again := reg.SweepStale(DefaultHeartbeatTimeout); len(again) != 0 {
		t.Errorf("expected idempotent sweep, got %v", again)
	}
}

func TestRecordCompletionRollingAverage(t *testing.T) {
	reg := newTestRegistry()
	reg.Report("agent-1", types.AgentStatusOnline)

	reg.RecordCompletion("agent-1", 100*time.Second)
	reg.RecordCompletion("agent-1", 200*time.Second)

	agent, _ := reg.Get("agent-1")
	if agent.CallsCompletedToday != 2 {
		t.Errorf("expected 2 completed calls, got %d", agent.CallsCompletedToday)
	}
	if agent.AvgCallDurationSeconds != 150 {
		t.Errorf("expected 150s average, got %.1f", agent.AvgCallDurationSeconds)
	}
}

func TestDailyStatsResetLazily(t *testing.T) {
	reg := newTestRegistry()
	day1 := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return day1 }

	reg.Report("agent-1", types.AgentStatusOnline)
	reg.RecordCompletion("agent-1", 300*time.Second)

	agent, _ := reg.Get("agent-1")
	if agent.CallsCompletedToday != 1 {
		t.Fatalf("expected 1 completed call, got %d", agent.CallsCompletedToday)
	}

	// First touch on the next day resets the counters
	reg.now = func() time.Time { return day1.Add(2 * time.Hour) }
	reg.Heartbeat("agent-1")

	agent, _ = reg.Get("agent-1")
	if agent.CallsCompletedToday != 0 {
		t.Errorf("expected daily counter reset, got %d", agent.CallsCompletedToday)
	}
	if agent.AvgCallDurationSeconds != 0 {
		t.Errorf("expected average reset, got %.1f", agent.AvgCallDurationSeconds)
	}
}
