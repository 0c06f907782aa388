package store

import (
	"context"
	"sync"

	"github.com/Tsipchain/thronos-verifyid/internal/types"
)

// MemoryStore is the in-memory Store used when DynamoDB is disabled and in
// tests. Status and priority transitions are compare-and-set under the lock,
// matching the guarantees of the conditional writes in the DynamoDB store.
type MemoryStore struct {
	mu      sync.RWMutex
	calls   map[string]*types.CallRequest
	records map[string][]types.CallRecord // dateKey -> records
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:   make(map[string]*types.CallRequest),
		records: make(map[string][]types.CallRecord),
	}
}

func (s *MemoryStore) CreateCall(_ context.Context, call *types.CallRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *call
	s.calls[call.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCall(_ context.Context, id string) (*types.CallRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *call
	return &cp, nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*types.CallRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*types.CallRequest, 0)
	for _, call := range s.calls {
		if call.Status == types.CallStatusPending {
			cp := *call
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

func (s *MemoryStore) ListByAgent(_ context.Context, agentID string) ([]*types.CallRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls := make([]*types.CallRequest, 0)
	for _, call := range s.calls {
		if call.AssignedAgentID == agentID && !call.Status.Terminal() {
			cp := *call
			calls = append(calls, &cp)
		}
	}
	return calls, nil
}

func (s *MemoryStore) TransitionCall(_ context.Context, id string, from, to types.CallStatus, mutate func(*types.CallRequest)) (*types.CallRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	if call.Status != from {
		return nil, ErrRequestNotEligible
	}

	call.Status = to
	if mutate != nil {
		mutate(call)
	}
	cp := *call
	return &cp, nil
}

func (s *MemoryStore) EscalateCall(_ context.Context, id string, from types.Priority) (*types.CallRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call, ok := s.calls[id]
	if !ok {
		return nil, ErrNotFound
	}
	if call.Status != types.CallStatusPending || call.Priority != from {
		return nil, ErrRequestNotEligible
	}

	call.Priority = from.Escalate()
	call.EscalationCount++
	cp := *call
	return &cp, nil
}

func (s *MemoryStore) SaveCallRecord(_ context.Context, record types.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.DateKey] = append(s.records[record.DateKey], record)
	return nil
}

func (s *MemoryStore) GetCallRecords(_ context.Context, dateKey string) ([]types.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]types.CallRecord(nil), s.records[dateKey]...), nil
}

func (s *MemoryStore) GetAgentCalls(_ context.Context, agentID, dateKey string) ([]types.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.CallRecord
	for _, r := range s.records[dateKey] {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}
