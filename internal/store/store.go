package store

import (
	"context"
	"errors"

	"github.com/Tsipchain/thronos-verifyid/internal/types"
	"github.com/rs/zerolog"
)

// Sentinel errors for the queue/assignment taxonomy. Callers match with
// errors.Is; wrapped storage errors carry ErrStorageUnavailable.
var (
	// ErrInvalidPriority rejects an enqueue with an unknown priority band
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrRequestNotEligible means the request's status changed under us.
	// This is a benign race, not a failure surfaced to users.
	ErrRequestNotEligible = errors.New("request not eligible")

	// ErrAgentAtCapacity means a reserve would exceed maxConcurrentCalls
	ErrAgentAtCapacity = errors.New("agent at capacity")

	// ErrNoAgentAvailable is the normal "stay queued" outcome
	ErrNoAgentAvailable = errors.New("no agent available")

	// ErrNotFound means the call request does not exist
	ErrNotFound = errors.New("call request not found")

	// ErrStorageUnavailable wraps collaborator/storage failures; the
	// request remains in its last durable state and the operation is
	// safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store persists call requests and completed call records.
//
// TransitionCall is the compare-and-set primitive the whole engine is built
// on: the transition commits only if the request is still in the expected
// status, so concurrent writers can never double-apply a lifecycle step.
type Store interface {
	// CreateCall persists a new call request
	CreateCall(ctx context.Context, call *types.CallRequest) error

	// GetCall fetches a call request by id (ErrNotFound if absent)
	GetCall(ctx context.Context, id string) (*types.CallRequest, error)

	// ListPending returns all pending requests, in no particular order
	ListPending(ctx context.Context) ([]*types.CallRequest, error)

	// ListByAgent returns non-terminal requests assigned to an agent
	ListByAgent(ctx context.Context, agentID string) ([]*types.CallRequest, error)

	// TransitionCall atomically moves a request from one status to
	// another, applying mutate to the stored record while the guard
	// holds. Returns ErrRequestNotEligible if the status is not `from`.
	TransitionCall(ctx context.Context, id string, from, to types.CallStatus, mutate func(*types.CallRequest)) (*types.CallRequest, error)

	// EscalateCall bumps the priority of a pending request by one band,
	// guarded on the expected current priority. Returns
	// ErrRequestNotEligible if the request is no longer pending or its
	// priority already changed.
	EscalateCall(ctx context.Context, id string, from types.Priority) (*types.CallRequest, error)

	// SaveCallRecord persists a finished call for history/analytics
	SaveCallRecord(ctx context.Context, record types.CallRecord) error

	// GetCallRecords returns finished calls for a date (YYYY-MM-DD)
	GetCallRecords(ctx context.Context, dateKey string) ([]types.CallRecord, error)

	// GetAgentCalls returns an agent's finished calls for a date
	GetAgentCalls(ctx context.Context, agentID, dateKey string) ([]types.CallRecord, error)
}

// New creates the store selected by configuration: DynamoDB in local/aws
// mode, the in-memory store otherwise.
func New(ctx context.Context, logger zerolog.Logger) (Store, error) {
	cfg := LoadDynamoConfig()

	switch cfg.Mode {
	case DynamoModeLocal, DynamoModeAWS:
		return NewDynamoStore(ctx, cfg, logger)
	default:
		logger.Info().Msg("DynamoDB disabled (DYNAMO_MODE=none), using in-memory store")
		return NewMemoryStore(), nil
	}
}
