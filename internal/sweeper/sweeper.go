package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tsipchain/thronos-verifyid/internal/assign"
	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/queue"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
)

// DefaultInterval is the default time between sweep passes
const DefaultInterval = 60 * time.Second

// Sweeper periodically escalates stale requests and drains the queue
// against available agents. It is also how the queue drains after an agent
// comes online or completes a call: the next pass subsumes any
// "agent became free" event, trading one interval of latency for a much
// simpler concurrency model.
type Sweeper struct {
	queue            *queue.Manager
	engine           *assign.Engine
	registry         *registry.AgentRegistry
	interval         time.Duration
	heartbeatTimeout time.Duration
	logger           zerolog.Logger
}

// New creates a new Sweeper
func New(q *queue.Manager, e *assign.Engine, reg *registry.AgentRegistry, interval, heartbeatTimeout time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = registry.DefaultHeartbeatTimeout
	}
	return &Sweeper{
		queue:            q,
		engine:           e,
		registry:         reg,
		interval:         interval,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start runs sweep passes on the configured interval until the context is
// cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("queue sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("queue sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass: expire stale agents, escalate
// overdue requests, then attempt assignment in priority order until no
// agents remain available. Returns the number of assignments made.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	start := time.Now()

	s.registry.SweepStale(s.heartbeatTimeout)

	escalated, err := s.queue.EscalateStale(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("escalation pass failed")
	}

	pending, err := s.queue.PeekEligible(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list pending requests")
		return 0
	}

	assigned := 0
	for _, call := range pending {
		_, err := s.engine.TryAssign(ctx, call.ID)
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, store.ErrNoAgentAvailable):
			// Queue stays as-is until capacity frees up.
			metrics.Get().RecordSweep(escalated, assigned)
			s.logPass(start, len(pending), escalated, assigned)
			return assigned
		case errors.Is(err, store.ErrRequestNotEligible):
			// Raced by a manual assign or cancel; skip.
			continue
		default:
			s.logger.Error().Err(err).Str("call_id", call.ID).Msg("assignment attempt failed")
		}
	}

	metrics.Get().RecordSweep(escalated, assigned)
	s.logPass(start, len(pending), escalated, assigned)
	return assigned
}

func (s *Sweeper) logPass(start time.Time, pending, escalated, assigned int) {
	if pending == 0 && escalated == 0 && assigned == 0 {
		return
	}
	s.logger.Debug().
		Int("pending", pending).
		Int("escalated", escalated).
		Int("assigned", assigned).
		Dur("took", time.Since(start)).
		Msg("sweep pass completed")
}
