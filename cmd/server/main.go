package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Tsipchain/thronos-verifyid/internal/api"
	"github.com/Tsipchain/thronos-verifyid/internal/assign"
	"github.com/Tsipchain/thronos-verifyid/internal/auth"
	"github.com/Tsipchain/thronos-verifyid/internal/config"
	"github.com/Tsipchain/thronos-verifyid/internal/gateway"
	"github.com/Tsipchain/thronos-verifyid/internal/metrics"
	"github.com/Tsipchain/thronos-verifyid/internal/queue"
	"github.com/Tsipchain/thronos-verifyid/internal/registry"
	"github.com/Tsipchain/thronos-verifyid/internal/store"
	"github.com/Tsipchain/thronos-verifyid/internal/sweeper"
	"github.com/Tsipchain/thronos-verifyid/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting verifyid call queue server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create store (DynamoDB or in-memory, per DYNAMO_MODE)
	st, err := store.New(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}

	// Create agent registry
	agentRegistry := registry.NewAgentRegistry(cfg.DefaultMaxConcurrentCalls, log.Logger)

	// Create queue manager
	queueManager := queue.NewManager(st, cfg.EscalationThreshold, log.Logger)

	// Create notification gateway
	hub := gateway.NewHub(agentRegistry, log.Logger)
	go hub.Run()

	// Create assignment engine
	engine := assign.NewEngine(st, agentRegistry, hub, assign.DefaultWeights(), cfg.HeartbeatTimeout, log.Logger)

	// Create and start the queue sweeper
	queueSweeper := sweeper.New(queueManager, engine, agentRegistry, cfg.SweepInterval, cfg.HeartbeatTimeout, log.Logger)
	go queueSweeper.Start(ctx)

	// Create handlers
	wsHandler := gateway.NewHandler(hub, log.Logger)
	callsHandler := api.NewCallsHandler(st, queueManager, engine, agentRegistry, hub, log.Logger)
	agentsHandler := api.NewAgentsHandler(agentRegistry, st, log.Logger)
	eventsHandler := api.NewEventsHandler(callsHandler, queueSweeper, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Internal routes (no auth - for collaborating services)
	r.Route("/internal", func(r chi.Router) {
		r.Post("/events/verification-completed", eventsHandler.VerificationCompleted)
		r.Post("/sweep", eventsHandler.Sweep)
	})

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api/calls", func(r chi.Router) {
			r.Get("/pending", callsHandler.Pending)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAgent)
				r.Get("/mine", callsHandler.Mine)
				r.Post("/{callId}/start", callsHandler.Start)
				r.Post("/{callId}/complete", callsHandler.Complete)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireManagerOrAdmin)
				r.Post("/queue", callsHandler.Queue)
				r.Post("/{callId}/assign", callsHandler.Assign)
				r.Post("/{callId}/cancel", callsHandler.Cancel)
			})
		})

		r.Route("/api/agents", func(r chi.Router) {
			r.Get("/availability", agentsHandler.Availability)
			r.Get("/{agentId}/calls", agentsHandler.GetCalls)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAgent)
				r.Post("/status", agentsHandler.ReportStatus)
				r.Post("/heartbeat", agentsHandler.Heartbeat)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the sweeper
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"verifyid-call-queue"}`)
}
