package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-savings/internal/consumption"
	"github.com/saaga0h/jeeves-savings/internal/savings"
	"github.com/saaga0h/jeeves-savings/internal/sessions"
	"github.com/saaga0h/jeeves-savings/pkg/config"
	"github.com/saaga0h/jeeves-savings/pkg/health"
	"github.com/saaga0h/jeeves-savings/pkg/metrics"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
	"github.com/saaga0h/jeeves-savings/pkg/postgres"
	"github.com/saaga0h/jeeves-savings/pkg/redis"
)

// subscribeFunc adapts a plain function to savings.Subscriber
type subscribeFunc func() error

func (f subscribeFunc) Subscribe() error { return f() }

func main() {
	// Load configuration with hierarchy: defaults → env → flags
	cfg := config.NewConfig()
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Savings Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"meter_id", cfg.MeterID,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"postgres_enabled", cfg.PostgresEnabled(),
		"timezone", cfg.Timezone,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)

	// Sessions live in Postgres when configured, in memory otherwise
	var pgClient postgres.Client
	var store sessions.Store
	if cfg.PostgresEnabled() {
		pgClient = postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		pgStore := sessions.NewPostgresStore(pgClient)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare sessions table", "error", err)
			os.Exit(1)
		}
		store = pgStore
	} else {
		store = sessions.NewMemoryStore()
	}

	if cfg.SessionsFile != "" {
		if err := seedSessions(ctx, store, cfg.SessionsFile, logger); err != nil {
			logger.Error("Failed to load sessions file", "path", cfg.SessionsFile, "error", err)
			os.Exit(1)
		}
	}

	m := metrics.New()

	storage := consumption.NewStorage(redisClient, cfg.ConsumptionRetention(), logger)
	collector := consumption.NewCollector(mqttClient, storage, logger).WithMetrics(m)
	listener := sessions.NewListener(mqttClient, store, logger).WithMetrics(m)
	timeManager := savings.NewTimeManager(logger)

	agent := savings.NewAgent(mqttClient, redisClient, cfg, storage, store, timeManager, logger,
		collector,
		listener,
		subscribeFunc(func() error { return timeManager.ConfigureFromMQTT(mqttClient) }),
	).WithMetrics(m)

	healthChecker := health.NewChecker(mqttClient, redisClient, pgClient, logger)
	httpServer := startHTTPServer(cfg, healthChecker, redisClient, m, logger)

	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if pgClient != nil {
		if err := pgClient.Disconnect(); err != nil {
			logger.Error("Error disconnecting from Postgres", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	logger.Info("Savings agent shutdown complete")
}

func seedSessions(ctx context.Context, store sessions.Store, path string, logger *slog.Logger) error {
	events, err := sessions.LoadScheduleFile(path)
	if err != nil {
		return err
	}
	if err := store.UpsertAll(ctx, events); err != nil {
		return err
	}
	logger.Info("Loaded saving sessions", "path", path, "count", len(events))
	return nil
}

func startHTTPServer(cfg *config.Config, checker *health.Checker, redisClient redis.Client, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.Handle("/health/detailed", m.WrapHandler("/health/detailed", checker.DetailedHandlerFunc()))
	mux.Handle("/baseline", m.WrapHandler("/baseline", baselineHandler(cfg.MeterID, redisClient, logger)))
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting HTTP server", "port", cfg.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	return server
}

// baselineHandler serves the latest cached snapshot; ?meter= overrides the
// configured meter
func baselineHandler(defaultMeter string, redisClient redis.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meter := r.URL.Query().Get("meter")
		if meter == "" {
			meter = defaultMeter
		}

		snapshot, err := savings.LatestSnapshot(r.Context(), redisClient, meter)
		if errors.Is(err, redis.ErrKeyNotFound) {
			http.Error(w, "no baseline calculated yet", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("Failed to read baseline", "meter_id", meter, "error", err)
			http.Error(w, "failed to read baseline", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.Error("Failed to encode baseline response", "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
