package savings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saaga0h/jeeves-savings/pkg/config"
	"github.com/saaga0h/jeeves-savings/pkg/metrics"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
	"github.com/saaga0h/jeeves-savings/pkg/redis"
)

// HistorySource returns stored consumption samples starting within [from, to]
type HistorySource interface {
	Range(ctx context.Context, meterID string, from, to time.Time) ([]Sample, error)
}

// SessionSource lists the known saving sessions
type SessionSource interface {
	List(ctx context.Context) ([]Event, error)
}

// Subscriber is an MQTT consumer started once the agent is connected
type Subscriber interface {
	Subscribe() error
}

// Clock tells the agent what time it is
type Clock interface {
	Now() time.Time
}

// Snapshot is the baseline state published for a meter
type Snapshot struct {
	CalculationID       string             `json:"calculation_id,omitempty"`
	MeterID             string             `json:"meter_id"`
	Active              bool               `json:"active"`
	Session             *Event             `json:"session,omitempty"`
	TotalBaseline       float64            `json:"total_baseline"`
	CurrentIndex        int                `json:"current_index"`
	CurrentTarget       *PeriodBaseline    `json:"current_target,omitempty"`
	Baselines           []PeriodBaseline   `json:"baselines,omitempty"`
	ComparisonDates     []ComparisonWindow `json:"comparison_dates,omitempty"`
	InsufficientHistory bool               `json:"insufficient_history"`
	Timestamp           time.Time          `json:"timestamp"`
}

// Agent periodically recalculates the baseline of the current or next
// saving session and publishes it
type Agent struct {
	mqtt     mqtt.Client
	redis    redis.Client
	cfg      *config.Config
	logger   *slog.Logger
	history  HistorySource
	sessions SessionSource
	clock    Clock
	loc      *time.Location
	metrics  *metrics.Metrics

	subscribers []Subscriber

	stateMu    sync.Mutex
	lastActive *bool

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAgent creates a savings agent. subscribers are started after the MQTT
// connection is up.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, cfg *config.Config, history HistorySource,
	sessions SessionSource, clock Clock, logger *slog.Logger, subscribers ...Subscriber) *Agent {
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn("Falling back to local timezone", "error", err)
		loc = time.Local
	}

	return &Agent{
		mqtt:        mqttClient,
		redis:       redisClient,
		cfg:         cfg,
		logger:      logger,
		history:     history,
		sessions:    sessions,
		clock:       clock,
		loc:         loc,
		subscribers: subscribers,
		stopChan:    make(chan struct{}),
	}
}

// WithMetrics enables baseline gauges and calculation counters
func (a *Agent) WithMetrics(m *metrics.Metrics) *Agent {
	a.metrics = m
	return a
}

// Start connects, starts the subscribers and runs the baseline loop until
// ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting savings agent",
		"service_name", a.cfg.ServiceName,
		"meter_id", a.cfg.MeterID,
		"baseline_interval_sec", a.cfg.BaselineIntervalSec,
		"max_lookback_days", a.cfg.MaxLookbackDays)

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	for _, s := range a.subscribers {
		if err := s.Subscribe(); err != nil {
			return err
		}
	}

	// First calculation runs immediately so the retained state is fresh
	a.runCalculation(ctx)
	a.startBaselineLoop(ctx)

	a.logger.Info("Savings agent started and ready")

	<-ctx.Done()
	a.logger.Info("Savings agent stopping")

	return nil
}

// Stop gracefully stops the agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping savings agent")

	a.stopOnce.Do(func() {
		if a.ticker != nil {
			a.ticker.Stop()
		}
		close(a.stopChan)
	})

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Savings agent stopped")
	return nil
}

func (a *Agent) startBaselineLoop(ctx context.Context) {
	interval := time.Duration(a.cfg.BaselineIntervalSec) * time.Second
	a.ticker = time.NewTicker(interval)

	go func() {
		a.logger.Info("Starting baseline loop", "interval_sec", a.cfg.BaselineIntervalSec)
		for {
			select {
			case <-a.ticker.C:
				a.runCalculation(ctx)
			case <-a.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *Agent) runCalculation(ctx context.Context) {
	snapshot, err := a.Calculate(ctx)
	if err != nil {
		a.logger.Error("Baseline calculation failed", "meter_id", a.cfg.MeterID, "error", err)
		a.metrics.CalculationFailed(a.cfg.MeterID)
		return
	}

	if snapshot.Active {
		a.metrics.CalculationActive(snapshot.MeterID, snapshot.TotalBaseline,
			snapshot.CurrentTarget.Baseline, len(snapshot.ComparisonDates))
	} else {
		a.metrics.CalculationInactive(snapshot.MeterID)
	}

	if !a.shouldPublish(snapshot) {
		a.logger.Debug("No saving session, state unchanged", "meter_id", a.cfg.MeterID)
		return
	}

	if err := a.publish(ctx, snapshot); err != nil {
		a.logger.Error("Failed to publish baseline", "meter_id", a.cfg.MeterID, "error", err)
	}
}

// Calculate builds the snapshot for the current time without publishing it.
// Sessions, readings and now are moved into the configured timezone first
// since periods are matched by time of day.
func (a *Agent) Calculate(ctx context.Context) (*Snapshot, error) {
	now := a.clock.Now().In(a.loc)

	events, err := a.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list saving sessions: %w", err)
	}
	events = eventsIn(events, a.loc)

	inactive := &Snapshot{MeterID: a.cfg.MeterID, Timestamp: now}

	event := ActiveOrNext(now, events)
	if event == nil {
		return inactive, nil
	}

	windows, err := SelectComparisonDates(*event, PreviousSessions(*event, events), a.cfg.MaxLookbackDays)
	insufficient := false
	if err != nil {
		if !errors.Is(err, ErrInsufficientHistory) {
			return nil, err
		}
		insufficient = true
		a.logger.Warn("Baseline uses fewer comparison days than required",
			"session_id", event.ID,
			"found", len(windows),
			"error", err)
	}

	var history []Sample
	if len(windows) > 0 {
		// windows are most recent first
		from := windows[len(windows)-1].Start
		to := windows[0].End
		history, err = a.history.Range(ctx, a.cfg.MeterID, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to load consumption history: %w", err)
		}
		history = samplesIn(history, a.loc)
	}

	filtered := FilterToWindows(history, windows)

	result, ok := GetTarget(now, event, filtered)
	if !ok {
		return inactive, nil
	}

	current := result.CurrentTarget
	session := *event

	snapshot := &Snapshot{
		CalculationID:       uuid.New().String(),
		MeterID:             a.cfg.MeterID,
		Active:              true,
		Session:             &session,
		TotalBaseline:       result.TotalBaseline,
		CurrentIndex:        result.CurrentIndex,
		CurrentTarget:       &current,
		Baselines:           result.Baselines,
		ComparisonDates:     windows,
		InsufficientHistory: insufficient,
		Timestamp:           now,
	}

	a.logger.Debug("Calculated baseline",
		"session_id", event.ID,
		"comparison_days", len(windows),
		"samples", len(filtered),
		"total_baseline", result.TotalBaseline,
		"current_index", result.CurrentIndex)

	return snapshot, nil
}

func eventsIn(events []Event, loc *time.Location) []Event {
	out := make([]Event, len(events))
	for i, e := range events {
		e.Start = e.Start.In(loc)
		e.End = e.End.In(loc)
		out[i] = e
	}
	return out
}

func samplesIn(samples []Sample, loc *time.Location) []Sample {
	out := make([]Sample, len(samples))
	for i, s := range samples {
		s.Start = s.Start.In(loc)
		s.End = s.End.In(loc)
		out[i] = s
	}
	return out
}

// shouldPublish suppresses repeated inactive states. Active snapshots are
// always published since the current period moves with time.
func (a *Agent) shouldPublish(snapshot *Snapshot) bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !snapshot.Active && a.lastActive != nil && !*a.lastActive {
		return false
	}

	active := snapshot.Active
	a.lastActive = &active
	return true
}

func (a *Agent) publish(ctx context.Context, snapshot *Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	topic := mqtt.SavingsContextTopic(snapshot.MeterID)
	if err := a.mqtt.Publish(topic, 1, true, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	key := redis.SavingsContextKey(snapshot.MeterID)
	if err := a.redis.Set(ctx, key, payload, a.snapshotTTL()); err != nil {
		a.logger.Warn("Failed to cache snapshot", "key", key, "error", err)
	}

	if snapshot.Active {
		a.logger.Info("Baseline published",
			"meter_id", snapshot.MeterID,
			"session_id", snapshot.Session.ID,
			"total_baseline", snapshot.TotalBaseline,
			"current_index", snapshot.CurrentIndex,
			"current_target", snapshot.CurrentTarget.Baseline,
			"insufficient_history", snapshot.InsufficientHistory)
	} else {
		a.logger.Info("No saving session scheduled", "meter_id", snapshot.MeterID)
	}
	return nil
}

// snapshotTTL outlives a few missed ticks
func (a *Agent) snapshotTTL() time.Duration {
	return 4 * time.Duration(a.cfg.BaselineIntervalSec) * time.Second
}

// LatestSnapshot returns the cached snapshot for a meter
func LatestSnapshot(ctx context.Context, redisClient redis.Client, meterID string) (*Snapshot, error) {
	raw, err := redisClient.Get(ctx, redis.SavingsContextKey(meterID))
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse cached snapshot: %w", err)
	}
	return &snapshot, nil
}
