package savings

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-savings/pkg/config"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
	"github.com/saaga0h/jeeves-savings/pkg/mqtt/mqtttest"
	"github.com/saaga0h/jeeves-savings/pkg/redis"
	"github.com/saaga0h/jeeves-savings/pkg/redis/redistest"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type memoryHistory struct {
	samples []Sample
	err     error
	calls   int
}

func (h *memoryHistory) Range(ctx context.Context, meterID string, from, to time.Time) ([]Sample, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	var out []Sample
	for _, s := range h.samples {
		if !s.Start.Before(from) && !s.Start.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

type staticSessions []Event

func (s staticSessions) List(ctx context.Context) ([]Event, error) { return s, nil }

type countingSubscriber struct{ n atomic.Int32 }

func (s *countingSubscriber) Subscribe() error {
	s.n.Add(1)
	return nil
}

func agentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var mondaySession = Event{
	ID:    "monday",
	Start: time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC),
}

// twoMondays holds the session slots on Jan 8 and Jan 1 plus one sample
// outside any comparison window
func twoMondays() []Sample {
	var samples []Sample
	for _, day := range []int{1, 8} {
		start := time.Date(2024, 1, day, 16, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			samples = append(samples, halfHour(start.Add(time.Duration(i)*PeriodLength), float64(i+1)))
		}
	}
	samples = append(samples, halfHour(time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC), 50))
	return samples
}

func newTestAgent(t *testing.T, now time.Time, sessions []Event, history *memoryHistory) (*Agent, *mqtttest.Fake, *redistest.Fake) {
	t.Helper()
	broker := mqtttest.New()
	store := redistest.New()
	cfg := config.NewConfig()
	cfg.Timezone = "UTC"
	agent := NewAgent(broker, store, cfg, history, staticSessions(sessions), fixedClock(now), agentLogger())
	return agent, broker, store
}

func TestAgent_CalculateDuringSession(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	history := &memoryHistory{samples: twoMondays()}
	agent, _, _ := newTestAgent(t, now, []Event{mondaySession}, history)

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)

	require.True(t, snapshot.Active)
	assert.NotEmpty(t, snapshot.CalculationID)
	assert.Equal(t, "main", snapshot.MeterID)
	assert.Equal(t, "monday", snapshot.Session.ID)
	assert.Len(t, snapshot.ComparisonDates, 10)
	assert.False(t, snapshot.InsufficientHistory)

	require.Len(t, snapshot.Baselines, 4)
	for i, b := range snapshot.Baselines {
		assert.InDelta(t, float64(i+1), b.Baseline, 1e-9)
		assert.Len(t, b.ConsumptionItems, 2)
		assert.True(t, b.IsIncomplete)
	}
	assert.InDelta(t, 10.0, snapshot.TotalBaseline, 1e-9)
	assert.Equal(t, 1, snapshot.CurrentIndex)
	assert.InDelta(t, 2.0, snapshot.CurrentTarget.Baseline, 1e-9)
}

func TestAgent_CalculateAcrossOffsets(t *testing.T) {
	// announced with a +01:00 offset, readings stored in UTC
	bst := time.FixedZone("BST", 60*60)
	session := Event{
		ID:    "summer",
		Start: time.Date(2024, 6, 17, 16, 0, 0, 0, bst),
		End:   time.Date(2024, 6, 17, 17, 0, 0, 0, bst),
	}
	var samples []Sample
	for _, day := range []int{3, 10} {
		start := time.Date(2024, 6, day, 15, 0, 0, 0, time.UTC)
		samples = append(samples,
			halfHour(start, 1),
			halfHour(start.Add(PeriodLength), 2))
	}

	now := time.Date(2024, 6, 17, 15, 10, 0, 0, time.UTC)
	agent, _, _ := newTestAgent(t, now, []Event{session}, &memoryHistory{samples: samples})

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Active)

	require.Len(t, snapshot.Baselines, 2)
	for i, b := range snapshot.Baselines {
		assert.InDelta(t, float64(i+1), b.Baseline, 1e-9)
		assert.Len(t, b.ConsumptionItems, 2)
	}
	assert.InDelta(t, 3.0, snapshot.TotalBaseline, 1e-9)
	assert.Equal(t, 0, snapshot.CurrentIndex)
	assert.True(t, snapshot.Session.Start.Equal(session.Start))
	assert.Equal(t, time.UTC, snapshot.Session.Start.Location())
}

func TestAgent_CalculateBeforeSession(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	history := &memoryHistory{samples: twoMondays()}
	agent, _, _ := newTestAgent(t, now, []Event{mondaySession}, history)

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Active)
	assert.Equal(t, 0, snapshot.CurrentIndex)
	assert.InDelta(t, 1.0, snapshot.CurrentTarget.Baseline, 1e-9)
}

func TestAgent_CalculateSkipsPreviousSessionDays(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	earlier := Event{
		ID:    "earlier",
		Start: time.Date(2024, 1, 8, 16, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC),
	}
	history := &memoryHistory{samples: twoMondays()}
	agent, _, _ := newTestAgent(t, now, []Event{earlier, mondaySession}, history)

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Active)
	for _, w := range snapshot.ComparisonDates {
		assert.NotEqual(t, 8, w.Start.Day())
	}
	require.Len(t, snapshot.Baselines, 4)
	assert.Len(t, snapshot.Baselines[0].ConsumptionItems, 1)
}

func TestAgent_CalculateInsufficientHistory(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	history := &memoryHistory{samples: twoMondays()}
	agent, _, _ := newTestAgent(t, now, []Event{mondaySession}, history)
	agent.cfg.MaxLookbackDays = 3

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)
	require.True(t, snapshot.Active)
	assert.True(t, snapshot.InsufficientHistory)
	assert.Len(t, snapshot.ComparisonDates, 1)
	assert.Zero(t, snapshot.TotalBaseline)
}

func TestAgent_CalculateNoSession(t *testing.T) {
	now := time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC)
	history := &memoryHistory{}
	agent, _, _ := newTestAgent(t, now, []Event{mondaySession}, history)

	snapshot, err := agent.Calculate(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshot.Active)
	assert.Nil(t, snapshot.Session)
	assert.Zero(t, history.calls)
}

func TestAgent_CalculateHistoryError(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	history := &memoryHistory{err: errors.New("redis down")}
	agent, _, _ := newTestAgent(t, now, []Event{mondaySession}, history)

	_, err := agent.Calculate(context.Background())
	assert.Error(t, err)
}

func TestAgent_PublishesRetainedSnapshotAndCaches(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	history := &memoryHistory{samples: twoMondays()}
	agent, broker, store := newTestAgent(t, now, []Event{mondaySession}, history)
	ctx := context.Background()

	agent.runCalculation(ctx)

	msgs := broker.Messages(mqtt.SavingsContextTopic("main"))
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retained)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, true, payload["active"])
	assert.Equal(t, 10.0, payload["total_baseline"])

	cached, err := LatestSnapshot(ctx, store, "main")
	require.NoError(t, err)
	assert.Equal(t, "monday", cached.Session.ID)
	assert.Equal(t, 2*time.Minute, store.TTL(redis.SavingsContextKey("main")))
}

func TestAgent_InactiveStatePublishedOnce(t *testing.T) {
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	agent, broker, _ := newTestAgent(t, now, nil, &memoryHistory{})
	ctx := context.Background()

	agent.runCalculation(ctx)
	agent.runCalculation(ctx)

	msgs := broker.Messages(mqtt.SavingsContextTopic("main"))
	require.Len(t, msgs, 1)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, false, payload["active"])
}

func TestLatestSnapshot_Missing(t *testing.T) {
	_, err := LatestSnapshot(context.Background(), redistest.New(), "main")
	assert.ErrorIs(t, err, redis.ErrKeyNotFound)
}

func TestAgent_StartAndStop(t *testing.T) {
	now := time.Date(2024, 1, 15, 16, 45, 0, 0, time.UTC)
	history := &memoryHistory{samples: twoMondays()}
	broker := mqtttest.New()
	store := redistest.New()
	sub := &countingSubscriber{}
	agent := NewAgent(broker, store, config.NewConfig(), history, staticSessions{mondaySession},
		fixedClock(now), agentLogger(), sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(broker.Messages(mqtt.SavingsContextTopic("main"))) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), sub.n.Load())
	assert.True(t, broker.IsConnected())

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, agent.Stop())
	assert.True(t, store.Closed)
	assert.False(t, broker.IsConnected())
}

func TestAgent_StartFailsWithoutBroker(t *testing.T) {
	broker := mqtttest.New()
	broker.ConnectErr = errors.New("connection refused")
	agent := NewAgent(broker, redistest.New(), config.NewConfig(), &memoryHistory{}, staticSessions{},
		fixedClock(time.Now()), agentLogger())

	err := agent.Start(context.Background())
	assert.Error(t, err)
}
