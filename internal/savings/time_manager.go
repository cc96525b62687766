package savings

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-savings/pkg/mqtt"
)

// TimeManager supplies the agent's notion of now. In test mode time runs
// from a virtual start at a configurable scale, so recorded sessions can be
// replayed.
type TimeManager struct {
	mu           sync.RWMutex
	testMode     bool
	virtualStart time.Time
	realStart    time.Time
	timeScale    int
	logger       *slog.Logger
}

// NewTimeManager creates a time manager running on wall clock time
func NewTimeManager(logger *slog.Logger) *TimeManager {
	return &TimeManager{
		realStart: time.Now(),
		timeScale: 1,
		logger:    logger,
	}
}

// ConfigureFromMQTT listens for test mode configuration on
// automation/test/time_config
func (tm *TimeManager) ConfigureFromMQTT(mqttClient mqtt.Client) error {
	return mqttClient.Subscribe(mqtt.TopicTimeConfig, 1, func(msg mqtt.Message) {
		tm.handleTimeConfig(msg.Payload())
	})
}

func (tm *TimeManager) handleTimeConfig(payload []byte) {
	var config struct {
		VirtualStart string `json:"virtual_start"`
		TimeScale    int    `json:"time_scale"`
		TestMode     bool   `json:"test_mode"`
	}

	if err := json.Unmarshal(payload, &config); err != nil {
		tm.logger.Error("Failed to parse time config", "error", err)
		return
	}

	if !config.TestMode {
		tm.mu.Lock()
		tm.testMode = false
		tm.mu.Unlock()
		tm.logger.Info("Test mode disabled")
		return
	}

	virtualStart, err := time.Parse(time.RFC3339, config.VirtualStart)
	if err != nil {
		tm.logger.Error("Invalid virtual_start time", "error", err)
		return
	}

	scale := config.TimeScale
	if scale < 1 {
		scale = 1
	}

	tm.mu.Lock()
	tm.testMode = true
	tm.virtualStart = virtualStart
	tm.realStart = time.Now()
	tm.timeScale = scale
	tm.mu.Unlock()

	tm.logger.Info("Test mode configured",
		"virtual_start", config.VirtualStart,
		"time_scale", scale)
}

// Now returns the current time (real or virtual)
func (tm *TimeManager) Now() time.Time {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if !tm.testMode {
		return time.Now()
	}

	elapsed := time.Since(tm.realStart) * time.Duration(tm.timeScale)
	return tm.virtualStart.Add(elapsed)
}

// IsTestMode returns whether virtual time is active
func (tm *TimeManager) IsTestMode() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.testMode
}
