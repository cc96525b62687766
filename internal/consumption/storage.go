package consumption

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-savings/internal/savings"
	"github.com/saaga0h/jeeves-savings/pkg/redis"
)

// Storage keeps consumption history in a Redis sorted set per meter,
// scored by sample start in unix milliseconds
type Storage struct {
	redis     redis.Client
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewStorage creates a new storage handler
func NewStorage(redisClient redis.Client, retention time.Duration, logger *slog.Logger) *Storage {
	return &Storage{
		redis:     redisClient,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the clock the retention cutoff is measured from
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

// Store saves a reading. A reading for an already stored start replaces it.
func (s *Storage) Store(ctx context.Context, reading *Reading) error {
	key := redis.ConsumptionKey(reading.MeterID)
	score := reading.Sample.Start.UnixMilli()
	scoreStr := strconv.FormatInt(score, 10)

	jsonData, err := json.Marshal(reading.Sample)
	if err != nil {
		return fmt.Errorf("failed to marshal consumption sample: %w", err)
	}

	if err := s.redis.ZRemRangeByScore(ctx, key, scoreStr, scoreStr); err != nil {
		return fmt.Errorf("failed to replace consumption sample: %w", err)
	}
	if err := s.redis.ZAdd(ctx, key, float64(score), jsonData); err != nil {
		return fmt.Errorf("failed to add consumption sample to sorted set: %w", err)
	}

	// Clean entries older than the retention. A reading stamped in the future
	// must not push the cutoff past the real history.
	ref := s.now()
	if reading.Sample.Start.Before(ref) {
		ref = reading.Sample.Start
	}
	cutoff := ref.Add(-s.retention).UnixMilli()
	if err := s.redis.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)); err != nil {
		s.logger.Warn("Failed to clean old consumption data", "meter_id", reading.MeterID, "error", err)
	}

	if err := s.redis.Expire(ctx, key, s.retention); err != nil {
		return fmt.Errorf("failed to set TTL on consumption data: %w", err)
	}

	count, err := s.redis.ZCard(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to get consumption buffer size", "meter_id", reading.MeterID, "error", err)
	} else {
		s.logger.Debug("Stored consumption sample",
			"meter_id", reading.MeterID,
			"start", reading.Sample.Start,
			"buffer_size", count)
	}

	return nil
}

// Range returns the samples of meter starting within [from, to], oldest first
func (s *Storage) Range(ctx context.Context, meterID string, from, to time.Time) ([]savings.Sample, error) {
	key := redis.ConsumptionKey(meterID)

	values, err := s.redis.ZRangeByScoreWithScores(ctx, key, float64(from.UnixMilli()), float64(to.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("Redis query failed: %w", err)
	}

	samples := make([]savings.Sample, 0, len(values))
	for _, item := range values {
		var sample savings.Sample
		if err := json.Unmarshal([]byte(item.Member), &sample); err != nil {
			s.logger.Warn("Failed to parse consumption sample", "error", err, "key", key)
			continue
		}
		samples = append(samples, sample)
	}

	return samples, nil
}
