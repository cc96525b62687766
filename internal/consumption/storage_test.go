package consumption

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/jeeves-savings/internal/savings"
	"github.com/saaga0h/jeeves-savings/pkg/redis"
	"github.com/saaga0h/jeeves-savings/pkg/redis/redistest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func reading(meter string, start time.Time, consumption float64) *Reading {
	return &Reading{
		MeterID: meter,
		Sample: savings.Sample{
			Start:       start,
			End:         start.Add(30 * time.Minute),
			Consumption: consumption,
		},
	}
}

func TestStorage_StoreAndRange(t *testing.T) {
	fake := redistest.New()
	storage := NewStorage(fake, 30*24*time.Hour, testLogger())
	ctx := context.Background()

	base := time.Date(2024, 1, 8, 16, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, storage.Store(ctx, reading("main", base.Add(time.Duration(i)*30*time.Minute), float64(i+1))))
	}
	require.NoError(t, storage.Store(ctx, reading("other", base, 9)))

	samples, err := storage.Range(ctx, "main", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 3, "range is inclusive of both starts")
	assert.Equal(t, 1.0, samples[0].Consumption)
	assert.Equal(t, 3.0, samples[2].Consumption)
	assert.True(t, samples[0].Start.Equal(base))

	assert.Equal(t, 30*24*time.Hour, fake.TTL(redis.ConsumptionKey("main")))
}

func TestStorage_ResentReadingReplaces(t *testing.T) {
	fake := redistest.New()
	storage := NewStorage(fake, 30*24*time.Hour, testLogger())
	ctx := context.Background()

	start := time.Date(2024, 1, 8, 16, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Store(ctx, reading("main", start, 0.3)))
	require.NoError(t, storage.Store(ctx, reading("main", start, 0.35)))

	count, err := fake.ZCard(ctx, redis.ConsumptionKey("main"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	samples, err := storage.Range(ctx, "main", start, start)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 0.35, samples[0].Consumption)
}

func TestStorage_RetentionTrimsOldSamples(t *testing.T) {
	fake := redistest.New()
	storage := NewStorage(fake, 7*24*time.Hour, testLogger())
	ctx := context.Background()

	old := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)
	recent := old.AddDate(0, 0, 10)
	require.NoError(t, storage.Store(ctx, reading("main", old, 1)))
	require.NoError(t, storage.Store(ctx, reading("main", recent, 2)))

	samples, err := storage.Range(ctx, "main", old.AddDate(-1, 0, 0), recent)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 2.0, samples[0].Consumption)
}

func TestStorage_FutureReadingKeepsHistory(t *testing.T) {
	fake := redistest.New()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	storage := NewStorage(fake, 7*24*time.Hour, testLogger()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	day := time.Date(2024, 1, 12, 16, 0, 0, 0, time.UTC)
	require.NoError(t, storage.Store(ctx, reading("main", day, 1)))
	require.NoError(t, storage.Store(ctx, reading("main", day.AddDate(10, 0, 0), 2)))

	samples, err := storage.Range(ctx, "main", day, day)
	require.NoError(t, err)
	require.Len(t, samples, 1, "cutoff is measured from the clock, not the future reading")
	assert.Equal(t, 1.0, samples[0].Consumption)
}

func TestStorage_RetentionFollowsClock(t *testing.T) {
	fake := redistest.New()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	storage := NewStorage(fake, 7*24*time.Hour, testLogger()).WithClock(func() time.Time { return now })
	ctx := context.Background()

	stale := now.AddDate(0, 0, -8)
	fresh := now.Add(10 * time.Minute)
	require.NoError(t, storage.Store(ctx, reading("main", stale, 1)))
	require.NoError(t, storage.Store(ctx, reading("main", fresh, 2)))

	samples, err := storage.Range(ctx, "main", stale, fresh)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 2.0, samples[0].Consumption)
}

func TestStorage_RangeSkipsCorruptMembers(t *testing.T) {
	fake := redistest.New()
	storage := NewStorage(fake, 24*time.Hour, testLogger())
	ctx := context.Background()

	start := time.Date(2024, 1, 8, 16, 0, 0, 0, time.UTC)
	require.NoError(t, fake.ZAdd(ctx, redis.ConsumptionKey("main"), float64(start.UnixMilli()), "not json"))
	require.NoError(t, storage.Store(ctx, reading("main", start.Add(30*time.Minute), 1)))

	samples, err := storage.Range(ctx, "main", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}
