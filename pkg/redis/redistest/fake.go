// Package redistest provides an in-memory redis.Client for tests
package redistest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-savings/pkg/redis"
)

// Fake is an in-memory implementation of redis.Client. TTLs are recorded
// but never expire keys.
type Fake struct {
	mu      sync.Mutex
	strings map[string]string
	zsets   map[string][]redis.ZMember
	ttls    map[string]time.Duration

	// PingErr is returned by Ping when set
	PingErr error
	Closed  bool
}

// New creates an empty fake
func New() *Fake {
	return &Fake{
		strings: make(map[string]string),
		zsets:   make(map[string][]redis.ZMember),
		ttls:    make(map[string]time.Duration),
	}
}

var _ redis.Client = (*Fake)(nil)

func (f *Fake) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = stringify(value)
	f.ttls[key] = ttl
	return nil
}

func (f *Fake) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, redis.ErrKeyNotFound)
	}
	return v, nil
}

func (f *Fake) ZAdd(ctx context.Context, key string, score float64, member interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := stringify(member)
	set := f.zsets[key]
	for i := range set {
		if set[i].Member == m {
			set[i].Score = score
			f.sortLocked(key)
			return nil
		}
	}
	f.zsets[key] = append(set, redis.ZMember{Score: score, Member: m})
	f.sortLocked(key)
	return nil
}

func (f *Fake) ZRemRangeByScore(ctx context.Context, key string, min, max string) error {
	lo, err := parseBound(min, false)
	if err != nil {
		return err
	}
	hi, err := parseBound(max, true)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.zsets[key][:0]
	for _, m := range f.zsets[key] {
		if m.Score < lo || m.Score > hi {
			kept = append(kept, m)
		}
	}
	f.zsets[key] = kept
	return nil
}

func (f *Fake) ZCard(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.zsets[key])), nil
}

func (f *Fake) ZRangeByScoreWithScores(ctx context.Context, key string, min, max float64) ([]redis.ZMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []redis.ZMember
	for _, m := range f.zsets[key] {
		if m.Score >= min && m.Score <= max {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = ttl
	return nil
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// TTL returns the last TTL set on key
func (f *Fake) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *Fake) sortLocked(key string) {
	set := f.zsets[key]
	sort.SliceStable(set, func(i, j int) bool {
		if set[i].Score != set[j].Score {
			return set[i].Score < set[j].Score
		}
		return set[i].Member < set[j].Member
	})
}

// parseBound understands -inf, +inf and the exclusive "(" prefix
func parseBound(s string, upper bool) (float64, error) {
	exclusive := strings.HasPrefix(s, "(")
	s = strings.TrimPrefix(s, "(")

	switch s {
	case "-inf":
		return math.Inf(-1), nil
	case "+inf", "inf":
		return math.Inf(1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score bound %q: %w", s, err)
	}
	if exclusive {
		if upper {
			return math.Nextafter(v, math.Inf(-1)), nil
		}
		return math.Nextafter(v, math.Inf(1)), nil
	}
	return v, nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
