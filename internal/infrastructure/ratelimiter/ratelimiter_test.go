package ratelimiter

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, store BucketStore, rate, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.UnixMilli(1_700_000_000_000)
	rl := New(Options{MaxRatePerSecond: rate, MaxBurst: burst, Store: store, TTL: time.Minute})
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	rl, now := newTestLimiter(t, store, 10, 3)

	// Given a full bucket of three tokens
	for i := 2; i >= 0; i-- {
		d := rl.Take(ctx, "client-a")
		req.True(d.Allowed)
		req.Equal(i, d.Remaining)
		req.Equal(3, d.Limit)
	}

	// Then the fourth request is rejected with the time to the next token
	d := rl.Take(ctx, "client-a")
	req.False(d.Allowed)
	req.Equal(100*time.Millisecond, d.RetryAfter)

	// And other sources keep their own bucket
	req.True(rl.Take(ctx, "client-b").Allowed)

	// When 250ms pass at 10 tokens per second
	*now = now.Add(250 * time.Millisecond)

	// Then two tokens are back, one of which this call spends
	d = rl.Take(ctx, "client-a")
	req.True(d.Allowed)
	req.Equal(1, d.Remaining)
}

func TestRateLimiter_FractionalRefillIsNotLost(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	defer store.Close()
	rl, now := newTestLimiter(t, store, 10, 1)

	req.True(rl.Take(ctx, "client").Allowed)
	req.False(rl.Take(ctx, "client").Allowed)

	// Two 50ms steps add up to one token at 10/s
	*now = now.Add(50 * time.Millisecond)
	d := rl.Take(ctx, "client")
	req.False(d.Allowed)
	req.Equal(50*time.Millisecond, d.RetryAfter)
	*now = now.Add(50 * time.Millisecond)
	req.True(rl.Take(ctx, "client").Allowed)
}

func TestRateLimiter_SharedRedisBucket(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	first, now := newTestLimiter(t, NewRedisStore(client, "qc:"), 1, 2)
	second := New(Options{MaxRatePerSecond: 1, MaxBurst: 2, Store: NewRedisStore(client, "qc:")})
	second.now = func() time.Time { return *now }

	req.True(first.Take(ctx, "10.0.0.1").Allowed)
	req.True(second.Take(ctx, "10.0.0.1").Allowed)
	req.False(first.Take(ctx, "10.0.0.1").Allowed)

	req.True(mr.Exists("qc:rl:10.0.0.1"))
	req.Equal("0", mr.HGet("qc:rl:10.0.0.1", "tokens"))
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (Bucket, error) {
	return Bucket{}, errors.New("store down")
}
func (failingStore) Save(context.Context, string, Bucket, time.Duration) error { return nil }
func (failingStore) Close() error                                              { return nil }

// readOnlyStore loads fresh buckets but cannot persist them.
type readOnlyStore struct{}

func (readOnlyStore) Load(context.Context, string) (Bucket, error) { return Bucket{}, ErrBucketMiss }
func (readOnlyStore) Save(context.Context, string, Bucket, time.Duration) error {
	return errors.New("READONLY replica")
}
func (readOnlyStore) Close() error { return nil }

type warnRecorder struct {
	logging.Logger
	mu    sync.Mutex
	warns []map[logging.ExtraKey]any
}

func (r *warnRecorder) Warn(_ logging.Category, _ logging.SubCategory, _ string, extra map[logging.ExtraKey]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, extra)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	req := require.New(t)
	logger := &warnRecorder{Logger: logging.NewNopLogger()}
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 1, Store: failingStore{}, Logger: logger})

	for i := 0; i < 5; i++ {
		req.True(rl.Take(context.Background(), "x").Allowed)
	}
	req.Len(logger.warns, 5)
	req.Equal("store down", logger.warns[0][logging.ErrorMessage])
}

func TestRateLimiter_SaveFailureIsLogged(t *testing.T) {
	req := require.New(t)
	logger := &warnRecorder{Logger: logging.NewNopLogger()}
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 2, Store: readOnlyStore{}, Logger: logger})

	// the decision still stands, the lost write is reported
	d := rl.Take(context.Background(), "10.0.0.7")
	req.True(d.Allowed)
	req.Equal(1, d.Remaining)

	req.Len(logger.warns, 1)
	req.Equal("10.0.0.7", logger.warns[0][logging.ClientIp])
	req.Equal("READONLY replica", logger.warns[0][logging.ErrorMessage])
}

func TestRateLimiter_SourceKey(t *testing.T) {
	req := require.New(t)
	rl := New(Options{MaxRatePerSecond: 1, SourceHeaderKey: "X-Forwarded-For"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	req.Equal("192.0.2.1", rl.SourceKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Equal("203.0.113.7", rl.SourceKey(r))
}

func TestMemoryStore_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	now := time.Now()
	store.now = func() time.Time { return now }

	req.NoError(store.Save(ctx, "k", Bucket{Tokens: 7, LastFill: 1}, time.Second))
	b, err := store.Load(ctx, "k")
	req.NoError(err)
	req.Equal(7, b.Tokens)

	now = now.Add(2 * time.Second)
	_, err = store.Load(ctx, "k")
	req.ErrorIs(err, ErrBucketMiss)

	store.removeExpired()
	req.Empty(store.buckets)
}

func TestFixedWindow_LimitsPerKey(t *testing.T) {
	req := require.New(t)
	rl := NewFixedWindowRateLimiter(2, time.Second)
	defer rl.Close()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("user-1")
	req.True(ok)
	ok, _ = rl.Allow("user-1")
	req.True(ok)
	ok, wait := rl.Allow("user-1")
	req.False(ok)
	req.Equal(time.Second, wait)

	ok, _ = rl.Allow("user-2")
	req.True(ok)

	// When the window rolls over
	now = now.Add(time.Second)
	ok, _ = rl.Allow("user-1")
	req.True(ok)

	rl.Forget("user-1")
	rl.cleanup()
	req.NotContains(rl.windows, "user-1")
}

func TestFixedWindow_ZeroLimitDisables(t *testing.T) {
	rl := NewFixedWindowRateLimiter(0, time.Second)
	defer rl.Close()

	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow("x")
		require.True(t, ok)
	}
}
