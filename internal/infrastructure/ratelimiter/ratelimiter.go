package ratelimiter

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
)

const (
	defaultSourceKey = "X-RateLimit-Key"
	storeCallTimeout = 500 * time.Millisecond
)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Take(ctx context.Context, sourceKey string) Decision
	SourceKey(r *http.Request) string
}

// RateLimiter is a token bucket per source key. Store failures fail open.
type RateLimiter struct {
	ratePerMs       float64
	maxBurst        int
	store           BucketStore
	ttl             time.Duration
	sourceHeaderKey string
	logger          logging.Logger
	now             func() time.Time

	locks sync.Map // sourceKey -> *sync.Mutex
}

type Options struct {
	MaxRatePerSecond int
	MaxBurst         int
	Store            BucketStore
	// TTL drops buckets of idle sources.
	TTL             time.Duration
	SourceHeaderKey string
	Logger          logging.Logger
}

func New(options Options) *RateLimiter {
	if options.Store == nil {
		options.Store = NewMemoryStore(time.Minute)
	}
	if options.TTL <= 0 {
		options.TTL = 10 * time.Second
	}
	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}
	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}
	if options.Logger == nil {
		options.Logger = logging.NewNopLogger()
	}

	return &RateLimiter{
		ratePerMs:       float64(options.MaxRatePerSecond) / 1000.0,
		maxBurst:        options.MaxBurst,
		store:           options.Store,
		ttl:             options.TTL,
		sourceHeaderKey: options.SourceHeaderKey,
		logger:          options.Logger,
		now:             time.Now,
	}
}

func (rl *RateLimiter) lockFor(sourceKey string) *sync.Mutex {
	lock, _ := rl.locks.LoadOrStore(sourceKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (rl *RateLimiter) Take(ctx context.Context, sourceKey string) Decision {
	lock := rl.lockFor(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	now := rl.now().UnixMilli()
	bucket, err := rl.store.Load(ctx, sourceKey)
	switch {
	case errors.Is(err, ErrBucketMiss):
		bucket = Bucket{Tokens: rl.maxBurst, LastFill: now}
	case err != nil:
		rl.logStoreError("failed to load bucket, allowing request", sourceKey, err)
		return Decision{Allowed: true, Limit: rl.maxBurst, Remaining: rl.maxBurst}
	}

	bucket = rl.refill(bucket, now)
	decision := Decision{Limit: rl.maxBurst}
	if bucket.Tokens > 0 {
		bucket.Tokens--
		decision.Allowed = true
	} else {
		decision.RetryAfter = rl.untilNextToken(bucket, now)
	}
	decision.Remaining = bucket.Tokens

	if err := rl.store.Save(ctx, sourceKey, bucket, rl.ttl); err != nil {
		rl.logStoreError("failed to save bucket", sourceKey, err)
	}
	return decision
}

func (rl *RateLimiter) logStoreError(msg, sourceKey string, err error) {
	rl.logger.Warn(logging.Store, logging.RateLimiting, msg, map[logging.ExtraKey]any{
		logging.ClientIp:     sourceKey,
		logging.ErrorMessage: err.Error(),
	})
}

// refill only advances LastFill by the time that produced whole tokens, so
// fractional progress carries over to the next call.
func (rl *RateLimiter) refill(b Bucket, now int64) Bucket {
	elapsed := now - b.LastFill
	if elapsed <= 0 || rl.ratePerMs <= 0 {
		return b
	}

	added := int(float64(elapsed) * rl.ratePerMs)
	if added == 0 {
		return b
	}
	if b.Tokens+added >= rl.maxBurst {
		return Bucket{Tokens: rl.maxBurst, LastFill: now}
	}
	return Bucket{
		Tokens:   b.Tokens + added,
		LastFill: b.LastFill + int64(float64(added)/rl.ratePerMs),
	}
}

func (rl *RateLimiter) untilNextToken(b Bucket, now int64) time.Duration {
	if rl.ratePerMs <= 0 {
		return time.Second
	}
	perToken := int64(math.Ceil(1 / rl.ratePerMs))
	wait := b.LastFill + perToken - now
	if wait <= 0 {
		wait = 1
	}
	return time.Duration(wait) * time.Millisecond
}

// SourceKey prefers the configured header (first entry of a list) and falls
// back to the remote IP without its port.
func (rl *RateLimiter) SourceKey(r *http.Request) string {
	if key := r.Header.Get(rl.sourceHeaderKey); key != "" {
		first, _, _ := strings.Cut(key, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
