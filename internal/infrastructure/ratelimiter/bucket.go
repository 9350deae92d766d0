package ratelimiter

import (
	"context"
	"errors"
	"time"
)

var ErrBucketMiss = errors.New("bucket not found")

// Bucket is the token bucket of one source. LastFill is in Unix milliseconds.
type Bucket struct {
	Tokens   int
	LastFill int64
}

// BucketStore persists buckets. A bucket is always read and written as one
// record so concurrent processes never see tokens and fill time out of step.
type BucketStore interface {
	Load(ctx context.Context, key string) (Bucket, error)
	Save(ctx context.Context, key string, b Bucket, ttl time.Duration) error
	Close() error
}
