package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	bucket    Bucket
	expiresAt time.Time
}

func (e memoryBucket) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore keeps buckets for a single process. A janitor drops idle buckets.
type MemoryStore struct {
	buckets map[string]memoryBucket
	mu      sync.Mutex
	stop    chan struct{}
	once    sync.Once
	now     func() time.Time
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &MemoryStore{
		buckets: make(map[string]memoryBucket),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go s.janitor(cleanupInterval)

	return s
}

func (s *MemoryStore) Load(_ context.Context, key string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.buckets[key]
	if !ok || entry.expired(s.now()) {
		return Bucket{}, ErrBucketMiss
	}
	return entry.bucket, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, b Bucket, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.buckets[key] = memoryBucket{bucket: b, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.buckets {
		if entry.expired(now) {
			delete(s.buckets, key)
		}
	}
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
