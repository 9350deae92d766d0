package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
)

type memoryEntry struct {
	room      *domain.Room
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// roomRepository keeps rooms in process memory. It is the single-process store;
// expired rooms are hidden immediately and reclaimed by a janitor goroutine.
type roomRepository struct {
	rooms     map[string]memoryEntry // code -> entry
	mu        *sync.RWMutex
	stopClean chan struct{}
	cleanOnce sync.Once
	now       func() time.Time
}

func NewRoomRepository(cleanupInterval time.Duration) domain.RoomStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	r := &roomRepository{
		rooms:     make(map[string]memoryEntry),
		mu:        &sync.RWMutex{},
		stopClean: make(chan struct{}),
		now:       time.Now,
	}

	go r.cleanupExpired(cleanupInterval)

	return r
}

func (r *roomRepository) Get(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.rooms[code]
	if !exists || entry.expired(r.now()) {
		return nil, domain.ErrRoomNotFound
	}

	// Return a copy to prevent external mutation
	return entry.room.Clone(), nil
}

func (r *roomRepository) Put(ctx context.Context, room *domain.Room, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.currentVersion(room.Code, now) != room.Version {
		return domain.ErrVersionConflict
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	room.Version++
	r.rooms[room.Code] = memoryEntry{
		room:      room.Clone(),
		expiresAt: expiresAt,
	}

	return nil
}

func (r *roomRepository) Delete(ctx context.Context, code string, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if _, exists := r.rooms[code]; !exists {
		return nil // idempotent: already gone
	}
	if r.currentVersion(code, now) != version {
		return domain.ErrVersionConflict
	}

	delete(r.rooms, code)
	return nil
}

// currentVersion treats absent and expired entries as version 0. Caller holds mu.
func (r *roomRepository) currentVersion(code string, now time.Time) uint64 {
	entry, exists := r.rooms[code]
	if !exists || entry.expired(now) {
		return 0
	}
	return entry.room.Version
}

func (r *roomRepository) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.removeExpired()
		case <-r.stopClean:
			return
		}
	}
}

func (r *roomRepository) removeExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for code, entry := range r.rooms {
		if entry.expired(now) {
			delete(r.rooms, code)
		}
	}
}

func (r *roomRepository) Close() error {
	r.cleanOnce.Do(func() {
		close(r.stopClean)
	})
	return nil
}
