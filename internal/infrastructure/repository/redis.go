package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "quadchat:"

// redisRoomRepository stores each room as one JSON value so that the external
// store stays the single source of truth across processes. Writes are guarded
// with WATCH/MULTI on the room key.
type redisRoomRepository struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRoomRepository(client *redis.Client, keyPrefix string) domain.RoomStore {
	if client == nil {
		panic("redis client cannot be nil for the redis room repository")
	}
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}

	return &redisRoomRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *redisRoomRepository) roomKey(code string) string {
	return fmt.Sprintf("%sroom:%s", r.keyPrefix, code)
}

func (r *redisRoomRepository) Get(ctx context.Context, code string) (*domain.Room, error) {
	room, err := r.load(ctx, r.client, code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (r *redisRoomRepository) Put(ctx context.Context, room *domain.Room, ttl time.Duration) error {
	key := r.roomKey(room.Code)

	next := room.Clone()
	next.Version = room.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("redis: failed to encode room %s: %w", room.Code, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, room.Code)
		if err != nil {
			return err
		}
		if versionOf(stored) != room.Version {
			return domain.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl > 0 {
				pipe.Set(ctx, key, data, ttl)
			} else {
				pipe.Set(ctx, key, data, redis.KeepTTL)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return r.mapTxError(room.Code, "put", err)
	}

	room.Version = next.Version
	return nil
}

func (r *redisRoomRepository) Delete(ctx context.Context, code string, version uint64) error {
	key := r.roomKey(code)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, code)
		if err != nil {
			return err
		}
		if stored == nil {
			return nil
		}
		if stored.Version != version {
			return domain.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return r.mapTxError(code, "delete", err)
	}
	return nil
}

func (r *redisRoomRepository) Close() error {
	return r.client.Close()
}

// load returns nil, nil when the key does not exist.
func (r *redisRoomRepository) load(ctx context.Context, c redis.Cmdable, code string) (*domain.Room, error) {
	data, err := c.Get(ctx, r.roomKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: failed to get room %s: %w", code, err)
	}

	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("redis: failed to decode room %s: %w", code, err)
	}
	return &room, nil
}

func (r *redisRoomRepository) mapTxError(code, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, redis.TxFailedErr):
		return domain.ErrVersionConflict
	default:
		return fmt.Errorf("redis: failed to %s room %s: %w", op, code, err)
	}
}

func versionOf(room *domain.Room) uint64 {
	if room == nil {
		return 0
	}
	return room.Version
}
