package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hilthontt/quadchat/internal/domain"
)

// badgerRoomRepository keeps rooms in an embedded Badger database. Conflicting
// read-modify-write transactions are rejected by Badger on commit, which maps
// onto ErrVersionConflict.
type badgerRoomRepository struct {
	db *badger.DB
}

func NewBadgerRoomRepository(db *badger.DB) domain.RoomStore {
	return &badgerRoomRepository{db: db}
}

func badgerRoomKey(code string) []byte {
	return []byte("room:" + code)
}

func (r *badgerRoomRepository) Get(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var room *domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = loadBadgerRoom(txn, code)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("badger: failed to get room %s: %w", code, err)
	}
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (r *badgerRoomRepository) Put(ctx context.Context, room *domain.Room, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := room.Clone()
	next.Version = room.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("badger: failed to encode room %s: %w", room.Code, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		stored, err := loadBadgerRoom(txn, room.Code)
		if err != nil {
			return err
		}
		if versionOf(stored) != room.Version {
			return domain.ErrVersionConflict
		}

		entry := badger.NewEntry(badgerRoomKey(room.Code), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return mapBadgerError(room.Code, "put", err)
	}

	room.Version = next.Version
	return nil
}

func (r *badgerRoomRepository) Delete(ctx context.Context, code string, version uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		stored, err := loadBadgerRoom(txn, code)
		if err != nil {
			return err
		}
		if stored == nil {
			return nil
		}
		if stored.Version != version {
			return domain.ErrVersionConflict
		}
		return txn.Delete(badgerRoomKey(code))
	})
	if err != nil {
		return mapBadgerError(code, "delete", err)
	}
	return nil
}

func (r *badgerRoomRepository) Close() error {
	return r.db.Close()
}

// loadBadgerRoom returns nil, nil for a missing or expired key.
func loadBadgerRoom(txn *badger.Txn, code string) (*domain.Room, error) {
	item, err := txn.Get(badgerRoomKey(code))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var room domain.Room
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &room)
	}); err != nil {
		return nil, err
	}
	return &room, nil
}

func mapBadgerError(code, op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, badger.ErrConflict):
		return domain.ErrVersionConflict
	default:
		return fmt.Errorf("badger: failed to %s room %s: %w", op, code, err)
	}
}
