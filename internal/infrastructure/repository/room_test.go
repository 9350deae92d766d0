package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newBadgerStore(t *testing.T) domain.RoomStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	store := NewBadgerRoomRepository(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRedisStore(t *testing.T) (domain.RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisRoomRepository(client, "test:")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func newMemoryStore(t *testing.T) domain.RoomStore {
	t.Helper()
	store := NewRoomRepository(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storeFactories() map[string]func(t *testing.T) domain.RoomStore {
	return map[string]func(t *testing.T) domain.RoomStore{
		"memory": newMemoryStore,
		"redis": func(t *testing.T) domain.RoomStore {
			store, _ := newRedisStore(t)
			return store
		},
		"badger": newBadgerStore,
	}
}

func roomWithMember(t *testing.T, code, nickname string) *domain.Room {
	t.Helper()
	room := domain.NewRoom(code)
	_, _, err := room.Join(domain.NewUserID(), nickname, time.Now())
	require.NoError(t, err)
	return room
}

func TestRoomStore_GetMissingRoom(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			_, err := store.Get(context.Background(), "NOPE")

			require.ErrorIs(t, err, domain.ErrRoomNotFound)
		})
	}
}

func TestRoomStore_PutThenGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			// Given a fresh room written at version 0
			room := roomWithMember(t, "ABC123", "alice")
			req.NoError(store.Put(ctx, room, time.Hour))

			// Then the caller's version is bumped and the stored copy matches
			req.Equal(uint64(1), room.Version)
			got, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			req.Equal(uint64(1), got.Version)
			req.Equal(room.Members[0].ID, got.Members[0].ID)
			req.Equal("alice", got.Members[0].Nickname)
		})
	}
}

func TestRoomStore_PutRejectsStaleVersion(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			room := roomWithMember(t, "ABC123", "alice")
			req.NoError(store.Put(ctx, room, time.Hour))

			// Two writers load the same version
			first, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			second, err := store.Get(ctx, "ABC123")
			req.NoError(err)

			_, _, err = first.Join(domain.NewUserID(), "bob", time.Now())
			req.NoError(err)
			req.NoError(store.Put(ctx, first, time.Hour))

			// When the second writer persists its stale copy
			_, _, err = second.Join(domain.NewUserID(), "carol", time.Now())
			req.NoError(err)
			err = store.Put(ctx, second, time.Hour)

			// Then it is rejected and the first write survives
			req.ErrorIs(err, domain.ErrVersionConflict)
			req.Equal(uint64(1), second.Version)
			got, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			req.Len(got.Members, 2)
			req.Equal("bob", got.Members[1].Nickname)
		})
	}
}

func TestRoomStore_CreateRaceOnAbsentRoom(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "alice"), time.Hour))

			err := store.Put(ctx, roomWithMember(t, "ABC123", "bob"), time.Hour)
			req.ErrorIs(err, domain.ErrVersionConflict)
		})
	}
}

func TestRoomStore_Delete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			room := roomWithMember(t, "ABC123", "alice")
			req.NoError(store.Put(ctx, room, time.Hour))

			// A stale delete is rejected
			req.ErrorIs(store.Delete(ctx, "ABC123", 0), domain.ErrVersionConflict)

			req.NoError(store.Delete(ctx, "ABC123", room.Version))
			_, err := store.Get(ctx, "ABC123")
			req.ErrorIs(err, domain.ErrRoomNotFound)

			// Deleting an absent room is not an error
			req.NoError(store.Delete(ctx, "ABC123", room.Version))
		})
	}
}

func TestRoomStore_RecreateAfterDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			room := roomWithMember(t, "ABC123", "alice")
			req.NoError(store.Put(ctx, room, time.Hour))
			req.NoError(store.Delete(ctx, "ABC123", room.Version))

			fresh := roomWithMember(t, "ABC123", "bob")
			req.NoError(store.Put(ctx, fresh, time.Hour))

			got, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			req.Len(got.Members, 1)
			req.Equal("bob", got.Members[0].Nickname)
		})
	}
}

func TestRoomStore_GetReturnsIndependentCopy(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "alice"), time.Hour))

			got, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			got.Members[0].Nickname = "mallory"

			again, err := store.Get(ctx, "ABC123")
			req.NoError(err)
			req.Equal("alice", again.Members[0].Nickname)
		})
	}
}

func TestMemoryRoomRepository_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewRoomRepository(time.Hour).(*roomRepository)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }

	room := roomWithMember(t, "ABC123", "alice")
	req.NoError(store.Put(ctx, room, domain.RetentionWindow))

	// When the retention window elapses
	now = now.Add(domain.RetentionWindow + time.Second)

	// Then the room is gone and can be recreated from version 0
	_, err := store.Get(ctx, "ABC123")
	req.ErrorIs(err, domain.ErrRoomNotFound)
	req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "bob"), domain.RetentionWindow))

	store.removeExpired()
	req.Len(store.rooms, 1)
}

func TestMemoryRoomRepository_JanitorReclaimsExpired(t *testing.T) {
	req := require.New(t)
	store := NewRoomRepository(time.Hour).(*roomRepository)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }
	req.NoError(store.Put(context.Background(), roomWithMember(t, "ABC123", "alice"), time.Minute))

	now = now.Add(2 * time.Minute)
	store.removeExpired()

	req.Empty(store.rooms)
}

func TestRedisRoomRepository_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, mr := newRedisStore(t)

	req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "alice"), domain.RetentionWindow))
	req.True(mr.Exists("test:room:ABC123"))
	req.Equal(domain.RetentionWindow, mr.TTL("test:room:ABC123"))

	mr.FastForward(domain.RetentionWindow + time.Second)

	_, err := store.Get(ctx, "ABC123")
	req.ErrorIs(err, domain.ErrRoomNotFound)
}

func TestRedisRoomRepository_WriteRefreshesTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, mr := newRedisStore(t)

	room := roomWithMember(t, "ABC123", "alice")
	req.NoError(store.Put(ctx, room, domain.RetentionWindow))
	mr.FastForward(time.Hour)

	_, err := room.PostMessage(room.Members[0].ID, "hi", time.Now())
	req.NoError(err)
	req.NoError(store.Put(ctx, room, domain.RetentionWindow))

	req.Equal(domain.RetentionWindow, mr.TTL("test:room:ABC123"))
}

func TestBadgerRoomRepository_EntryCarriesTTL(t *testing.T) {
	req := require.New(t)
	store := newBadgerStore(t).(*badgerRoomRepository)

	before := time.Now()
	req.NoError(store.Put(context.Background(), roomWithMember(t, "ABC123", "alice"), domain.RetentionWindow))

	var expiresAt uint64
	req.NoError(store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerRoomKey("ABC123"))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	}))
	req.InDelta(before.Add(domain.RetentionWindow).Unix(), int64(expiresAt), 2)
}

func TestBadgerRoomRepository_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newBadgerStore(t)

	req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "alice"), time.Second))

	// Badger expiry has one-second resolution
	req.Eventually(func() bool {
		_, err := store.Get(ctx, "ABC123")
		return errors.Is(err, domain.ErrRoomNotFound)
	}, 4*time.Second, 100*time.Millisecond)

	// Then the room can be recreated from version 0
	req.NoError(store.Put(ctx, roomWithMember(t, "ABC123", "bob"), time.Minute))
	got, err := store.Get(ctx, "ABC123")
	req.NoError(err)
	req.Equal("bob", got.Members[0].Nickname)
}

func TestRedisRoomRepository_UnavailableServer(t *testing.T) {
	req := require.New(t)
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "ABC123")

	req.Error(err)
	req.NotErrorIs(err, domain.ErrRoomNotFound)
}
