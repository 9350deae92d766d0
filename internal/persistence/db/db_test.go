package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestOpenBadger_InMemory(t *testing.T) {
	req := require.New(t)

	bdb, err := OpenBadger("")
	req.NoError(err)
	req.True(bdb.Opts().InMemory)
	req.NoError(bdb.Close())
}

func TestOpenBadger_OnDisk(t *testing.T) {
	req := require.New(t)

	bdb, err := OpenBadger(t.TempDir())
	req.NoError(err)
	req.NoError(bdb.Close())
}

func TestNewRedisClient(t *testing.T) {
	req := require.New(t)
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	req.NoError(err)
	defer client.Close()

	// a stopped server fails the startup ping
	mr.Close()
	_, err = NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	req.ErrorContains(err, "failed to ping redis")
}

func TestNewMongo_RequiresURI(t *testing.T) {
	_, err := NewMongo(context.Background(), MongoConfig{}, nil)
	require.ErrorContains(t, err, "URI is required")
}
