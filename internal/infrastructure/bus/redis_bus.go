package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix  = "quadchat:room:"
	publishTimeout = time.Second
)

// Sink receives events read from the bus; the local ws.Core is one.
type Sink interface {
	Notify(ctx context.Context, event domain.RoomEvent)
}

// RedisBus relays room events between processes that share the Redis store,
// so a change made through any process reaches every process's connections.
type RedisBus struct {
	rdb    *redis.Client
	logger logging.Logger
}

func NewRedisBus(rdb *redis.Client, logger logging.Logger) *RedisBus {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RedisBus{rdb: rdb, logger: logger}
}

// Notify publishes the event on its room channel. Join rejections stay local.
func (b *RedisBus) Notify(ctx context.Context, event domain.RoomEvent) {
	if !event.Broadcast() {
		return
	}

	raw, err := json.Marshal(event)
	if err != nil {
		b.logger.Error(logging.Redis, logging.Publish, "failed to encode room event", map[logging.ExtraKey]any{
			logging.RoomCode:     event.RoomCode,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, channel(event.RoomCode), raw).Err(); err != nil {
		b.logger.Warn(logging.Redis, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
			logging.RoomCode:     event.RoomCode,
			logging.EventType:    string(event.Type),
			logging.ErrorMessage: err.Error(),
		})
	}
}

// Subscribe listens to all room channels and hands each event to sink until
// ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, sink Sink) error {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis bus: failed to subscribe: %w", err)
	}

	b.logger.Info(logging.Redis, logging.Consume, "subscribed to room channels", nil)
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event domain.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil || event.RoomCode == "" {
				b.logger.Warn(logging.Redis, logging.Consume, "dropping malformed bus message", map[logging.ExtraKey]any{
					"channel": msg.Channel,
				})
				continue
			}
			sink.Notify(ctx, event)
		}
	}
}

// channel namespacing for room pub/sub
func channel(roomCode string) string { return channelPrefix + roomCode }
