package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/contracts"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/messaging"
)

const publishTimeout = 2 * time.Second

type MessagePublisher interface {
	PublishMessage(ctx context.Context, routingKey string, msg contracts.AmqpMessage) error
}

// RoomPublisher forwards room events to the message broker. It is a
// chat.Notifier; failures are logged and never reach the caller.
type RoomPublisher struct {
	publisher MessagePublisher
	logger    logging.Logger
}

func NewRoomPublisher(publisher MessagePublisher, logger logging.Logger) *RoomPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RoomPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *RoomPublisher) Notify(ctx context.Context, event domain.RoomEvent) {
	keys := contracts.RoutingKeysFor(event)
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	for _, key := range keys {
		if err := p.publish(ctx, key, event); err != nil {
			p.logger.Warn(logging.RabbitMQ, logging.Publish, "failed to publish room event", map[logging.ExtraKey]any{
				logging.RoomCode:     event.RoomCode,
				logging.EventType:    key,
				logging.ErrorMessage: err.Error(),
			})
		}
	}
}

func (p *RoomPublisher) publish(ctx context.Context, routingKey string, event domain.RoomEvent) error {
	payload := messaging.RoomEventData{
		Event: event,
	}

	roomEventJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.publisher.PublishMessage(ctx, routingKey, contracts.AmqpMessage{
		RoomCode: event.RoomCode,
		Data:     roomEventJSON,
	})
}
