package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/contracts"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/messaging"
	"github.com/rabbitmq/amqp091-go"
)

type MessageConsumer interface {
	ConsumeMessages(queueName string, handler messaging.MessageHandler) error
}

// RoomConsumer turns room events from the broker into audit log entries.
type RoomConsumer struct {
	consumer MessageConsumer
	audit    domain.RoomAuditRepository
	logger   logging.Logger
}

func NewRoomConsumer(consumer MessageConsumer, audit domain.RoomAuditRepository, logger logging.Logger) *RoomConsumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RoomConsumer{
		consumer: consumer,
		audit:    audit,
		logger:   logger,
	}
}

func (c *RoomConsumer) Listen() error {
	return c.consumer.ConsumeMessages(messaging.RoomsQueue, func(ctx context.Context, msg amqp091.Delivery) error {
		return c.Handle(ctx, msg.RoutingKey, msg.Body)
	})
}

// Handle records the audit entry for one delivery. A departure that closed
// the room arrives twice, once per routing key, and each key writes only its
// own entry.
func (c *RoomConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	var message contracts.AmqpMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	var payload messaging.RoomEventData
	if err := json.Unmarshal(message.Data, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal room event: %w", err)
	}

	entry := auditLogFor(routingKey, payload.Event)
	if entry == nil {
		c.logger.Warn(logging.RabbitMQ, logging.Consume, "ignoring unknown routing key", map[logging.ExtraKey]any{
			logging.EventType: routingKey,
			logging.RoomCode:  message.RoomCode,
		})
		return nil
	}

	if err := c.audit.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	c.logger.Debug(logging.MongoDB, logging.Consume, "audit log written", map[logging.ExtraKey]any{
		logging.RoomCode:  entry.RoomCode,
		logging.EventType: string(entry.EventType),
	})
	return nil
}

func auditLogFor(routingKey string, event domain.RoomEvent) *domain.RoomAuditLog {
	var want domain.AuditEventType
	switch routingKey {
	case contracts.EventMemberJoined:
		want = domain.AuditMemberJoined
	case contracts.EventMemberLeft:
		want = domain.AuditMemberLeft
	case contracts.EventRoomDeleted:
		want = domain.AuditRoomDeleted
	case contracts.EventMessageSent:
		want = domain.AuditMessageSent
	case contracts.EventRoomFullRejected:
		want = domain.AuditRoomFull
	default:
		return nil
	}

	for _, entry := range domain.AuditLogsFor(event) {
		if entry.EventType == want {
			return entry
		}
	}
	return nil
}
