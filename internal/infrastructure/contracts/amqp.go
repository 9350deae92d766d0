package contracts

import "github.com/hilthontt/quadchat/internal/domain"

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	RoomCode string `json:"roomCode"`
	Data     []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventMessageSent      = "message.sent"
	EventMemberJoined     = "member.joined"
	EventMemberLeft       = "member.left"
	EventRoomDeleted      = "room.deleted"
	EventRoomFullRejected = "room.full_rejected"
)

var AllRoutingKeys = []string{
	EventMessageSent,
	EventMemberJoined,
	EventMemberLeft,
	EventRoomDeleted,
	EventRoomFullRejected,
}

// RoutingKeysFor maps a room event to the keys it is published under.
func RoutingKeysFor(event domain.RoomEvent) []string {
	switch event.Type {
	case domain.EventUserJoined:
		return []string{EventMemberJoined}
	case domain.EventUserLeft:
		if event.RoomClosed {
			return []string{EventMemberLeft, EventRoomDeleted}
		}
		return []string{EventMemberLeft}
	case domain.EventMessageReceived:
		return []string{EventMessageSent}
	case domain.EventJoinRejected:
		return []string{EventRoomFullRejected}
	}
	return nil
}
