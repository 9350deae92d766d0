package messaging

import "github.com/hilthontt/quadchat/internal/domain"

// RoomEventData is the payload carried in AmqpMessage.Data.
type RoomEventData struct {
	Event domain.RoomEvent `json:"event"`
}
