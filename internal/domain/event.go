package domain

import "time"

type RoomEventType string

const (
	EventUserJoined      RoomEventType = "user-joined"
	EventUserLeft        RoomEventType = "user-left"
	EventMessageReceived RoomEventType = "message-received"
	// EventJoinRejected concerns only the rejected joiner and is never
	// broadcast to the members of the room.
	EventJoinRejected RoomEventType = "room-full"
)

// RoomEvent is the delta produced by a successful mutating transition.
type RoomEvent struct {
	Type       RoomEventType `json:"type"`
	RoomCode   string        `json:"roomCode"`
	Member     *User         `json:"member,omitempty"`
	Members    []User        `json:"members,omitempty"`
	Message    *Message      `json:"message,omitempty"`
	RoomClosed bool          `json:"roomClosed,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

func (e RoomEvent) MemberCount() int {
	return len(e.Members)
}

// Broadcast reports whether the event goes to every member of the room.
func (e RoomEvent) Broadcast() bool {
	return e.Type != EventJoinRejected
}

func NewUserJoinedEvent(code string, member User, members []User, at time.Time) RoomEvent {
	return RoomEvent{
		Type:       EventUserJoined,
		RoomCode:   code,
		Member:     &member,
		Members:    members,
		OccurredAt: at,
	}
}

func NewUserLeftEvent(code string, member User, members []User, at time.Time) RoomEvent {
	return RoomEvent{
		Type:       EventUserLeft,
		RoomCode:   code,
		Member:     &member,
		Members:    members,
		RoomClosed: len(members) == 0,
		OccurredAt: at,
	}
}

func NewMessageReceivedEvent(code string, msg Message, at time.Time) RoomEvent {
	return RoomEvent{
		Type:       EventMessageReceived,
		RoomCode:   code,
		Message:    &msg,
		OccurredAt: at,
	}
}

func NewJoinRejectedEvent(code, nickname string, members []User, at time.Time) RoomEvent {
	return RoomEvent{
		Type:       EventJoinRejected,
		RoomCode:   code,
		Member:     &User{Nickname: nickname},
		Members:    members,
		OccurredAt: at,
	}
}
