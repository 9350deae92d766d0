package domain

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type AuditEventType string

const (
	AuditRoomDeleted  AuditEventType = "room_deleted"
	AuditMemberJoined AuditEventType = "member_joined"
	AuditMemberLeft   AuditEventType = "member_left"
	AuditMessageSent  AuditEventType = "message_sent"
	AuditRoomFull     AuditEventType = "room_full_rejected"
)

// RoomAuditLog is one entry of the room activity trail. Message bodies are
// never copied into it.
type RoomAuditLog struct {
	ID        string         `bson:"_id" json:"id"`
	RoomCode  string         `bson:"room_code" json:"roomCode"`
	EventType AuditEventType `bson:"event_type" json:"eventType"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

type RoomAuditRepository interface {
	Log(ctx context.Context, log *RoomAuditLog) error
	GetByRoomCode(ctx context.Context, roomCode string, limit int) ([]RoomAuditLog, error)
	GetByEventType(ctx context.Context, eventType AuditEventType, from, to time.Time) ([]RoomAuditLog, error)
	DeleteOlderThan(ctx context.Context, before time.Time) error
	EnsureIndexes(ctx context.Context) error
}

func newAuditLog(roomCode string, eventType AuditEventType, at time.Time, metadata map[string]any) *RoomAuditLog {
	return &RoomAuditLog{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		EventType: eventType,
		Timestamp: at,
		Metadata:  metadata,
	}
}

func NewRoomDeletedLog(roomCode, reason string, at time.Time) *RoomAuditLog {
	return newAuditLog(roomCode, AuditRoomDeleted, at, map[string]any{
		"reason": reason,
	})
}

func NewMemberJoinedLog(roomCode, userID string, memberCount int, at time.Time) *RoomAuditLog {
	return newAuditLog(roomCode, AuditMemberJoined, at, map[string]any{
		"user_id":      userID,
		"member_count": memberCount,
	})
}

func NewMemberLeftLog(roomCode, userID string, memberCount int, at time.Time) *RoomAuditLog {
	return newAuditLog(roomCode, AuditMemberLeft, at, map[string]any{
		"user_id":      userID,
		"member_count": memberCount,
	})
}

func NewMessageSentLog(roomCode string, msg Message) *RoomAuditLog {
	return newAuditLog(roomCode, AuditMessageSent, msg.SentAt, map[string]any{
		"message_id": msg.ID,
		"author_id":  msg.AuthorID,
		"length":     utf8.RuneCountInString(msg.Body),
	})
}

func NewRoomFullRejectionLog(roomCode string, memberCount int, at time.Time) *RoomAuditLog {
	return newAuditLog(roomCode, AuditRoomFull, at, map[string]any{
		"member_count": memberCount,
	})
}

// AuditLogsFor derives the audit entries for a room event. A departure that
// closed the room yields both a member_left and a room_deleted entry.
func AuditLogsFor(event RoomEvent) []*RoomAuditLog {
	switch event.Type {
	case EventUserJoined:
		return []*RoomAuditLog{NewMemberJoinedLog(event.RoomCode, memberID(event), event.MemberCount(), event.OccurredAt)}
	case EventUserLeft:
		logs := []*RoomAuditLog{NewMemberLeftLog(event.RoomCode, memberID(event), event.MemberCount(), event.OccurredAt)}
		if event.RoomClosed {
			logs = append(logs, NewRoomDeletedLog(event.RoomCode, "last_member_left", event.OccurredAt))
		}
		return logs
	case EventMessageReceived:
		if event.Message == nil {
			return nil
		}
		return []*RoomAuditLog{NewMessageSentLog(event.RoomCode, *event.Message)}
	case EventJoinRejected:
		return []*RoomAuditLog{NewRoomFullRejectionLog(event.RoomCode, event.MemberCount(), event.OccurredAt)}
	}
	return nil
}

func memberID(event RoomEvent) string {
	if event.Member == nil {
		return ""
	}
	return event.Member.ID
}
