package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditLogsFor(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	alice := User{ID: "u1", Nickname: "alice"}

	logs := AuditLogsFor(NewUserJoinedEvent("ABC123", alice, []User{alice}, now))
	req.Len(logs, 1)
	req.Equal(AuditMemberJoined, logs[0].EventType)
	req.Equal("u1", logs[0].Metadata["user_id"])
	req.Equal(1, logs[0].Metadata["member_count"])

	logs = AuditLogsFor(NewUserLeftEvent("ABC123", alice, []User{}, now))
	req.Len(logs, 2)
	req.Equal(AuditMemberLeft, logs[0].EventType)
	req.Equal(AuditRoomDeleted, logs[1].EventType)
	req.NotEqual(logs[0].ID, logs[1].ID)

	msg := Message{ID: "m1", AuthorID: "u1", Body: "héllo", SentAt: now}
	logs = AuditLogsFor(NewMessageReceivedEvent("ABC123", msg, now))
	req.Len(logs, 1)
	req.Equal(5, logs[0].Metadata["length"])
	req.NotContains(logs[0].Metadata, "body")

	logs = AuditLogsFor(NewJoinRejectedEvent("ABC123", "erin", []User{alice, alice, alice, alice}, now))
	req.Equal(AuditRoomFull, logs[0].EventType)
	req.Equal(4, logs[0].Metadata["member_count"])

	req.Nil(AuditLogsFor(RoomEvent{Type: "unknown"}))
}
