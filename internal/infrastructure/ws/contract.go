package ws

import (
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/samber/lo"
)

type WSMessage struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
	Data     any    `json:"data"`
}

// ClientFrame is what a browser sends over the socket.
type ClientFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Payload structs
type MemberPayload struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

type MessagePayload struct {
	ID             string `json:"id"`
	AuthorID       string `json:"authorId"`
	AuthorNickname string `json:"authorNickname"`
	Body           string `json:"body"`
	SentAt         string `json:"sentAt"`
}

type RoomStatePayload struct {
	UserID      string           `json:"userId"`
	Members     []MemberPayload  `json:"members"`
	MemberCount int              `json:"memberCount"`
	Messages    []MessagePayload `json:"messages"`
	Version     uint64           `json:"version"`
}

type MembershipPayload struct {
	Member      MemberPayload   `json:"member"`
	Members     []MemberPayload `json:"members"`
	MemberCount int             `json:"memberCount"`
}

type RoomFullPayload struct {
	MemberCount int `json:"memberCount"`
	MaxMembers  int `json:"maxMembers"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

func toMemberPayload(u domain.User) MemberPayload {
	p := MemberPayload{UserID: u.ID, Nickname: u.Nickname}
	if !u.JoinedAt.IsZero() {
		p.JoinedAt = u.JoinedAt.UTC().Format(time.RFC3339)
	}
	return p
}

func toMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:             m.ID,
		AuthorID:       m.AuthorID,
		AuthorNickname: m.AuthorNickname,
		Body:           m.Body,
		SentAt:         m.SentAt.UTC().Format(time.RFC3339Nano),
	}
}

func toMemberPayloads(users []domain.User) []MemberPayload {
	return lo.Map(users, func(u domain.User, _ int) MemberPayload { return toMemberPayload(u) })
}

func NewRoomState(userID string, snap domain.Snapshot) *WSMessage {
	return &WSMessage{
		Type:     RoomState,
		RoomCode: snap.Code,
		Data: RoomStatePayload{
			UserID:      userID,
			Members:     toMemberPayloads(snap.Members),
			MemberCount: len(snap.Members),
			Messages:    lo.Map(snap.Messages, func(m domain.Message, _ int) MessagePayload { return toMessagePayload(m) }),
			Version:     snap.Version,
		},
	}
}

func NewRoomFull(roomCode string, memberCount int) *WSMessage {
	return &WSMessage{
		Type:     RoomFull,
		RoomCode: roomCode,
		Data: RoomFullPayload{
			MemberCount: memberCount,
			MaxMembers:  domain.MaxMembers,
		},
	}
}

func NewError(roomCode, code, message string, retry bool) *WSMessage {
	return &WSMessage{
		Type:     ErrorEvent,
		RoomCode: roomCode,
		Data: ErrorPayload{
			Code:    code,
			Message: message,
			Retry:   retry,
		},
	}
}

// FromEvent converts a broadcast room event to its wire frame. ok is false for
// events that are not pushed to room members.
func FromEvent(event domain.RoomEvent) (msg *WSMessage, ok bool) {
	switch event.Type {
	case domain.EventUserJoined, domain.EventUserLeft:
		typ := UserJoined
		if event.Type == domain.EventUserLeft {
			typ = UserLeft
		}
		var member MemberPayload
		if event.Member != nil {
			member = toMemberPayload(*event.Member)
		}
		members := toMemberPayloads(event.Members)
		if members == nil {
			members = []MemberPayload{}
		}
		return &WSMessage{
			Type:     typ,
			RoomCode: event.RoomCode,
			Data: MembershipPayload{
				Member:      member,
				Members:     members,
				MemberCount: event.MemberCount(),
			},
		}, true
	case domain.EventMessageReceived:
		if event.Message == nil {
			return nil, false
		}
		return &WSMessage{
			Type:     MessageReceived,
			RoomCode: event.RoomCode,
			Data:     toMessagePayload(*event.Message),
		}, true
	}
	return nil, false
}
