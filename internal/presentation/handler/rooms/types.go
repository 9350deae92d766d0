package rooms

import (
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/samber/lo"
)

type joinRoomRequest struct {
	Nickname string `json:"nickname" validate:"max=64"`
	UserID   string `json:"userId,omitempty" validate:"omitempty,max=64"`
}

type leaveRoomRequest struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=64"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
}

type memberResponse struct {
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"authorId"`
	AuthorNickname string    `json:"authorNickname"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

type roomResponse struct {
	RoomCode    string            `json:"roomCode"`
	Members     []memberResponse  `json:"members"`
	MemberCount int               `json:"memberCount"`
	Messages    []messageResponse `json:"messages"`
	Version     uint64            `json:"version"`
}

type joinRoomResponse struct {
	UserID      string           `json:"userId"`
	Nickname    string           `json:"nickname"`
	RoomCode    string           `json:"roomCode"`
	Joined      bool             `json:"joined"`
	Members     []memberResponse `json:"members"`
	MemberCount int              `json:"memberCount"`
}

type roomFullResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	MemberCount int    `json:"memberCount"`
	MaxMembers  int    `json:"maxMembers"`
}

func toMemberResponses(users []domain.User) []memberResponse {
	return lo.Map(users, func(u domain.User, _ int) memberResponse {
		return memberResponse{UserID: u.ID, Nickname: u.Nickname, JoinedAt: u.JoinedAt}
	})
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		AuthorID:       m.AuthorID,
		AuthorNickname: m.AuthorNickname,
		Body:           m.Body,
		SentAt:         m.SentAt,
	}
}

func toRoomResponse(snap domain.Snapshot) roomResponse {
	return roomResponse{
		RoomCode:    snap.Code,
		Members:     toMemberResponses(snap.Members),
		MemberCount: len(snap.Members),
		Messages:    lo.Map(snap.Messages, func(m domain.Message, _ int) messageResponse { return toMessageResponse(m) }),
		Version:     snap.Version,
	}
}
