package sdk

import "time"

type Member struct {
	UserID   string    `json:"userId"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Message struct {
	ID             string    `json:"id"`
	RoomCode       string    `json:"roomCode,omitempty"`
	AuthorID       string    `json:"authorId"`
	AuthorNickname string    `json:"authorNickname"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

type Room struct {
	RoomCode    string    `json:"roomCode"`
	Members     []Member  `json:"members"`
	MemberCount int       `json:"memberCount"`
	Messages    []Message `json:"messages"`
	Version     uint64    `json:"version"`
}

type JoinParams struct {
	Nickname string `json:"nickname"`
	// UserID rejoins as an existing member; empty joins as someone new.
	UserID string `json:"userId,omitempty"`
}

type JoinResult struct {
	UserID      string   `json:"userId"`
	Nickname    string   `json:"nickname"`
	RoomCode    string   `json:"roomCode"`
	Joined      bool     `json:"joined"`
	Members     []Member `json:"members"`
	MemberCount int      `json:"memberCount"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
}

type leaveParams struct {
	UserID string `json:"userId,omitempty"`
}

type sendParams struct {
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}
