package messages

import "time"

type createMessageRequest struct {
	UserID  string `json:"userId,omitempty" validate:"omitempty,max=64"`
	Message string `json:"message"`
}

type createMessageResponse struct {
	ID             string    `json:"id"`
	RoomCode       string    `json:"roomCode"`
	AuthorID       string    `json:"authorId"`
	AuthorNickname string    `json:"authorNickname"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}
