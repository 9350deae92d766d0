package ws

// Server to client frames
const (
	RoomState       = "room-state"
	UserJoined      = "user-joined"
	UserLeft        = "user-left"
	MessageReceived = "message-received"
	RoomFull        = "room-full"
	ErrorEvent      = "error"
)

// Client to server frames
const (
	SendMessage = "send-message"
	LeaveRoom   = "leave"
)

// Error codes carried by ErrorEvent frames
const (
	CodeInvalidFrame = "INVALID_FRAME"
	CodeValidation   = "VALIDATION"
	CodeNotMember    = "NOT_MEMBER"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "UNAVAILABLE"
)
