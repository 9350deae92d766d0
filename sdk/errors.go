package sdk

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingRoomCode = errors.New("missing required room code")
	ErrMissingUserID   = errors.New("missing required user id")

	ErrRoomFull    = errors.New("room is full")
	ErrNotMember   = errors.New("not a member of this room")
	ErrRoomMissing = errors.New("room not found")
	ErrValidation  = errors.New("invalid request")
	ErrUnavailable = errors.New("room store unavailable")
)

// APIError is a non-2xx response. It matches the package sentinels with
// errors.Is.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`

	// Set on 409 room full responses.
	MemberCount int `json:"memberCount,omitempty"`
	MaxMembers  int `json:"maxMembers,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quadchat: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("quadchat: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRoomFull:
		return e.StatusCode == http.StatusConflict
	case ErrNotMember:
		return e.StatusCode == http.StatusForbidden
	case ErrRoomMissing:
		return e.StatusCode == http.StatusNotFound
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
