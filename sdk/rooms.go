package sdk

import (
	"context"
	"net/http"
)

type RoomService struct {
	client *Client
}

// Create makes an empty room and returns its code.
func (s *RoomService) Create(ctx context.Context) (string, error) {
	var res createRoomResponse
	if err := s.client.execute(ctx, http.MethodPost, "/api/rooms", struct{}{}, &res); err != nil {
		return "", err
	}
	return res.RoomCode, nil
}

func (s *RoomService) Get(ctx context.Context, code string) (*Room, error) {
	if code == "" {
		return nil, ErrMissingRoomCode
	}

	var room Room
	if err := s.client.execute(ctx, http.MethodGet, roomPath(code), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Join returns ErrRoomFull (via errors.Is) when four other users are present.
func (s *RoomService) Join(ctx context.Context, code string, params JoinParams) (*JoinResult, error) {
	if code == "" {
		return nil, ErrMissingRoomCode
	}

	var res JoinResult
	if err := s.client.execute(ctx, http.MethodPost, roomPath(code, "join"), params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Leave is idempotent on the server; leaving twice is not an error.
func (s *RoomService) Leave(ctx context.Context, code, userID string) error {
	if code == "" {
		return ErrMissingRoomCode
	}
	return s.client.execute(ctx, http.MethodPost, roomPath(code, "leave"), leaveParams{UserID: userID}, nil)
}

func (s *RoomService) Send(ctx context.Context, code, userID, body string) (*Message, error) {
	if code == "" {
		return nil, ErrMissingRoomCode
	}
	if userID == "" && s.client.cfg.memberToken == "" {
		return nil, ErrMissingUserID
	}

	var msg Message
	if err := s.client.execute(ctx, http.MethodPost, roomPath(code, "messages"), sendParams{UserID: userID, Message: body}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
