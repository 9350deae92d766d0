package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Server to client frame types.
const (
	FrameRoomState       = "room-state"
	FrameUserJoined      = "user-joined"
	FrameUserLeft        = "user-left"
	FrameMessageReceived = "message-received"
	FrameRoomFull        = "room-full"
	FrameError           = "error"
)

type Frame struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode"`
	Data     json.RawMessage `json:"data"`
}

// Decode unmarshals the frame payload, e.g. into MessageFrame for
// message-received.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

type MemberFrame struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

type MessageFrame struct {
	ID             string `json:"id"`
	AuthorID       string `json:"authorId"`
	AuthorNickname string `json:"authorNickname"`
	Body           string `json:"body"`
	SentAt         string `json:"sentAt"`
}

type RoomStateFrame struct {
	UserID      string         `json:"userId"`
	Members     []MemberFrame  `json:"members"`
	MemberCount int            `json:"memberCount"`
	Messages    []MessageFrame `json:"messages"`
	Version     uint64         `json:"version"`
}

type MembershipFrame struct {
	Member      MemberFrame   `json:"member"`
	Members     []MemberFrame `json:"members"`
	MemberCount int           `json:"memberCount"`
}

type ErrorFrame struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

func (e *ErrorFrame) Error() string {
	return fmt.Sprintf("quadchat: %s: %s", e.Code, e.Message)
}

type clientFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// RoomSocket is a joined WebSocket session. The server leaves the room for the
// member when the last socket of that member closes.
type RoomSocket struct {
	conn  *websocket.Conn
	State RoomStateFrame

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
	handler func(Frame)
}

// Connect joins code over a WebSocket. It returns ErrRoomFull for a full room
// and an *ErrorFrame for any other rejection.
func (s *RoomService) Connect(ctx context.Context, code string, params JoinParams) (*RoomSocket, error) {
	if code == "" {
		return nil, ErrMissingRoomCode
	}

	c := s.client
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + roomPath(code, "ws")

	query := url.Values{}
	if params.Nickname != "" {
		query.Set("nickname", params.Nickname)
	}
	if params.UserID != "" {
		query.Set("userId", params.UserID)
	}
	u.RawQuery = query.Encode()

	header := http.Header{}
	if c.cfg.memberToken != "" {
		header.Set(memberTokenHeader, c.cfg.memberToken)
	}

	conn, _, err := c.cfg.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("quadchat: failed to connect websocket: %w", err)
	}

	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("quadchat: failed to read room state: %w", err)
	}

	switch first.Type {
	case FrameRoomState:
		sock := &RoomSocket{conn: conn}
		if err := first.Decode(&sock.State); err != nil {
			conn.Close()
			return nil, fmt.Errorf("quadchat: failed to decode room state: %w", err)
		}
		return sock, nil
	case FrameRoomFull:
		conn.Close()
		return nil, ErrRoomFull
	case FrameError:
		conn.Close()
		var frame ErrorFrame
		if err := first.Decode(&frame); err != nil {
			return nil, fmt.Errorf("quadchat: failed to decode error frame: %w", err)
		}
		return nil, &frame
	default:
		conn.Close()
		return nil, fmt.Errorf("quadchat: unexpected first frame %q", first.Type)
	}
}

func (rs *RoomSocket) SetFrameHandler(handler func(Frame)) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.handler = handler
}

// Listen delivers frames to the handler until the socket or ctx closes. A
// normal close by the server returns nil.
func (rs *RoomSocket) Listen(ctx context.Context) error {
	defer rs.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rs.Close()
		case <-done:
		}
	}()

	for {
		var frame Frame
		if err := rs.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("quadchat: websocket read error: %w", err)
		}

		rs.mu.RLock()
		handler := rs.handler
		rs.mu.RUnlock()

		if handler != nil {
			handler(frame)
		}
	}
}

// Next reads one frame. Do not mix it with Listen.
func (rs *RoomSocket) Next() (Frame, error) {
	var frame Frame
	err := rs.conn.ReadJSON(&frame)
	return frame, err
}

// Send posts a message. Delivery is confirmed by the message-received echo.
func (rs *RoomSocket) Send(body string) error {
	return rs.write(clientFrame{Type: "send-message", Message: body})
}

// Leave asks the server to remove the member; the server then closes the socket.
func (rs *RoomSocket) Leave() error {
	return rs.write(clientFrame{Type: "leave"})
}

func (rs *RoomSocket) write(frame clientFrame) error {
	rs.mu.RLock()
	closed := rs.closed
	rs.mu.RUnlock()
	if closed {
		return errors.New("quadchat: websocket connection is closed")
	}

	rs.writeMu.Lock()
	defer rs.writeMu.Unlock()
	return rs.conn.WriteJSON(frame)
}

func (rs *RoomSocket) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return nil
	}
	rs.closed = true
	return rs.conn.Close()
}
