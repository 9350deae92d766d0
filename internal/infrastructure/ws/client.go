package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 32 * 1024
	sendBufferSize = 64
)

// SessionHandler reacts to frames read from a client and to its disconnect.
type SessionHandler interface {
	OnFrame(cl *Client, frame ClientFrame)
	OnClose(cl *Client)
}

// Client is one WebSocket connection bound to one member of one room. ID is the
// connection id, distinct from the member's UserID.
type Client struct {
	conn     *connWrapper
	send     chan *WSMessage
	greeting *WSMessage
	ID       string `json:"id"`
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`

	// Protection against double-close and race conditions
	closeOnce sync.Once
	closed    chan struct{}
	logger    logging.Logger
}

func NewClient(conn *websocket.Conn, roomCode, userID, nickname string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	id := uuid.NewString()
	return &Client{
		conn:     newConnWrapper(conn),
		send:     make(chan *WSMessage, sendBufferSize),
		ID:       id,
		RoomCode: roomCode,
		UserID:   userID,
		Nickname: nickname,
		closed:   make(chan struct{}),
		logger: logger.With(map[logging.ExtraKey]any{
			logging.ConnectionID: id,
			logging.RoomCode:     roomCode,
			logging.UserID:       userID,
		}),
	}
}

// Enqueue hands msg to the write loop without blocking. It returns false when
// the buffer is full or the client is closed.
func (c *Client) Enqueue(msg *WSMessage) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Greet sets the frame written ahead of everything already queued. It must be
// called before WriteMessage starts.
func (c *Client) Greet(msg *WSMessage) {
	c.greeting = msg
}

// Close asks the write loop to flush, send a close frame and release the
// connection. It is safe to call from any goroutine, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ReadMessage blocks until the connection ends, passing every decoded frame to
// handler. handler.OnClose runs exactly once on the way out.
func (c *Client) ReadMessage(handler SessionHandler) {
	defer func() {
		handler.OnClose(c)
		c.Close()
	}()

	c.conn.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn(logging.WebSocket, logging.Disconnect, "ws read error", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
			return
		}

		if len(raw) == 0 {
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.Enqueue(NewError(c.RoomCode, CodeInvalidFrame, "frame must be a JSON object with a type", false))
			continue
		}

		handler.OnFrame(c, frame)
		if c.IsClosed() {
			return
		}
	}
}

// WriteMessage drains the send buffer and keeps the connection alive with
// pings. It returns when the client is closed, so no ticker outlives it.
func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	if c.greeting != nil {
		if err := c.conn.WriteJSON(c.greeting); err != nil {
			return
		}
	}

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn(logging.WebSocket, logging.Broadcast, "ws write error", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
				return
			}

		case <-ticker.C:
			if err := c.conn.WritePing(); err != nil {
				return
			}

		case <-c.closed:
			c.flush()
			_ = c.conn.WriteClose()
			return
		}
	}
}

// flush writes frames still buffered at close time, such as a final user-left.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
