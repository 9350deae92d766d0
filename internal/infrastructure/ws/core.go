package ws

import (
	"context"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
)

const broadcastBufferSize = 256

// Core delivers room events to the local WebSocket connections. Events are
// queued on a single channel and dispatched by Run, so every connection sees
// them in the order they were accepted.
type Core struct {
	roomMgr   *RoomManager
	broadcast chan *WSMessage
	done      chan struct{}
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewCore(logger logging.Logger, m *metrics.Metrics) *Core {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Core{
		roomMgr:   NewRoomManager(),
		broadcast: make(chan *WSMessage, broadcastBufferSize),
		done:      make(chan struct{}),
		logger:    logger,
		metrics:   m,
	}
}

// Run dispatches queued frames until ctx is cancelled, then closes every
// connection.
func (c *Core) Run(ctx context.Context) {
	defer func() {
		close(c.done)
		c.roomMgr.closeAll()
	}()

	for {
		select {
		case msg := <-c.broadcast:
			if dropped := c.roomMgr.BroadcastToRoom(msg); dropped > 0 {
				for i := 0; i < dropped; i++ {
					c.metrics.IncBroadcastDrop()
				}
				c.logger.Warn(logging.WebSocket, logging.Broadcast, "client buffer full, dropping frame", map[logging.ExtraKey]any{
					logging.RoomCode:  msg.RoomCode,
					logging.EventType: msg.Type,
				})
			}
			if msg.Type == UserLeft {
				c.disconnectMember(msg)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Core) Register(cl *Client) {
	c.roomMgr.AddClient(cl)
	c.metrics.ConnectionOpened()
	c.logger.Debug(logging.WebSocket, logging.Connect, "client registered", connFields(cl))
}

// Unregister removes cl from its room and reports whether another connection
// of the same member is still open in that room.
func (c *Core) Unregister(cl *Client) (stillConnected bool) {
	if c.roomMgr.RemoveClient(cl) {
		c.metrics.ConnectionClosed()
		c.logger.Debug(logging.WebSocket, logging.Disconnect, "client unregistered", connFields(cl))
	}
	return c.roomMgr.HasMember(cl.RoomCode, cl.UserID)
}

// disconnectMember closes every connection of the member a user-left frame is
// about. The frame is already queued, so the closing write loop still sends it.
func (c *Core) disconnectMember(msg *WSMessage) {
	payload, ok := msg.Data.(MembershipPayload)
	if !ok || payload.Member.UserID == "" {
		return
	}
	for _, cl := range c.roomMgr.RemoveMember(msg.RoomCode, payload.Member.UserID) {
		c.metrics.ConnectionClosed()
		c.logger.Debug(logging.WebSocket, logging.Disconnect, "closing connection of departed member", connFields(cl))
		cl.Close()
	}
}

func connFields(cl *Client) map[logging.ExtraKey]any {
	return map[logging.ExtraKey]any{
		logging.ConnectionID: cl.ID,
		logging.RoomCode:     cl.RoomCode,
		logging.UserID:       cl.UserID,
	}
}

// Notify queues a room event for delivery to the room's connections. Events
// that are not broadcast, such as join rejections, are ignored.
func (c *Core) Notify(ctx context.Context, event domain.RoomEvent) {
	if !event.Broadcast() {
		return
	}
	msg, ok := FromEvent(event)
	if !ok {
		return
	}

	select {
	case c.broadcast <- msg:
	case <-c.done:
	case <-ctx.Done():
		c.metrics.IncBroadcastDrop()
	}
}

func (c *Core) ConnectionCount() int {
	return c.roomMgr.ConnectionCount()
}
