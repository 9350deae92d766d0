package rooms

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/json"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/ws"
	"github.com/hilthontt/quadchat/internal/presentation/utils"
)

const sessionOpTimeout = 5 * time.Second

// WebSocketHandler joins the room on behalf of the caller and keeps a push
// session open. A full room gets a room-full frame and the socket is closed.
func (h *Handler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	code, err := domain.NormalizeRoomCode(chi.URLParam(r, "roomCode"))
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	query := r.URL.Query()
	nickname := query.Get("nickname")
	userID := utils.GetMemberToken(r, query.Get("userId"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.WebSocket, logging.Connect, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.RoomCode:     code,
			logging.ErrorMessage: err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	result, err := h.service.Join(ctx, code, nickname, userID)
	cancel()
	if err != nil {
		cl := ws.NewClient(conn, code, "", nickname, h.logger)
		cl.Enqueue(joinFailureFrame(code, err))
		cl.Close()
		// flushes the frame, sends a close frame and releases conn
		cl.WriteMessage()
		return
	}

	// Register before taking the snapshot: anything that lands after the join
	// is either in room-state or queued behind it, never lost.
	cl := ws.NewClient(conn, code, result.Member.ID, result.Member.Nickname, h.logger)
	h.core.Register(cl)
	cl.Greet(ws.NewRoomState(result.Member.ID, h.currentState(code, result.Room)))

	go cl.WriteMessage()
	go cl.ReadMessage(&session{handler: h})

	h.logger.Info(logging.WebSocket, logging.Connect, "member connected", map[logging.ExtraKey]any{
		logging.RoomCode:     code,
		logging.UserID:       result.Member.ID,
		logging.ConnectionID: cl.ID,
	})
}

// currentState re-reads the room, falling back to the join snapshot when the
// store cannot answer.
func (h *Handler) currentState(code string, joined domain.Snapshot) domain.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	snap, err := h.service.Read(ctx, code)
	if err != nil || snap.Version < joined.Version {
		return joined
	}
	return snap
}

func joinFailureFrame(code string, err error) *ws.WSMessage {
	switch {
	case errors.Is(err, domain.ErrRoomFull):
		return ws.NewRoomFull(code, domain.MaxMembers)
	case errors.Is(err, domain.ErrValidation):
		return ws.NewError(code, ws.CodeValidation, err.Error(), false)
	case domain.IsTransient(err):
		return ws.NewError(code, ws.CodeUnavailable, "room store is temporarily unavailable", true)
	default:
		return ws.NewError(code, ws.CodeUnavailable, "failed to join room", false)
	}
}

// session routes frames from one connection to the chat service.
type session struct {
	handler *Handler
}

func (s *session) OnFrame(cl *ws.Client, frame ws.ClientFrame) {
	switch frame.Type {
	case ws.SendMessage:
		s.send(cl, frame.Message)
	case ws.LeaveRoom:
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()
		if _, err := s.handler.service.Leave(ctx, cl.RoomCode, cl.UserID); err != nil {
			cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeUnavailable, "failed to leave room", true))
			return
		}
		cl.Close()
	default:
		cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeInvalidFrame, "unknown frame type", false))
	}
}

func (s *session) send(cl *ws.Client, body string) {
	if s.handler.throttle != nil {
		if ok, wait := s.handler.throttle.Allow(throttleKey(cl)); !ok {
			cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeRateLimited,
				"slow down, retry in "+wait.Round(time.Millisecond).String(), true))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	_, err := s.handler.service.Send(ctx, cl.RoomCode, cl.UserID, body)
	switch {
	case err == nil:
		// the sender sees its own message through the room broadcast
	case errors.Is(err, domain.ErrValidation):
		cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeValidation, err.Error(), false))
	case errors.Is(err, domain.ErrNotMember):
		// membership ended elsewhere, e.g. a leave over HTTP
		cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeNotMember, "you are no longer a member of this room", false))
		cl.Close()
	default:
		cl.Enqueue(ws.NewError(cl.RoomCode, ws.CodeUnavailable, "message was not delivered", domain.IsTransient(err)))
	}
}

// OnClose leaves the room unless the member still has another connection open.
func (s *session) OnClose(cl *ws.Client) {
	if s.handler.core.Unregister(cl) {
		return
	}
	if s.handler.throttle != nil {
		s.handler.throttle.Forget(throttleKey(cl))
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
	defer cancel()

	if _, err := s.handler.service.Leave(ctx, cl.RoomCode, cl.UserID); err != nil {
		s.handler.logger.Warn(logging.WebSocket, logging.Disconnect, "failed to leave room on disconnect", map[logging.ExtraKey]any{
			logging.RoomCode:     cl.RoomCode,
			logging.UserID:       cl.UserID,
			logging.ErrorMessage: err.Error(),
		})
	}
}

func throttleKey(cl *ws.Client) string {
	return cl.RoomCode + ":" + cl.UserID
}

