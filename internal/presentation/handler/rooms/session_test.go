package rooms

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/quadchat/internal/application/chat"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quadchat/internal/infrastructure/ws"
	"github.com/stretchr/testify/require"
)

// racingRooms publishes a message from another member while the connecting
// member's snapshot is being taken.
type racingRooms struct {
	core  *ws.Core
	alice domain.User
	bob   domain.User
}

func (r *racingRooms) CreateRoom(context.Context) (string, error) { return "ABC123", nil }

func (r *racingRooms) Join(_ context.Context, code, _, _ string) (*chat.JoinResult, error) {
	return &chat.JoinResult{
		Member: r.alice,
		Joined: true,
		Room:   domain.Snapshot{Code: code, Members: []domain.User{r.bob, r.alice}, Messages: []domain.Message{}, Version: 2},
	}, nil
}

func (r *racingRooms) Read(ctx context.Context, code string) (domain.Snapshot, error) {
	msg := domain.Message{ID: "m1", AuthorID: r.bob.ID, AuthorNickname: r.bob.Nickname, Body: "just in time", SentAt: time.Now()}
	r.core.Notify(ctx, domain.NewMessageReceivedEvent(code, msg, time.Now()))

	return domain.Snapshot{Code: code, Members: []domain.User{r.bob, r.alice}, Messages: []domain.Message{}, Version: 2}, nil
}

func (r *racingRooms) Send(context.Context, string, string, string) (*domain.Message, error) {
	return nil, domain.ErrNotMember
}

func (r *racingRooms) Leave(context.Context, string, string) (bool, error) { return false, nil }

func TestWebSocketHandler_MessageDuringConnectIsDelivered(t *testing.T) {
	req := require.New(t)

	core := ws.NewCore(nil, metrics.NewMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.Run(ctx)

	service := &racingRooms{
		core:  core,
		alice: domain.User{ID: "u-alice", Nickname: "alice", JoinedAt: time.Now()},
		bob:   domain.User{ID: "u-bob", Nickname: "bob", JoinedAt: time.Now()},
	}
	h := NewHandler(service, core, nil, nil, Options{AllowedOrigins: []string{"*"}})

	r := chi.NewRouter()
	r.Get("/api/rooms/{roomCode}/ws", h.WebSocketHandler)
	srv := httptest.NewServer(r)
	defer srv.Close()

	// Given bob posts while alice's connection is being set up
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/rooms/abc123/ws?nickname=alice", nil)
	req.NoError(err)
	defer conn.Close()
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))

	// Then room-state comes first
	var state ws.WSMessage
	req.NoError(conn.ReadJSON(&state))
	req.Equal(ws.RoomState, state.Type)

	// And the message follows it instead of being lost
	var frame struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	req.NoError(conn.ReadJSON(&frame))
	req.Equal(ws.MessageReceived, frame.Type)
	req.Equal("just in time", frame.Data["body"])
}
