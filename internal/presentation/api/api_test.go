package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/quadchat/internal/application/chat"
	"github.com/hilthontt/quadchat/internal/infrastructure/configs"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quadchat/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/quadchat/internal/infrastructure/registry"
	"github.com/hilthontt/quadchat/internal/infrastructure/repository"
	"github.com/hilthontt/quadchat/internal/infrastructure/ws"
	healthHandler "github.com/hilthontt/quadchat/internal/presentation/handler/health"
	messagesHandler "github.com/hilthontt/quadchat/internal/presentation/handler/messages"
	roomHandler "github.com/hilthontt/quadchat/internal/presentation/handler/rooms"
	"github.com/stretchr/testify/require"
)

func testConfig() configs.Config {
	return configs.Config{
		HTTP: configs.HTTPConfig{
			AllowedOrigins: []string{"*"},
			AllowedHeaders: []string{"Content-Type", "X-Member-Token"},
		},
	}
}

func newTestServer(t *testing.T, limiter ratelimiter.Limiter) *httptest.Server {
	t.Helper()

	store := repository.NewRoomRepository(time.Minute)
	reg := registry.New(store, registry.Options{}, nil, nil)
	t.Cleanup(func() { _ = reg.Close() })

	m := metrics.NewMetrics()
	core := ws.NewCore(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go core.Run(ctx)

	service := chat.NewService(reg, core, nil, m, chat.Options{})
	throttle := ratelimiter.NewFixedWindowRateLimiter(0, time.Second)
	t.Cleanup(throttle.Close)

	app := NewApplication(
		testConfig(),
		roomHandler.NewHandler(service, core, throttle, nil, roomHandler.Options{AllowedOrigins: []string{"*"}}),
		healthHandler.NewHandler(nil),
		messagesHandler.NewHandler(service, nil),
		logging.NewNopLogger(),
		limiter,
		m,
	)

	srv := httptest.NewServer(app.Mount())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp, decodeBody(t, resp.Body)
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp, decodeBody(t, resp.Body)
}

func decodeBody(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	if len(raw) == 0 {
		return nil
	}
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func createRoom(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/api/rooms", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["roomCode"].(string)
}

func join(t *testing.T, srv *httptest.Server, code, nickname string) string {
	t.Helper()
	resp, body := postJSON(t, srv.URL+"/api/rooms/"+code+"/join", map[string]string{"nickname": nickname})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return body["userId"].(string)
}

func TestAPI_RoomLifecycle(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)
	base := srv.URL + "/api/rooms/" + code

	// Given alice joined with a mixed case code
	resp, body := postJSON(t, srv.URL+"/api/rooms/"+strings.ToLower(code)+"/join", map[string]string{"nickname": "  alice "})
	req.Equal(http.StatusOK, resp.StatusCode)
	alice := body["userId"].(string)
	req.Equal("alice", body["nickname"])
	req.Equal(true, body["joined"])
	req.EqualValues(1, body["memberCount"])
	req.NotEmpty(resp.Cookies())

	// Rejoining with the same id is a no-op
	resp, body = postJSON(t, base+"/join", map[string]string{"nickname": "alice", "userId": alice})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(alice, body["userId"])
	req.Equal(false, body["joined"])

	// When alice posts a message
	resp, body = postJSON(t, base+"/messages", map[string]string{"userId": alice, "message": "hello"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Equal("alice", body["authorNickname"])

	// Then the room snapshot shows it
	resp, body = getJSON(t, base)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(code, body["roomCode"])
	req.Len(body["messages"], 1)
	req.EqualValues(1, body["memberCount"])

	// Outsiders and empty bodies are rejected
	resp, _ = postJSON(t, base+"/messages", map[string]string{"userId": "stranger", "message": "hi"})
	req.Equal(http.StatusForbidden, resp.StatusCode)
	resp, body = postJSON(t, base+"/messages", map[string]string{"userId": alice, "message": "   "})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
	req.Equal("message", body["field"])

	// Leave is always 204, even twice
	for i := 0; i < 2; i++ {
		resp, _ = postJSON(t, base+"/leave", map[string]string{"userId": alice})
		req.Equal(http.StatusNoContent, resp.StatusCode)
	}

	// The emptied room reads as empty
	_, body = getJSON(t, base)
	req.EqualValues(0, body["memberCount"])
	req.Empty(body["messages"])
}

func TestAPI_JoinFullRoomIsConflict(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)

	for i := 0; i < 4; i++ {
		join(t, srv, code, fmt.Sprintf("user%d", i))
	}

	resp, body := postJSON(t, srv.URL+"/api/rooms/"+code+"/join", map[string]string{"nickname": "erin"})
	req.Equal(http.StatusConflict, resp.StatusCode)
	req.EqualValues(4, body["maxMembers"])

	_, body = getJSON(t, srv.URL+"/api/rooms/"+code)
	req.EqualValues(4, body["memberCount"])
}

func TestAPI_BadInput(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)

	resp, _ := getJSON(t, srv.URL+"/api/rooms/a-b")
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/rooms/ABC123/join", map[string]string{"nickname": ""})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/rooms/ABC123/join", map[string]any{"nickname": "bob", "admin": true})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RateLimited(t *testing.T) {
	req := require.New(t)
	limiter := ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: 1, SourceHeaderKey: "X-Client"})
	srv := newTestServer(t, limiter)

	get := func() *http.Response {
		r, err := http.NewRequest(http.MethodGet, srv.URL+"/api/rooms/ABC123", nil)
		req.NoError(err)
		r.Header.Set("X-Client", "c1")
		resp, err := http.DefaultClient.Do(r)
		req.NoError(err)
		resp.Body.Close()
		return resp
	}

	req.Equal(http.StatusOK, get().StatusCode)
	resp := get()
	req.Equal(http.StatusTooManyRequests, resp.StatusCode)
	req.Equal("1", resp.Header.Get("Retry-After"))
}

func TestAPI_CorsHealthAndMetrics(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)

	preflight, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/rooms", nil)
	req.NoError(err)
	preflight.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(preflight)
	req.NoError(err)
	resp.Body.Close()
	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal("http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	for _, path := range []string{"/api/health", "/healthz", "/ready", "/live"} {
		resp, _ := getJSON(t, srv.URL+path)
		req.Equal(http.StatusOK, resp.StatusCode, path)
	}

	// room transitions are only exported once one has been observed
	code := createRoom(t, srv)
	join(t, srv, code, "alice")
	resp, err = http.Get(srv.URL + "/metrics")
	req.NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(raw), `quadchat_http_request_duration_seconds_count{method="POST"`)
	req.Contains(string(raw), `quadchat_room_transitions_total{op="join",result="ok"} 1`)
}

func dialRoom(t *testing.T, srv *httptest.Server, code, nickname string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/rooms/" + code + "/ws?nickname=" + nickname
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type     string         `json:"type"`
	RoomCode string         `json:"roomCode"`
	Data     map[string]any `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// nextFrame skips frames until one satisfies match. A joiner may see its own
// user-joined after room-state, so tests look for the frame they care about.
func nextFrame(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for {
		f := readFrame(t, conn)
		if match(f) {
			return f
		}
	}
}

func ofType(typ string) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

func TestAPI_WebSocketRoundTrip(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)
	base := srv.URL + "/api/rooms/" + code

	// Given alice is connected over WebSocket
	conn := dialRoom(t, srv, code, "alice")
	state := readFrame(t, conn)
	req.Equal(ws.RoomState, state.Type)
	req.EqualValues(1, state.Data["memberCount"])
	alice := state.Data["userId"].(string)

	// When bob joins, posts and leaves over HTTP
	bob := join(t, srv, code, "bob")
	joined := nextFrame(t, conn, func(f frame) bool {
		return f.Type == ws.UserJoined && f.Data["memberCount"] == float64(2)
	})
	req.Equal("bob", joined.Data["member"].(map[string]any)["nickname"])

	resp, _ := postJSON(t, base+"/messages", map[string]string{"userId": bob, "message": "hi alice"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	msg := nextFrame(t, conn, ofType(ws.MessageReceived))
	req.Equal("hi alice", msg.Data["body"])
	req.Equal("bob", msg.Data["authorNickname"])

	resp, _ = postJSON(t, base+"/leave", map[string]string{"userId": bob})
	req.Equal(http.StatusNoContent, resp.StatusCode)
	left := nextFrame(t, conn, ofType(ws.UserLeft))
	req.EqualValues(1, left.Data["memberCount"])

	// Then alice's own message comes back to her through the broadcast
	req.NoError(conn.WriteJSON(ws.ClientFrame{Type: ws.SendMessage, Message: "anyone?"}))
	echo := nextFrame(t, conn, ofType(ws.MessageReceived))
	req.Equal(alice, echo.Data["authorId"])

	// Invalid frames are answered, not fatal
	req.NoError(conn.WriteJSON(ws.ClientFrame{Type: ws.SendMessage, Message: ""}))
	errFrame := nextFrame(t, conn, ofType(ws.ErrorEvent))
	req.Equal(ws.CodeValidation, errFrame.Data["code"])

	// Closing the socket leaves the room
	req.NoError(conn.Close())
	req.Eventually(func() bool {
		_, body := getJSON(t, base)
		return body["memberCount"] == float64(0)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAPI_WebSocketRoomFull(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)
	for i := 0; i < 4; i++ {
		join(t, srv, code, fmt.Sprintf("user%d", i))
	}

	conn := dialRoom(t, srv, code, "erin")
	full := readFrame(t, conn)
	req.Equal(ws.RoomFull, full.Type)
	req.EqualValues(4, full.Data["maxMembers"])

	// the server closes the socket after the frame
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	_, body := getJSON(t, srv.URL+"/api/rooms/"+code)
	req.EqualValues(4, body["memberCount"])
}

func TestAPI_WebSocketLeaveFrame(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)

	conn := dialRoom(t, srv, code, "alice")
	req.Equal(ws.RoomState, readFrame(t, conn).Type)
	observer := dialRoom(t, srv, code, "bob")
	req.Equal(ws.RoomState, readFrame(t, observer).Type)
	nextFrame(t, conn, func(f frame) bool { return f.Type == ws.UserJoined && f.Data["memberCount"] == float64(2) })

	req.NoError(conn.WriteJSON(ws.ClientFrame{Type: ws.LeaveRoom}))

	left := nextFrame(t, observer, ofType(ws.UserLeft))
	req.Equal("alice", left.Data["member"].(map[string]any)["nickname"])
}

func TestAPI_HTTPLeaveClosesMembersSocket(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, nil)
	code := createRoom(t, srv)

	// Given alice is connected over WebSocket
	conn := dialRoom(t, srv, code, "alice")
	state := readFrame(t, conn)
	alice := state.Data["userId"].(string)

	// When she leaves over HTTP
	resp, _ := postJSON(t, srv.URL+"/api/rooms/"+code+"/leave", map[string]string{"userId": alice})
	req.Equal(http.StatusNoContent, resp.StatusCode)

	// Then her socket gets the user-left frame and is closed by the server
	left := nextFrame(t, conn, ofType(ws.UserLeft))
	req.Equal(alice, left.Data["member"].(map[string]any)["userId"])

	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
