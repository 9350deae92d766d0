package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_UnknownBackendPanics(t *testing.T) {
	require.Panics(t, func() {
		NewLogger(&LoggerConfig{Logger: "logrus"})
	})
}

func TestNewLogger_SelectsBackend(t *testing.T) {
	req := require.New(t)

	req.IsType(&zapLogger{}, NewLogger(&LoggerConfig{Logger: "zap", Level: "error"}))
	req.IsType(&zeroLogger{}, NewLogger(&LoggerConfig{Logger: "zerolog", Level: "error"}))
}

func TestZeroLogger_WritesCategoriesAndExtras(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger := &zeroLogger{cfg: &LoggerConfig{Level: "info"}, out: &buf}
	logger.Init()

	logger.Debug(Room, Join, "dropped below level", nil)
	logger.Info(Room, Join, "member joined", map[ExtraKey]any{RoomCode: "ABC123", MemberCount: 2})

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("member joined", line["message"])
	req.Equal("Room", line["Category"])
	req.Equal("Join", line["SubCategory"])
	req.Equal("ABC123", line["RoomCode"])
	req.EqualValues(2, line["MemberCount"])
	req.Equal("quadchat", line["AppName"])
}

func TestZapLogger_WritesRotatedFile(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	logger := NewLogger(&LoggerConfig{Logger: "zap", Level: "info", FilePath: dir})
	logger.Info(General, Startup, "started", map[ExtraKey]any{Path: "/"})

	data, err := os.ReadFile(filepath.Join(dir, "quadchat.log"))
	req.NoError(err)
	req.Contains(string(data), `"msg":"started"`)
	req.Contains(string(data), `"Category":"General"`)
}

func TestNopLogger_DiscardsEverything(t *testing.T) {
	require.NotPanics(t, func() {
		logger := NewNopLogger()
		logger.Error(Store, Conflict, "ignored", map[ExtraKey]any{Attempt: 1})
		logger.Infof("ignored %d", 1)
	})
}

func TestZeroLogger_WithBindsFields(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	parent := &zeroLogger{cfg: &LoggerConfig{Level: "info"}, out: &buf}
	parent.Init()
	child := parent.With(map[ExtraKey]any{RoomCode: "ABC123", ConnectionID: "c-1"})

	child.Warn(WebSocket, Disconnect, "ws read error", map[ExtraKey]any{ErrorMessage: "eof"})

	var line map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &line))
	req.Equal("ABC123", line["RoomCode"])
	req.Equal("c-1", line["ConnectionId"])
	req.Equal("eof", line["ErrorMessage"])
	req.Same(parent, parent.With(nil))
}

func TestZapFields_AreSorted(t *testing.T) {
	fields := zapFields(map[ExtraKey]any{UserID: "u", Attempt: 2, RoomCode: "R"})

	require.Equal(t, []any{"Attempt", 2, "RoomCode", "R", "UserId", "u"}, fields)
}
