package ws

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type echo struct {
	gone chan string
}

func (e *echo) Handle(_ context.Context, _ string, raw []byte) ([]byte, error) {
	if string(raw) == "exit" {
		return nil, nil
	}
	return bytes.ToUpper(raw), nil
}

func (e *echo) Disconnect(_ context.Context, addr string) { e.gone <- addr }

func dial(t *testing.T, h *echo) (*websocket.Conn, context.Context, *Server) {
	t.Helper()
	ws := NewServer(h, nil, zaptest.NewLogger(t))
	srv := httptest.NewServer(ws)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return c, ctx, ws
}

func TestHandler_OneReplyPerMessage(t *testing.T) {
	h := &echo{gone: make(chan string, 1)}
	c, ctx, _ := dial(t, h)
	defer c.CloseNow()

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("list")))
	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "LIST", string(data))

	// silent replies are skipped; binary in, binary out
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("exit")))
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte("join")))
	typ, data, err = c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)
	assert.Equal(t, "JOIN", string(data))
}

func TestHandler_DisconnectOnClose(t *testing.T) {
	h := &echo{gone: make(chan string, 1)}
	c, _, _ := dial(t, h)
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))

	select {
	case addr := <-h.gone:
		assert.True(t, strings.HasPrefix(addr, "ws:"))
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect not reported")
	}
}

func TestServer_ShutdownClosesOpenConnections(t *testing.T) {
	h := &echo{gone: make(chan string, 1)}
	c, ctx, ws := dial(t, h)
	defer c.CloseNow()

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("list")))
	_, _, err := c.Read(ctx)
	require.NoError(t, err)

	shut := make(chan error, 1)
	go func() { shut <- ws.Shutdown(ctx) }()

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	select {
	case err := <-shut:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Shutdown did not return")
	}
	// cleanup ran before Shutdown returned
	select {
	case <-h.gone:
	default:
		t.Fatalf("disconnect cleanup did not run")
	}

	// new upgrades are refused
	rec := httptest.NewRecorder()
	ws.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
