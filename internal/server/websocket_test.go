package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zid/internal/config"
	"github.com/zeusync/zid/internal/core/observability/log"
	"github.com/zeusync/zid/pkg/zid"
)

func dialWebSocket(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	s := newTestHTTPServer(t, zid.MaxBatch, token)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestWebSocket_Batches(t *testing.T) {
	conn, _, err := dialWebSocket(t, "")
	require.NoError(t, err)
	defer conn.Close()

	var prev uint64
	for _, n := range []int{1, 5, 0, 100} {
		require.NoError(t, conn.WriteJSON(Request{N: n}))

		var resp Response
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Empty(t, resp.Error)
		require.Len(t, resp.IDs, n)

		for i, id := range resp.IDs {
			assert.Equal(t, resp.IDs[0]+uint64(i), id)
			assert.Greater(t, id, prev)
		}
		if n > 0 {
			prev = resp.IDs[n-1]
		}
	}
}

func TestWebSocket_ErrorsKeepConnection(t *testing.T) {
	conn, _, err := dialWebSocket(t, "")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, CodeInvalidRequest, resp.Code)

	require.NoError(t, conn.WriteJSON(Request{N: zid.MaxBatch + 1}))
	resp = Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, CodeBatchTooLarge, resp.Code)
	assert.Empty(t, resp.IDs)

	require.NoError(t, conn.WriteJSON(Request{N: 2}))
	resp = Response{}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Len(t, resp.IDs, 2)
}

func TestWebSocket_AuthOnUpgrade(t *testing.T) {
	s := newTestHTTPServer(t, zid.MaxBatch, "secret")
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer secret"}})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{N: 1}))
	var reply Response
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Len(t, reply.IDs, 1)
}

func TestWebSocket_QueryToken(t *testing.T) {
	conn, _, err := dialWebSocket(t, "secret")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{N: 3}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Len(t, resp.IDs, 3)
}

func TestWebSocketHandler_Close(t *testing.T) {
	cfg := config.Default()
	h := NewWebSocketHandler(cfg.WebSocket, cfg.Limits, newTestIssuer(zid.MaxBatch), log.NewNop())
	srv := httptest.NewServer(h)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(Request{N: 1}))
	var resp Response
	require.NoError(t, conn.ReadJSON(&resp))

	done := make(chan struct{})
	go func() {
		h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not wait for the session to end")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// sessions opened after Close are dropped right away
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "i/o timeout"), "got %v", err)
}

func TestWebSocket_StringFormat(t *testing.T) {
	conn, _, err := dialWebSocket(t, "")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Request{N: 2, Format: FormatString}))
	var resp struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Len(t, resp.IDs, 2)
	assert.NotContains(t, resp.IDs[0], "e")
}
