package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SubscribeGlobalReceivesMutations(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts.URL)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "task_id": "*"}))
	ack := readWS(t, conn)
	assert.Equal(t, "subscribed", ack["type"])

	created := createTask(t, ts, map[string]any{"title": "Streamed"})

	ev := readWS(t, conn)
	assert.Equal(t, "event", ev["type"])
	assert.Equal(t, "task_created", ev["event"])
	assert.Equal(t, created.ID, ev["task_id"])
}

func TestWebSocket_SubscribeSingleTask(t *testing.T) {
	ts := newTestServer(t)
	target := createTask(t, ts, map[string]any{"title": "Watched"})
	conn := dialWS(t, ts.URL)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "task_id": target.ID}))
	readWS(t, conn) // ack

	// A mutation on an unrelated task must not reach this subscriber.
	createTask(t, ts, map[string]any{"title": "Unrelated"})

	resp := doJSON(t, http.MethodPatch, ts.URL+"/api/tasks/"+target.ID,
		map[string]any{"title": "Watched, renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	ev := readWS(t, conn)
	assert.Equal(t, "task_updated", ev["event"])
	assert.Equal(t, target.ID, ev["task_id"])
}

func TestWebSocket_ApplicationPing(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts.URL)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	msg := readWS(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestWebSocket_SubscribeRequiresTaskID(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts.URL)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe"}))
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts.URL)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, mustJSON(t, map[string]any{"type": "bogus"})))
	msg := readWS(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
