package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesClient(t *testing.T) {
	hub := NewHub(nil)
	conn := dialTestHub(t, hub)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(TaskEvent{
		RunID:  "run-1",
		Task:   "sync",
		Status: StatusStarted,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event TaskEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, "sync", event.Task)
	assert.Equal(t, StatusStarted, event.Status)
	assert.False(t, event.At.IsZero(), "broadcast stamps the event time")
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	// Must not block or panic.
	hub.Broadcast(TaskEvent{RunID: "run-1", Task: "lot", Status: StatusCompleted})
	assert.Equal(t, 0, hub.ClientCount())
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	conn := dialTestHub(t, hub)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
