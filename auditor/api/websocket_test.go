package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeWS(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws", hub.HandleWebSocket)
	return mux
}

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubConnectionHandshake(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(routeWS(hub))
	defer ts.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnection, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestHubBroadcastReachesClient(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(routeWS(hub))
	defer ts.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	// Drain the welcome message first
	welcome := readMessage(t, conn)
	require.Equal(t, MessageTypeConnection, welcome.Type)

	hub.Broadcast(MessageTypeRunCompleted, map[string]string{"run_id": "r1"})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeRunCompleted, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "r1", data["run_id"])
}

func TestHubPingPong(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	ts := httptest.NewServer(routeWS(hub))
	defer ts.Close()

	conn := dialHub(t, ts)
	defer conn.Close()

	readMessage(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypePong, msg.Type)
}

func TestHubBroadcastAfterCloseDoesNotBlock(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	hub := NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Broadcast(MessageTypeAnalysisProgress, i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after hub shutdown")
	}
}

func TestMessageSerialization(t *testing.T) {
	msg := Message{
		Type:      MessageTypeRunCompleted,
		Data:      map[string]string{"run_id": "r1"},
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, msg.Type, decoded.Type)
	assert.True(t, msg.Timestamp.Equal(decoded.Timestamp))
}
