package chatclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/internal/chatclient"
	"github.com/roomcast/roomcast/internal/server"
	"github.com/roomcast/roomcast/internal/store"
)

func newRoomServer(t *testing.T) string {
	t.Helper()
	hub := server.NewHub(zerolog.Nop())
	go hub.Run()

	srv := server.NewServer(hub, server.NewConfig(), zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestClientConnectSendReceive(t *testing.T) {
	wsURL := newRoomServer(t)

	var mu sync.Mutex
	var states []chatclient.State
	received := make(chan store.Message, 8)

	client := chatclient.New(wsURL, chatclient.Options{
		RetryInterval: 50 * time.Millisecond,
		OnMessage:     func(msg store.Message) { received <- msg },
		OnState: func(s chatclient.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	client.Start(context.Background())
	defer client.Close()

	require.Eventually(t, func() bool {
		return client.State() == chatclient.Connected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send("alice", "hi"))

	// The server echoes the broadcast back to the sender.
	select {
	case msg := <-received:
		assert.Equal(t, int64(1), msg.ID)
		assert.Equal(t, "alice", msg.Username)
		assert.Equal(t, "hi", msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}

	history := client.History()
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Body)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, chatclient.Connecting)
	assert.Contains(t, states, chatclient.Connected)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	wsURL := newRoomServer(t)

	serverErrs := make(chan string, 1)
	client := chatclient.New(wsURL, chatclient.Options{
		RetryInterval: 50 * time.Millisecond,
		OnServerError: func(msg string) { serverErrs <- msg },
	})
	client.Start(context.Background())
	defer client.Close()

	require.Eventually(t, func() bool {
		return client.State() == chatclient.Connected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Send("alice", strings.Repeat("x", 501)))

	select {
	case msg := <-serverErrs:
		assert.Contains(t, msg, "body")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server error")
	}
	assert.Empty(t, client.History())
}

func TestClientSendWhileDisconnected(t *testing.T) {
	client := chatclient.New("ws://127.0.0.1:1/ws", chatclient.Options{})
	err := client.Send("alice", "hi")
	assert.ErrorIs(t, err, chatclient.ErrNotConnected)
}

// TestClientReconnectsAndReplacesHistory runs against a server that drops
// every connection right after the snapshot. The client must keep redialing
// on its fixed interval and replace its history wholesale each time.
func TestClientReconnectsAndReplacesHistory(t *testing.T) {
	var dials atomic.Int64
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)

		// Each connect serves a different full snapshot; a merging client
		// would accumulate instead of replacing.
		history := make([]map[string]any, 0, n)
		for i := int64(1); i <= n; i++ {
			history = append(history, map[string]any{
				"id":        i,
				"username":  "alice",
				"body":      fmt.Sprintf("message %d", i),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
		payload, _ := json.Marshal(map[string]any{"type": "initial_messages", "data": history})
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		_ = conn.Close()
	}))
	defer ts.Close()

	histories := make(chan []store.Message, 16)
	client := chatclient.New("ws"+strings.TrimPrefix(ts.URL, "http"), chatclient.Options{
		RetryInterval: 30 * time.Millisecond,
		OnHistory:     func(h []store.Message) { histories <- h },
	})
	client.Start(context.Background())
	defer client.Close()

	deadline := time.After(5 * time.Second)
	var last []store.Message
	for len(last) < 3 {
		select {
		case last = <-histories:
		case <-deadline:
			t.Fatal("client did not keep reconnecting")
		}
	}

	require.GreaterOrEqual(t, dials.Load(), int64(3))
	assert.Equal(t, "message 1", last[0].Body)

	// Wholesale replacement: the local history always looks like one server
	// snapshot (IDs 1..n exactly once), never an accumulation of several.
	history := client.History()
	require.NotEmpty(t, history)
	for i, msg := range history {
		assert.Equal(t, int64(i+1), msg.ID)
	}
}
