// Package testhelpers provides common utilities for testing the Roomcast
// server: spinning up a full hub + HTTP stack, dialing WebSocket clients,
// and reading protocol frames with deadlines.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/server"
	"github.com/roomcast/roomcast/internal/store"
)

// Harness is a fully wired Roomcast server running on an httptest listener.
type Harness struct {
	Hub   *server.Hub
	HTTP  *httptest.Server
	WSURL string
}

// NewHarness starts a hub and HTTP server and registers cleanup with t.
// The customize callback, when non-nil, runs before the server starts.
func NewHarness(t *testing.T, customize func(cfg *server.Config)) *Harness {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(cfg)
	}

	hub := server.NewHub(zerolog.Nop())
	go hub.Run()

	srv := server.NewServer(hub, cfg, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	return &Harness{Hub: hub, HTTP: ts, WSURL: u.String()}
}

// Dial opens a WebSocket connection to the harness and registers cleanup.
func (h *Harness) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	return h.DialWithOrigin(t, "")
}

// DialWithOrigin opens a WebSocket connection carrying the given Origin
// header. An empty origin sends no header, like a non-browser client.
func (h *Harness) DialWithOrigin(t *testing.T, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(h.WSURL, header)
	if err != nil {
		t.Fatalf("dialing %s: %v", h.WSURL, err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Frame is the generic server-to-client envelope used in assertions.
type Frame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Messages decodes the frame payload as a message list.
func (f Frame) Messages(t *testing.T) []store.Message {
	t.Helper()
	var messages []store.Message
	if err := json.Unmarshal(f.Data, &messages); err != nil {
		t.Fatalf("decoding message list from %s frame: %v", f.Type, err)
	}
	return messages
}

// DecodeMessage decodes the frame payload as a single message.
func (f Frame) DecodeMessage(t *testing.T) store.Message {
	t.Helper()
	var msg store.Message
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("decoding message from %s frame: %v", f.Type, err)
	}
	return msg
}

// ReadFrame reads the next frame from the connection, failing the test on
// timeout or decode error.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", raw, err)
	}
	return frame
}

// SendNewMessage writes a new_message frame on the connection.
func SendNewMessage(t *testing.T, conn *websocket.Conn, username, body string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"type": "new_message",
		"data": map[string]string{"username": username, "body": body},
	})
	if err != nil {
		t.Fatalf("marshaling new_message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("sending new_message: %v", err)
	}
}

// ExpectNoFrame asserts that nothing arrives on the connection within the
// timeout.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, received %q", raw)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of frame: %v", err)
}
