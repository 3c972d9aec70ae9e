// Package integration tests the connection-accept policies: origin
// allowlisting and the inbound frame size limit.
package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/internal/server"
	"github.com/roomcast/roomcast/test/testhelpers"
)

func TestOriginPolicy(t *testing.T) {
	h := testhelpers.NewHarness(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})

	t.Run("allowed origin connects", func(t *testing.T) {
		conn := h.DialWithOrigin(t, "http://allowed.example")
		frame := testhelpers.ReadFrame(t, conn, frameWait)
		assert.Equal(t, "initial_messages", frame.Type)
	})

	t.Run("disallowed origin is rejected", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", "http://evil.example")
		conn, resp, err := websocket.DefaultDialer.Dial(h.WSURL, header)
		if conn != nil {
			conn.Close()
		}
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("non-browser client without origin connects", func(t *testing.T) {
		conn := h.Dial(t)
		frame := testhelpers.ReadFrame(t, conn, frameWait)
		assert.Equal(t, "initial_messages", frame.Type)
	})
}

// TestOversizedFrameClosesConnection sends a raw frame beyond the configured
// read limit; the server drops that connection but keeps serving others.
func TestOversizedFrameClosesConnection(t *testing.T) {
	h := testhelpers.NewHarness(t, func(cfg *server.Config) {
		cfg.MaxFrameSize = 512
	})

	offender := h.Dial(t)
	bystander := h.Dial(t)
	testhelpers.ReadFrame(t, offender, frameWait)
	testhelpers.ReadFrame(t, bystander, frameWait)

	huge := `{"type":"new_message","data":{"username":"alice","body":"` + strings.Repeat("x", 2048) + `"}}`
	// The write may or may not error locally; the read side must observe
	// the server closing the connection.
	_ = offender.WriteMessage(websocket.TextMessage, []byte(huge))

	require.NoError(t, offender.SetReadDeadline(time.Now().Add(frameWait)))
	_, _, err := offender.ReadMessage()
	require.Error(t, err)

	// Other connections are unaffected.
	testhelpers.SendNewMessage(t, bystander, "bob", "still fine")
	frame := testhelpers.ReadFrame(t, bystander, frameWait)
	assert.Equal(t, "message_broadcast", frame.Type)
}
