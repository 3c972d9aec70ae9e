// Package integration contains end-to-end tests for multi-client scenarios:
// fan-out to every connection, order agreement across clients, and isolation
// of individual disconnects.
package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/test/testhelpers"
)

func TestBroadcastReachesEveryClientIncludingSender(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)

	const numClients = 5
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = h.Dial(t)
		testhelpers.ReadFrame(t, conns[i], frameWait)
	}

	testhelpers.SendNewMessage(t, conns[0], "client-0", "hello everyone")

	for i, conn := range conns {
		frame := testhelpers.ReadFrame(t, conn, frameWait)
		require.Equal(t, "message_broadcast", frame.Type, "client %d", i)
		msg := frame.DecodeMessage(t)
		assert.Equal(t, int64(1), msg.ID)
		assert.Equal(t, "hello everyone", msg.Body)
	}
}

// TestClientsAgreeOnMessageOrder has two clients publish concurrently and
// asserts every connection observes the same total order.
func TestClientsAgreeOnMessageOrder(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)

	a := h.Dial(t)
	b := h.Dial(t)
	watcher := h.Dial(t)
	for _, conn := range []*websocket.Conn{a, b, watcher} {
		testhelpers.ReadFrame(t, conn, frameWait)
	}

	const perSender = 5
	for i := 0; i < perSender; i++ {
		testhelpers.SendNewMessage(t, a, "alice", fmt.Sprintf("a-%d", i))
		testhelpers.SendNewMessage(t, b, "bob", fmt.Sprintf("b-%d", i))
	}

	total := perSender * 2
	readOrder := func(conn *websocket.Conn) []string {
		order := make([]string, 0, total)
		for i := 0; i < total; i++ {
			frame := testhelpers.ReadFrame(t, conn, frameWait)
			require.Equal(t, "message_broadcast", frame.Type)
			msg := frame.DecodeMessage(t)
			// IDs arrive strictly ascending on every connection.
			require.Equal(t, int64(i+1), msg.ID)
			order = append(order, msg.Body)
		}
		return order
	}

	orderA := readOrder(a)
	orderB := readOrder(b)
	orderW := readOrder(watcher)

	assert.Equal(t, orderA, orderB)
	assert.Equal(t, orderA, orderW)
}

// TestDisconnectDoesNotDisturbOthers closes one client mid-conversation and
// verifies the rest keep receiving broadcasts.
func TestDisconnectDoesNotDisturbOthers(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)

	sender := h.Dial(t)
	stayer := h.Dial(t)
	leaver := h.Dial(t)
	for _, conn := range []*websocket.Conn{sender, stayer, leaver} {
		testhelpers.ReadFrame(t, conn, frameWait)
	}

	require.NoError(t, leaver.Close())
	time.Sleep(100 * time.Millisecond)

	testhelpers.SendNewMessage(t, sender, "alice", "after departure")

	for _, conn := range []*websocket.Conn{sender, stayer} {
		frame := testhelpers.ReadFrame(t, conn, frameWait)
		require.Equal(t, "message_broadcast", frame.Type)
		assert.Equal(t, "after departure", frame.DecodeMessage(t).Body)
	}
}

func TestConnectionChurn(t *testing.T) {
	h := testhelpers.NewHarness(t, nil)

	for round := 0; round < 3; round++ {
		conns := make([]*websocket.Conn, 8)
		for i := range conns {
			conns[i] = h.Dial(t)
			testhelpers.ReadFrame(t, conns[i], frameWait)
		}
		for _, conn := range conns {
			require.NoError(t, conn.Close())
		}
	}

	// The hub stays serviceable after the churn.
	conn := h.Dial(t)
	testhelpers.ReadFrame(t, conn, frameWait)
	testhelpers.SendNewMessage(t, conn, "alice", "survivor")
	frame := testhelpers.ReadFrame(t, conn, frameWait)
	assert.Equal(t, "message_broadcast", frame.Type)
}
