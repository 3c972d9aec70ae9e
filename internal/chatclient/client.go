// Package chatclient implements the client side of the room protocol: one
// logical connection with fixed-delay reconnection and wholesale history
// resynchronization on every successful connect.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomcast/roomcast/internal/store"
)

// DefaultRetryInterval is the fixed delay between reconnection attempts.
const DefaultRetryInterval = 3 * time.Second

const writeWait = 10 * time.Second

// ErrNotConnected is returned by Send while no connection is open. The
// caller retries after the next reconnect.
var ErrNotConnected = errors.New("not connected")

// State describes the connection from the client's point of view.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Options configure a Client. Zero values fall back to defaults. Callbacks
// are invoked from the client's read goroutine and must not block.
type Options struct {
	// RetryInterval is the fixed delay between reconnection attempts.
	RetryInterval time.Duration
	// OnHistory is invoked after a snapshot replaces the local history.
	OnHistory func([]store.Message)
	// OnMessage is invoked for every broadcast appended to the history.
	OnMessage func(store.Message)
	// OnState is invoked on every connection state change.
	OnState func(State)
	// OnServerError is invoked when the server rejects one of our frames.
	OnServerError func(string)
}

type serverFrame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client maintains one logical connection to a room server. On unexpected
// closure it redials every RetryInterval until a connection succeeds, and
// replaces its local history wholesale from the server's snapshot — it never
// merges or diffs.
type Client struct {
	url  string
	opts Options

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	history []store.Message

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a client for the given WebSocket URL. Call Start to connect.
func New(url string, opts Options) *Client {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Client{
		url:   url,
		opts:  opts,
		state: Disconnected,
	}
}

// Start connects in the background and keeps the connection alive until ctx
// is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Close tears down the connection and stops reconnecting.
func (c *Client) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// Send submits a new message to the room.
func (c *Client) Send(username, body string) error {
	payload, err := json.Marshal(map[string]any{
		"type": "new_message",
		"data": map[string]string{"username": username, "body": body},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// History returns a copy of the local message history in server order.
func (c *Client) History() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]store.Message, len(c.history))
	copy(out, c.history)
	return out
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(Disconnected)

	for {
		c.setState(Connecting)
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if resp != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.setState(Reconnecting)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.setConn(conn)
		c.setState(Connected)
		c.readLoop(ctx, conn)
		c.setConn(nil)

		if ctx.Err() != nil {
			return
		}
		c.setState(Reconnecting)
		if !c.sleep(ctx) {
			return
		}
	}
}

// sleep waits one retry interval; it reports false when ctx ended first.
func (c *Client) sleep(ctx context.Context) bool {
	select {
	case <-time.After(c.opts.RetryInterval):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		c.handleFrame(raw)
	}
}

// handleFrame dispatches one server frame. Snapshots replace the local
// history wholesale; broadcasts append to it. Unknown frames are ignored.
func (c *Client) handleFrame(raw []byte) {
	var frame serverFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Type {
	case "initial_messages":
		var history []store.Message
		if err := json.Unmarshal(frame.Data, &history); err != nil {
			return
		}
		c.mu.Lock()
		c.history = history
		c.mu.Unlock()
		if c.opts.OnHistory != nil {
			c.opts.OnHistory(history)
		}

	case "message_broadcast":
		var msg store.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return
		}
		c.mu.Lock()
		c.history = append(c.history, msg)
		c.mu.Unlock()
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(msg)
		}

	case "error":
		if c.opts.OnServerError != nil {
			c.opts.OnServerError(frame.Message)
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
