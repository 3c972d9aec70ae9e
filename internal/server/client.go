// Package server manages individual chat sessions, handling read/write
// pumps and lifecycle control for each WebSocket connection.
package server

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is the server-side session for one connection: it decodes inbound
// frames, forwards valid ones to the hub, and serializes outbound pushes
// back to the wire.
type Client struct {
	id           uuid.UUID
	conn         *websocket.Conn
	send         chan []byte
	hub          *Hub
	addr         string
	log          zerolog.Logger
	closed       bool // guarded by the registry lock
	maxFrameSize int64
}

// NewClient creates a session for the given connection. The send channel is
// buffered; a receiver that cannot drain it in time is evicted by the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config) *Client {
	id := uuid.New()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxFrameSize)
	}
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, cfg.SendBuffer),
		hub:          hub,
		addr:         addr,
		log:          hub.base.With().Str("component", "session").Str("conn", id.String()).Str("addr", addr).Logger(),
		maxFrameSize: cfg.MaxFrameSize,
	}
}

// disconnect hands the session back to the hub for removal. Safe to call any
// number of times and after the hub has stopped.
func (c *Client) disconnect() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.ctx.Done():
	}
}

func (c *Client) setupReadDeadlines() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) readPump() {
	defer func() {
		c.disconnect()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("closing connection in read pump")
		}
	}()

	c.setupReadDeadlines()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.handleInbound(raw)
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxFrameSize).Msg("inbound frame exceeded size limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// handleInbound processes one raw frame. Decode and validation failures are
// reported back to this connection only; they never close it, never reach
// the log, and never abort the hub.
func (c *Client) handleInbound(raw []byte) {
	payload, err := decodeClientFrame(raw)
	if err != nil {
		c.log.Info().Err(err).Msg("rejecting inbound frame")
		c.sendError(err)
		return
	}

	if _, err := c.hub.Publish(c.hub.ctx, payload.Username, payload.Body); err != nil {
		var verr *store.ValidationError
		if errors.As(err, &verr) {
			c.log.Info().Err(err).Msg("rejecting message")
			c.sendError(err)
			return
		}
		c.log.Warn().Err(err).Msg("publish failed")
	}
}

func (c *Client) sendError(err error) {
	c.hub.sessions.deliver(c, encodeError(err.Error()))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("closing connection in write pump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Warn().Err(err).Msg("setting write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One WebSocket message per frame; every push stays an
			// independently decodable unit.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn().Err(err).Msg("writing frame")
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.ctx.Done():
			return
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
