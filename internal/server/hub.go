// Package server coordinates session registration, message fan-out, and
// connection cleanup for the Roomcast chat system via the Hub type.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/store"
)

// ErrHubClosed is returned by Publish once the hub has shut down.
var ErrHubClosed = errors.New("hub is shut down")

// publishRequest carries one append+broadcast request into the run loop.
type publishRequest struct {
	username string
	body     string
	reply    chan publishResult
}

type publishResult struct {
	msg store.Message
	err error
}

// Hub owns the message log and the connection registry. A single Run
// goroutine consumes the register, unregister, and publish channels, which
// serializes every append+fan-out sequence: concurrent publishers are
// totally ordered, and a snapshot enqueued on register can never interleave
// with a broadcast.
type Hub struct {
	base     zerolog.Logger
	log      zerolog.Logger
	messages *store.Log
	sessions *registry

	register   chan *Client
	unregister chan *Client
	publish    chan publishRequest

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates a hub with an empty message log. Call Run in its own
// goroutine before accepting connections.
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		base:       logger,
		log:        logger.With().Str("component", "hub").Logger(),
		messages:   store.NewLog(),
		sessions:   newRegistry(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan publishRequest),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run is the hub's main event loop. It should be called in a separate
// goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeSessions()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case req := <-h.publish:
			req.reply <- h.handlePublish(req)
		}
	}
}

// Publish appends a message and fans it out to every open connection,
// including the one that sent it. Safe for concurrent use from any number of
// sessions; requests are serialized by the run loop.
func (h *Hub) Publish(ctx context.Context, username, body string) (store.Message, error) {
	req := publishRequest{
		username: username,
		body:     body,
		reply:    make(chan publishResult, 1),
	}

	select {
	case h.publish <- req:
	case <-h.ctx.Done():
		return store.Message{}, ErrHubClosed
	case <-ctx.Done():
		return store.Message{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.msg, res.err
	case <-ctx.Done():
		return store.Message{}, ctx.Err()
	}
}

// Messages returns the full log in append order.
func (h *Hub) Messages() []store.Message {
	return h.messages.Snapshot()
}

// Message returns a single message by ID, or store.ErrNotFound.
func (h *Hub) Message(id int64) (store.Message, error) {
	return h.messages.Get(id)
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn().Msg("nil client registration; skipping")
		return
	}
	if !h.sessions.add(client) {
		return
	}
	h.log.Info().
		Str("conn", client.id.String()).
		Str("addr", client.addr).
		Int("total", h.sessions.len()).
		Msg("client registered")

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	// The snapshot is built and enqueued inside the run loop, before any
	// later broadcast, so a client that joins after N appends sees exactly
	// those N messages followed by broadcast N+1 as a separate push.
	frame, err := encodeSnapshot(h.messages.Snapshot())
	if err != nil {
		h.log.Error().Err(err).Msg("encoding snapshot")
		return
	}
	if !h.sessions.deliver(client, frame) {
		h.evict([]*Client{client})
	}
}

func (h *Hub) handleUnregister(client *Client) {
	if client == nil {
		return
	}
	if h.sessions.remove(client) {
		close(client.send)
		h.log.Info().
			Str("conn", client.id.String()).
			Int("total", h.sessions.len()).
			Msg("client unregistered")
	}
}

func (h *Hub) handlePublish(req publishRequest) publishResult {
	msg, err := h.messages.Append(req.username, req.body)
	if err != nil {
		return publishResult{err: err}
	}

	frame, err := encodeBroadcast(msg)
	if err != nil {
		// The message is already in the log; open connections catch up on
		// their next reconnect snapshot.
		h.log.Error().Err(err).Int64("id", msg.ID).Msg("encoding broadcast")
		return publishResult{msg: msg}
	}

	targets := h.sessions.snapshot()
	var failed []*Client
	for _, client := range targets {
		if !h.sessions.deliver(client, frame) {
			failed = append(failed, client)
		}
	}
	h.evict(failed)

	h.log.Debug().
		Int64("id", msg.ID).
		Int("recipients", len(targets)-len(failed)).
		Msg("message broadcast")
	return publishResult{msg: msg}
}

// evict drops clients whose delivery failed, treating each as an implicit
// disconnect. A failed recipient never blocks delivery to the rest and the
// failure never propagates to the sender.
func (h *Hub) evict(clients []*Client) {
	for _, client := range clients {
		if h.sessions.remove(client) {
			close(client.send)
			h.log.Warn().
				Str("conn", client.id.String()).
				Str("addr", client.addr).
				Msg("client evicted: send buffer full or connection gone")
		}
	}
}

// closeSessions closes every open connection during shutdown. The pumps exit
// on their own once the underlying connections fail.
func (h *Hub) closeSessions() {
	clients := h.sessions.snapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn().Err(err).Str("addr", client.addr).Msg("closing client connection")
			}
		}
	}
	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown stops the run loop, closes every connection, and waits for the
// session goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached; some sessions may still be draining")
		return context.DeadlineExceeded
	}
}
