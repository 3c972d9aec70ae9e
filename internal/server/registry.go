// Package server tracks the set of connections eligible for broadcast
// delivery via the registry type.
package server

import "sync"

// registry is the set of currently-open sessions. Membership is exactly the
// set of connections eligible for broadcast delivery at a given instant.
type registry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func newRegistry() *registry {
	return &registry{clients: make(map[*Client]struct{})}
}

// add registers the client and reports whether it was newly added.
// Registering the same client twice is a no-op.
func (r *registry) add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}
	c.closed = false
	r.clients[c] = struct{}{}
	return true
}

// remove deregisters the client and reports whether it was present. Removing
// a client twice, or one that was never added, is a no-op. The closed flag is
// flipped under the write lock so deliver can never race a channel close.
func (r *registry) remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	c.closed = true
	return true
}

func (r *registry) contains(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.clients[c]
	return ok
}

// snapshot returns the registered clients at call time. Additions and
// removals after the call begins do not affect the returned slice.
func (r *registry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// deliver enqueues a frame on the client's send channel without blocking.
// The read lock is held for the duration of the send so the channel cannot
// be closed mid-send by a concurrent removal. A false return means the
// client is gone or its buffer is full; the caller decides what to do.
func (r *registry) deliver(c *Client, frame []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.clients[c]; !exists || c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
