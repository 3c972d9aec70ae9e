// Package store implements the append-only in-memory message log that backs
// the chat room.
package store

import (
	"errors"
	"fmt"
	"time"
)

// Limits enforced on trimmed input at append time.
const (
	MaxUsernameLen = 50
	MaxBodyLen     = 500
)

// Message is a single chat message as stored in the log and serialized on
// the wire. IDs are assigned by the log and never reused.
type Message struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrNotFound is returned by Log.Get for IDs that were never assigned.
var ErrNotFound = errors.New("message not found")

// ValidationError reports a rejected username or body. Validation happens
// once, at append time; callers report the error back to the submitter and
// carry on.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
