package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// draft is the shape Append validates after trimming.
type draft struct {
	Username string `validate:"required,max=50"`
	Body     string `validate:"required,max=500"`
}

// Log is the ordered, append-only store of chat messages. IDs start at 1 and
// increase by exactly one per successful append; timestamps never decrease
// across successive IDs. The hub is the only writer.
type Log struct {
	mu       sync.RWMutex
	messages []Message
	lastTS   time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append validates the trimmed username and body, assigns the next ID and a
// timestamp, and stores the message. A *ValidationError leaves the log
// untouched; the ID counter does not advance on rejection.
func (l *Log) Append(username, body string) (Message, error) {
	username = strings.TrimSpace(username)
	body = strings.TrimSpace(body)

	if err := validate.Struct(draft{Username: username, Body: body}); err != nil {
		return Message{}, asValidationError(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().UTC()
	if ts.Before(l.lastTS) {
		// Clamp so ID order and timestamp order never disagree, even if
		// the wall clock steps backwards.
		ts = l.lastTS
	}
	l.lastTS = ts

	msg := Message{
		ID:        int64(len(l.messages)) + 1,
		Username:  username,
		Body:      body,
		Timestamp: ts,
	}
	l.messages = append(l.messages, msg)
	return msg, nil
}

// Snapshot returns every message in ascending ID order. The returned slice
// is a copy; it reflects every append that completed before the call began.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Get returns the message with the given ID, or ErrNotFound.
func (l *Log) Get(id int64) (Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if id < 1 || id > int64(len(l.messages)) {
		return Message{}, ErrNotFound
	}
	return l.messages[id-1], nil
}

// Len reports the number of stored messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func asValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "message", Reason: err.Error()}
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case "max":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("exceeds %s characters", fe.Param())}
	}
	return &ValidationError{Field: field, Reason: "is invalid"}
}
