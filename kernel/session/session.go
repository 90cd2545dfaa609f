package session

import (
	"context"
	"errors"
	"time"

	"github.com/basnijholt/kernelchat/kernel/model"
)

var ErrSessionNotFound = errors.New("session: not found")

// Session identifies a conversation thread.
type Session struct {
	AppName string
	UserID  string
	ID      string
}

// Event is the persisted unit of conversation history.
type Event struct {
	ID        string
	SessionID string
	Time      time.Time
	Message   model.Message
	Meta      map[string]any
}

// PendingCall is the checkpoint for a tool call suspended awaiting
// approval. A thread has at most one; its presence is the single source
// of truth for "this thread is waiting on a decision".
type PendingCall struct {
	Call        model.ToolCall
	Reason      string
	RequestedAt time.Time
}

// Store provides thread-keyed conversation persistence. Implementations
// return deep copies; callers never share memory with store internals.
type Store interface {
	GetOrCreate(context.Context, *Session) (*Session, error)
	AppendEvent(context.Context, *Session, *Event) error
	ListEvents(context.Context, *Session) ([]*Event, error)

	// SetPendingCall records the approval checkpoint, replacing any
	// existing one. PendingCall returns nil when nothing is suspended.
	SetPendingCall(context.Context, *Session, *PendingCall) error
	PendingCall(context.Context, *Session) (*PendingCall, error)
	ClearPendingCall(context.Context, *Session) error
}
