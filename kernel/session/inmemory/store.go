package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

type key struct {
	app, user, id string
}

type entry struct {
	session *session.Session
	events  []*session.Event
	pending *session.PendingCall
}

// Store is a thread-safe in-memory session store.
type Store struct {
	mu   sync.RWMutex
	data map[key]*entry
}

func New() *Store {
	return &Store{data: make(map[key]*entry)}
}

func makeKey(s *session.Session) (key, error) {
	if s == nil || s.AppName == "" || s.UserID == "" || s.ID == "" {
		return key{}, fmt.Errorf("session: app_name, user_id and session_id are required")
	}
	return key{app: s.AppName, user: s.UserID, id: s.ID}, nil
}

func (s *Store) GetOrCreate(ctx context.Context, req *session.Session) (*session.Session, error) {
	_ = ctx
	k, err := makeKey(req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[k]; ok {
		cp := *e.session
		return &cp, nil
	}
	cp := *req
	s.data[k] = &entry{session: &cp}
	out := cp
	return &out, nil
}

func (s *Store) AppendEvent(ctx context.Context, req *session.Session, ev *session.Event) error {
	_ = ctx
	if ev == nil {
		return fmt.Errorf("session: event is nil")
	}
	k, err := makeKey(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[k]
	if !ok {
		return session.ErrSessionNotFound
	}
	e.events = append(e.events, copyEvent(ev))
	return nil
}

func (s *Store) ListEvents(ctx context.Context, req *session.Session) ([]*session.Event, error) {
	_ = ctx
	k, err := makeKey(req)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[k]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	out := make([]*session.Event, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, copyEvent(ev))
	}
	return out, nil
}

func (s *Store) SetPendingCall(ctx context.Context, req *session.Session, pc *session.PendingCall) error {
	_ = ctx
	if pc == nil {
		return fmt.Errorf("session: pending call is nil")
	}
	k, err := makeKey(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[k]
	if !ok {
		return session.ErrSessionNotFound
	}
	e.pending = copyPendingCall(pc)
	return nil
}

func (s *Store) PendingCall(ctx context.Context, req *session.Session) (*session.PendingCall, error) {
	_ = ctx
	k, err := makeKey(req)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[k]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if e.pending == nil {
		return nil, nil
	}
	return copyPendingCall(e.pending), nil
}

// copyEvent clones an event deeply enough that no map or slice is shared
// between store internals and callers. Scalars and copied containers keep
// their concrete types; values of other reference kinds are assumed
// immutable by convention.
func copyEvent(ev *session.Event) *session.Event {
	cp := *ev
	cp.Message = copyMessage(ev.Message)
	cp.Meta = copyArgMap(ev.Meta)
	return &cp
}

func copyMessage(m model.Message) model.Message {
	if len(m.ToolCalls) > 0 {
		calls := make([]model.ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			c.Args = copyArgMap(c.Args)
			calls[i] = c
		}
		m.ToolCalls = calls
	}
	if m.ToolResponse != nil {
		tr := *m.ToolResponse
		tr.Result = copyArgMap(tr.Result)
		m.ToolResponse = &tr
	}
	return m
}

func copyPendingCall(pc *session.PendingCall) *session.PendingCall {
	cp := *pc
	cp.Call.Args = copyArgMap(pc.Call.Args)
	return &cp
}

func copyArgMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyArgValue(v)
	}
	return out
}

func copyArgValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyArgMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyArgValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

func (s *Store) ClearPendingCall(ctx context.Context, req *session.Session) error {
	_ = ctx
	k, err := makeKey(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[k]
	if !ok {
		return session.ErrSessionNotFound
	}
	e.pending = nil
	return nil
}
