package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_AppendAndListOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, s); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"e1", "e2", "e3"} {
		if err := store.AppendEvent(ctx, s, &session.Event{
			ID:      id,
			Message: model.Message{Role: model.RoleUser, Text: id},
		}); err != nil {
			t.Fatal(err)
		}
	}
	events, err := store.ListEvents(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, id := range []string{"e1", "e2", "e3"} {
		if events[i].ID != id {
			t.Fatalf("event %d out of order: got %s want %s", i, events[i].ID, id)
		}
	}
}

func TestStore_UnknownSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	missing := &session.Session{AppName: "app", UserID: "u", ID: "missing"}
	if err := store.AppendEvent(ctx, missing, &session.Event{ID: "e1"}); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.ListEvents(ctx, missing); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_PendingCallRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := store.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected no pending call on a fresh thread")
	}

	pc := &session.PendingCall{
		Call:   model.ToolCall{ID: "call-1", Name: "execute_code", Args: map[string]any{"code": "x := 1"}},
		Reason: "requires approval",
	}
	if err := store.SetPendingCall(ctx, s, pc); err != nil {
		t.Fatal(err)
	}
	got, err = store.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Call.Name != "execute_code" {
		t.Fatalf("unexpected pending call: %+v", got)
	}

	replacement := &session.PendingCall{Call: model.ToolCall{ID: "call-2", Name: "execute_code"}}
	if err := store.SetPendingCall(ctx, s, replacement); err != nil {
		t.Fatal(err)
	}
	got, err = store.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Call.ID != "call-2" {
		t.Fatalf("expected replacement pending call, got %+v", got)
	}

	if err := store.ClearPendingCall(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err = store.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected pending call cleared, got %+v", got)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendEvent(ctx, s, &session.Event{
		ID:      "e1",
		Message: model.Message{Role: model.RoleUser, Text: "hi"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	events, err := reopened.ListEvents(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Message.Text != "hi" {
		t.Fatalf("unexpected events after reopen: %v", events)
	}
}
