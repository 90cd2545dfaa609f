package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

func TestStore_AppendAndList(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	s := &session.Session{AppName: "app", UserID: "u", ID: "s"}
	if _, err := store.GetOrCreate(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	ev := &session.Event{ID: "e1", Message: model.Message{Role: model.RoleUser, Text: "hi"}}
	if err := store.AppendEvent(context.Background(), s, ev); err != nil {
		t.Fatal(err)
	}
	events, err := store.ListEvents(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestStore_ListEvents_CompatibleWithConcatenatedJSONObjects(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	s := &session.Session{AppName: "app", UserID: "u", ID: "s"}
	if _, err := store.GetOrCreate(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	eventsPath := filepath.Join(root, "app", "u", "s", "events.jsonl")
	raw := `{"ID":"e1","SessionID":"s","Message":{"Role":"user","Text":"a"}}{"ID":"e2","SessionID":"s","Message":{"Role":"assistant","Text":"b"}}`
	if err := os.WriteFile(eventsPath, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListEvents(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != "e1" || events[1].ID != "e2" {
		t.Fatalf("unexpected event ids: %s, %s", events[0].ID, events[1].ID)
	}
}

func TestStore_PendingCallSurvivesReopen(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s := &session.Session{AppName: "app", UserID: "u", ID: "s"}
	if _, err := store.GetOrCreate(ctx, s); err != nil {
		t.Fatal(err)
	}
	pc := &session.PendingCall{
		Call:   model.ToolCall{ID: "call-1", Name: "execute_code", Args: map[string]any{"code": "x := 1"}},
		Reason: "requires approval",
	}
	if err := store.SetPendingCall(ctx, s, pc); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Call.ID != "call-1" {
		t.Fatalf("expected pending call after reopen, got %+v", got)
	}
	if err := reopened.ClearPendingCall(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err = reopened.PendingCall(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected pending call cleared, got %+v", got)
	}
}

func TestStore_ClearPendingCallIsIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s := &session.Session{AppName: "app", UserID: "u", ID: "s"}
	if _, err := store.GetOrCreate(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := store.ClearPendingCall(ctx, s); err != nil {
		t.Fatalf("clearing an absent pending call should succeed, got %v", err)
	}
}

func TestStore_SessionOnlyLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := NewWithOptions(root, Options{Layout: LayoutSessionOnly})
	if err != nil {
		t.Fatal(err)
	}
	s := &session.Session{AppName: "app", UserID: "u", ID: "s"}
	if _, err := store.GetOrCreate(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	ev := &session.Event{ID: "e1", Message: model.Message{Role: model.RoleUser, Text: "hi"}}
	if err := store.AppendEvent(context.Background(), s, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "s", "events.jsonl")); err != nil {
		t.Fatalf("expected session-only events path to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "app", "u", "s", "events.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("did not expect namespaced events path, err=%v", err)
	}
}

func TestStore_RejectsPathTraversalInSessionKeys(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	bad := &session.Session{AppName: "app", UserID: "u", ID: "../escape"}
	if _, err := store.GetOrCreate(context.Background(), bad); err == nil {
		t.Fatalf("expected path traversal session id to be rejected")
	}
	if err := store.AppendEvent(context.Background(), bad, &session.Event{
		ID:      "e1",
		Message: model.Message{Role: model.RoleUser, Text: "x"},
	}); err == nil {
		t.Fatalf("expected append with path traversal session id to fail")
	}
	if _, err := store.ListEvents(context.Background(), bad); err == nil {
		t.Fatalf("expected list with path traversal session id to fail")
	}
	if _, err := store.PendingCall(context.Background(), bad); err == nil {
		t.Fatalf("expected pending lookup with path traversal session id to fail")
	}
}
