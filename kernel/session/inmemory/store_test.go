package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

func TestStore_AppendAndList(t *testing.T) {
	store := New()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendEvent(context.Background(), sess, &session.Event{
		ID:      "e1",
		Message: model.Message{Role: model.RoleUser, Text: "hi"},
	}); err != nil {
		t.Fatal(err)
	}
	events, err := store.ListEvents(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestStore_ThreadIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()
	a := &session.Session{AppName: "app", UserID: "u", ID: "a"}
	b := &session.Session{AppName: "app", UserID: "u", ID: "b"}
	for _, s := range []*session.Session{a, b} {
		if _, err := store.GetOrCreate(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AppendEvent(ctx, a, &session.Event{ID: "only-a"}); err != nil {
		t.Fatal(err)
	}
	events, err := store.ListEvents(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected thread b history to be empty, got %d events", len(events))
	}
}

func TestStore_PendingCallRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}

	pc, err := store.PendingCall(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if pc != nil {
		t.Fatal("expected no pending call on a fresh thread")
	}

	want := &session.PendingCall{
		Call:        model.ToolCall{ID: "call-1", Name: "execute_code", Args: map[string]any{"code": "x := 1"}},
		Reason:      "requires approval",
		RequestedAt: time.Now().UTC(),
	}
	if err := store.SetPendingCall(ctx, sess, want); err != nil {
		t.Fatal(err)
	}
	got, err := store.PendingCall(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Call.ID != "call-1" || got.Call.Name != "execute_code" {
		t.Fatalf("unexpected pending call: %+v", got)
	}

	if err := store.ClearPendingCall(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, err = store.PendingCall(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected pending call cleared, got %+v", got)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}
	ev := &session.Event{ID: "e1", Message: model.Message{Role: model.RoleUser, Text: "hi"}}
	if err := store.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatal(err)
	}
	ev.Message.Text = "mutated after append"

	events, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if events[0].Message.Text != "hi" {
		t.Fatalf("store shared memory with caller: %q", events[0].Message.Text)
	}
	events[0].Message.Text = "mutated after list"
	again, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Message.Text != "hi" {
		t.Fatalf("store shared memory with reader: %q", again[0].Message.Text)
	}
}

func TestStore_EventCopiesAreDeep(t *testing.T) {
	store := New()
	ctx := context.Background()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}
	ev := &session.Event{
		ID: "e1",
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCall{{ID: "c1", Name: "execute_code", Args: map[string]any{"code": "x := 1"}}},
		},
	}
	if err := store.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatal(err)
	}
	ev.Message.ToolCalls[0].Args["code"] = "mutated after append"

	events, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if got := events[0].Message.ToolCalls[0].Args["code"]; got != "x := 1" {
		t.Fatalf("store shared call args with caller: %q", got)
	}
	events[0].Message.ToolCalls[0].Args["code"] = "mutated after list"
	again, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if got := again[0].Message.ToolCalls[0].Args["code"]; got != "x := 1" {
		t.Fatalf("store shared call args with reader: %q", got)
	}
}

func TestStore_ToolResultCopiesAreDeep(t *testing.T) {
	store := New()
	ctx := context.Background()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}
	ev := &session.Event{
		ID: "e1",
		Message: model.Message{
			Role: model.RoleTool,
			ToolResponse: &model.ToolResponse{
				ID:     "c1",
				Name:   "execute_code",
				Result: map[string]any{"new_names": []string{"x"}, "error": map[string]any{"kind": "Panic"}},
			},
		},
	}
	if err := store.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatal(err)
	}

	events, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	res := events[0].Message.ToolResponse.Result
	res["new_names"].([]string)[0] = "tampered"
	res["error"].(map[string]any)["kind"] = "tampered"

	again, err := store.ListEvents(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	fresh := again[0].Message.ToolResponse.Result
	if fresh["new_names"].([]string)[0] != "x" {
		t.Fatalf("store shared result slice with reader: %v", fresh["new_names"])
	}
	if fresh["error"].(map[string]any)["kind"] != "Panic" {
		t.Fatalf("store shared nested result map with reader: %v", fresh["error"])
	}
}

func TestStore_PendingCallCopiesAreDeep(t *testing.T) {
	store := New()
	ctx := context.Background()
	sess := &session.Session{AppName: "app", UserID: "u", ID: "t1"}
	if _, err := store.GetOrCreate(ctx, sess); err != nil {
		t.Fatal(err)
	}
	pc := &session.PendingCall{
		Call:   model.ToolCall{ID: "c1", Name: "execute_code", Args: map[string]any{"code": "x := 1"}},
		Reason: "requires approval",
	}
	if err := store.SetPendingCall(ctx, sess, pc); err != nil {
		t.Fatal(err)
	}
	pc.Call.Args["code"] = "mutated after set"

	got, err := store.PendingCall(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if got.Call.Args["code"] != "x := 1" {
		t.Fatalf("store shared pending args with caller: %v", got.Call.Args)
	}
	got.Call.Args["code"] = "mutated after get"
	again, err := store.PendingCall(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	if again.Call.Args["code"] != "x := 1" {
		t.Fatalf("store shared pending args with reader: %v", again.Call.Args)
	}
}

func TestStore_UnknownSession(t *testing.T) {
	store := New()
	ctx := context.Background()
	missing := &session.Session{AppName: "app", UserID: "u", ID: "nope"}
	if err := store.AppendEvent(ctx, missing, &session.Event{ID: "e1"}); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.ListEvents(ctx, missing); err != session.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
