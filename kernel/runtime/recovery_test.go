package runtime

import (
	"testing"
	"time"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

func assistantCallEvent(id string, calls ...model.ToolCall) *session.Event {
	return &session.Event{
		ID:   id,
		Time: time.Now(),
		Message: model.Message{
			Role:      model.RoleAssistant,
			ToolCalls: calls,
		},
	}
}

func toolResultEvent(callID string) *session.Event {
	return &session.Event{
		ID:   "resp_" + callID,
		Time: time.Now(),
		Message: model.Message{
			Role: model.RoleTool,
			ToolResponse: &model.ToolResponse{
				ID:     callID,
				Name:   "get_variables",
				Result: map[string]any{"ok": true},
			},
		},
	}
}

func TestOutstandingCalls_AnsweredCallsExcluded(t *testing.T) {
	events := []*session.Event{
		assistantCallEvent("a1",
			model.ToolCall{ID: "c1", Name: "get_variables", Args: map[string]any{}},
			model.ToolCall{ID: "c2", Name: "execute_code", Args: map[string]any{"code": "x := 1"}},
			model.ToolCall{ID: "c3", Name: "kernel_info", Args: map[string]any{}},
		),
		toolResultEvent("c1"),
	}
	out := outstandingCalls(events)
	if len(out) != 2 {
		t.Fatalf("expected 2 outstanding calls, got %d", len(out))
	}
	if out[0].ID != "c2" || out[1].ID != "c3" {
		t.Fatalf("unexpected order: %v, %v", out[0].ID, out[1].ID)
	}
}

func TestOutstandingCalls_EmptyTranscript(t *testing.T) {
	if got := outstandingCalls(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBuildRecoveryEvents_ClosesDanglingCalls(t *testing.T) {
	events := []*session.Event{
		assistantCallEvent("a1", model.ToolCall{ID: "c1", Name: "execute_code", Args: map[string]any{"code": "x"}}),
	}
	recovery := buildRecoveryEvents(events)
	if len(recovery) != 1 {
		t.Fatalf("expected one recovery event, got %d", len(recovery))
	}
	resp := recovery[0].Message.ToolResponse
	if resp == nil || resp.ID != "c1" {
		t.Fatalf("unexpected recovery response %+v", resp)
	}
	if interrupted, _ := resp.Result["interrupted"].(bool); !interrupted {
		t.Fatalf("expected interrupted marker, got %v", resp.Result)
	}
	if kind, _ := recovery[0].Meta[metaKind].(string); kind != metaKindRecovery {
		t.Fatalf("expected recovery meta kind, got %q", kind)
	}
}

func TestBuildRecoveryEvents_NoneWhenAllAnswered(t *testing.T) {
	events := []*session.Event{
		assistantCallEvent("a1", model.ToolCall{ID: "c1", Name: "get_variables", Args: map[string]any{}}),
		toolResultEvent("c1"),
	}
	if got := buildRecoveryEvents(events); got != nil {
		t.Fatalf("expected no recovery events, got %d", len(got))
	}
}

func TestLifecycleFromEvent_RoundTrip(t *testing.T) {
	sess := &session.Session{ID: "t1"}
	ev := lifecycleEvent(sess, RunLifecycleStatusWaitingApproval, "start_turn", nil)
	info, ok := LifecycleFromEvent(ev)
	if !ok {
		t.Fatal("expected lifecycle event to parse")
	}
	if info.Status != RunLifecycleStatusWaitingApproval || info.Phase != "start_turn" {
		t.Fatalf("unexpected info %+v", info)
	}
	if isLifecycleEvent(nil) {
		t.Fatal("nil event is not a lifecycle event")
	}
}
