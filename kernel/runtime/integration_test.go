package runtime

import (
	"context"
	"reflect"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/host/yaegihost"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session/inmemory"
	"github.com/basnijholt/kernelchat/kernel/tool"
	"github.com/basnijholt/kernelchat/kernel/tool/builtin/kernelspace"
)

// The approved gated run must report the same namespace delta as a
// direct tool invocation with identical code.
func TestApprovedExecutionMatchesDirectToolRun(t *testing.T) {
	const code = "total := 41 + 1\ntotal"

	directHost, err := yaegihost.New()
	if err != nil {
		t.Fatal(err)
	}
	defer directHost.Close()
	direct, err := kernelspace.NewExecuteCode(directHost).Run(context.Background(), map[string]any{"code": code})
	if err != nil {
		t.Fatal(err)
	}

	orchHost, err := yaegihost.New()
	if err != nil {
		t.Fatal(err)
	}
	defer orchHost.Close()
	registry, err := tool.NewRegistry(kernelspace.NewExecuteCode(orchHost))
	if err != nil {
		t.Fatal(err)
	}
	llm := &scriptedLLM{responses: []*model.Response{
		callResponse(model.ToolCall{ID: "c1", Name: "execute_code", Args: map[string]any{"code": code}}),
		textResponse("the total is 42"),
	}}
	orch, err := New(Config{
		Store:    inmemory.New(),
		Registry: registry,
		Model:    llm,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	res, err := orch.StartTurn(ctx, "t-roundtrip", "compute the total")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != TurnResultInterrupted {
		t.Fatalf("expected interrupt, got %+v", res)
	}
	res, err = orch.Resume(ctx, "t-roundtrip", DecisionApproved)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Text != "the total is 42" {
		t.Fatalf("unexpected final result %+v", res)
	}

	events := transcriptFor(t, orch, "t-roundtrip")
	var gated map[string]any
	for _, ev := range events {
		if ev.Message.ToolResponse != nil && ev.Message.ToolResponse.ID == "c1" {
			gated = ev.Message.ToolResponse.Result
		}
	}
	if gated == nil {
		t.Fatal("expected a tool result for the gated call")
	}
	if !reflect.DeepEqual(gated["new_names"], direct["new_names"]) {
		t.Fatalf("new names diverge: turn=%v direct=%v", gated["new_names"], direct["new_names"])
	}
	if gated["value"] != direct["value"] {
		t.Fatalf("values diverge: turn=%v direct=%v", gated["value"], direct["value"])
	}
	if gated["success"] != true {
		t.Fatalf("expected success, got %v", gated)
	}
}
