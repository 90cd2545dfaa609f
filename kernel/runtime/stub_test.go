package runtime

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/policy"
	"github.com/basnijholt/kernelchat/kernel/session/inmemory"
	"github.com/basnijholt/kernelchat/kernel/tool"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

// scriptedLLM replays a fixed sequence of responses, one per Generate call.
type scriptedLLM struct {
	responses []*model.Response
	calls     int
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	_ = ctx
	_ = req
	return func(yield func(*model.Response, error) bool) {
		if s.calls >= len(s.responses) {
			yield(nil, fmt.Errorf("scripted llm: script exhausted after %d calls", s.calls))
			return
		}
		resp := s.responses[s.calls]
		s.calls++
		yield(resp, nil)
	}
}

// blockingLLM parks its first Generate call until released or the
// context ends; later calls answer with the configured text.
type blockingLLM struct {
	mu      sync.Mutex
	calls   int
	text    string
	started chan struct{}
	release chan struct{}
}

func newBlockingLLM(text string) *blockingLLM {
	return &blockingLLM{
		text:    text,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingLLM) Name() string { return "blocking" }

func (b *blockingLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	_ = req
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	return func(yield func(*model.Response, error) bool) {
		if !first {
			yield(textResponse(b.text), nil)
			return
		}
		select {
		case b.started <- struct{}{}:
		default:
		}
		select {
		case <-b.release:
			yield(textResponse("released"), nil)
		case <-ctx.Done():
			yield(nil, ctx.Err())
		}
	}
}

func textResponse(text string) *model.Response {
	return &model.Response{
		Message:      model.Message{Role: model.RoleAssistant, Text: text},
		TurnComplete: true,
	}
}

func callResponse(calls ...model.ToolCall) *model.Response {
	return &model.Response{
		Message:      model.Message{Role: model.RoleAssistant, ToolCalls: calls},
		TurnComplete: true,
	}
}

// stubTool is a scriptable tool with a declared capability.
type stubTool struct {
	name   string
	cap    toolcap.Capability
	params map[string]any
	run    func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub " + t.name }

func (t *stubTool) Declaration() model.ToolDefinition {
	return model.ToolDefinition{Name: t.name, Description: t.Description(), Parameters: t.params}
}

func (t *stubTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.run == nil {
		return map[string]any{"ok": true}, nil
	}
	return t.run(ctx, args)
}

func (t *stubTool) Capability() toolcap.Capability { return t.cap }

func safeStubTool(name string, run func(ctx context.Context, args map[string]any) (map[string]any, error)) *stubTool {
	return &stubTool{
		name: name,
		cap: toolcap.Capability{
			Risk:       toolcap.RiskTierSafe,
			Operations: []toolcap.Operation{toolcap.OperationNamespaceRead},
		},
		run: run,
	}
}

func gatedStubTool(name string, run func(ctx context.Context, args map[string]any) (map[string]any, error)) *stubTool {
	return &stubTool{
		name: name,
		cap: toolcap.Capability{
			Risk:       toolcap.RiskTierRequiresApproval,
			Operations: []toolcap.Operation{toolcap.OperationExec},
		},
		run: run,
	}
}

func newTestOrchestrator(t *testing.T, llm model.LLM, hooks []policy.Hook, tools ...tool.Tool) *Orchestrator {
	t.Helper()
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		t.Fatal(err)
	}
	orch, err := New(Config{
		Store:    inmemory.New(),
		Registry: registry,
		Model:    llm,
		Policies: hooks,
	})
	if err != nil {
		t.Fatal(err)
	}
	return orch
}
