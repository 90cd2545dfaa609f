package runtime

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

const (
	metaKindRecovery = "recovery"
)

type danglingToolCall struct {
	EventIndex int
	ID         string
	Name       string
	Args       map[string]any
}

// danglingToolCalls scans the transcript for tool calls that never got a
// tool result, in request order. These are either calls a previous turn
// abandoned mid-flight or, on resume, the calls queued behind the one that
// suspended the turn.
func danglingToolCalls(events []*session.Event) []danglingToolCall {
	window := transcriptEvents(events)
	if len(window) == 0 {
		return nil
	}

	pending := map[string]danglingToolCall{}
	order := make([]string, 0, 8)

	for idx, ev := range window {
		if ev == nil {
			continue
		}
		if len(ev.Message.ToolCalls) > 0 {
			for _, call := range ev.Message.ToolCalls {
				if call.ID == "" || call.Name == "" {
					continue
				}
				if _, exists := pending[call.ID]; exists {
					continue
				}
				pending[call.ID] = danglingToolCall{
					EventIndex: idx,
					ID:         call.ID,
					Name:       call.Name,
					Args:       cloneMap(call.Args),
				}
				order = append(order, call.ID)
			}
		}
		if ev.Message.ToolResponse != nil && ev.Message.ToolResponse.ID != "" {
			delete(pending, ev.Message.ToolResponse.ID)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	sort.Slice(order, func(i, j int) bool {
		left, lok := pending[order[i]]
		right, rok := pending[order[j]]
		if !lok || !rok {
			return order[i] < order[j]
		}
		if left.EventIndex == right.EventIndex {
			return left.ID < right.ID
		}
		return left.EventIndex < right.EventIndex
	})

	out := make([]danglingToolCall, 0, len(order))
	for _, callID := range order {
		call, exists := pending[callID]
		if !exists {
			continue
		}
		out = append(out, call)
	}
	return out
}

// outstandingCalls rebuilds the unresolved tool-call queue from the
// transcript so a resumed turn picks up where the suspension left off.
func outstandingCalls(events []*session.Event) []model.ToolCall {
	dangling := danglingToolCalls(events)
	if len(dangling) == 0 {
		return nil
	}
	out := make([]model.ToolCall, 0, len(dangling))
	for _, call := range dangling {
		out = append(out, model.ToolCall{
			ID:   call.ID,
			Name: call.Name,
			Args: cloneMap(call.Args),
		})
	}
	return out
}

// buildRecoveryEvents closes out tool calls a crashed or abandoned turn
// left unanswered, so model history stays well formed for the next turn.
func buildRecoveryEvents(events []*session.Event) []*session.Event {
	dangling := danglingToolCalls(events)
	if len(dangling) == 0 {
		return nil
	}
	out := make([]*session.Event, 0, len(dangling))
	for _, call := range dangling {
		out = append(out, &session.Event{
			ID:   eventID(),
			Time: time.Now(),
			Message: model.Message{
				Role: model.RoleTool,
				ToolResponse: &model.ToolResponse{
					ID:   call.ID,
					Name: call.Name,
					Result: map[string]any{
						"error":       "tool call interrupted before completion",
						"interrupted": true,
					},
				},
			},
			Meta: map[string]any{
				metaKind: metaKindRecovery,
				metaKindRecovery: map[string]any{
					"type":         "dangling_tool_call",
					"tool_call_id": call.ID,
					"tool_name":    call.Name,
					"tool_args":    cloneMap(call.Args),
				},
			},
		})
	}
	return out
}

func cloneMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		out := make(map[string]any, len(input))
		for k, v := range input {
			out[k] = v
		}
		return out
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{
			"raw": fmt.Sprintf("%v", input),
		}
	}
	return out
}
