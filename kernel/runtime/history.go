package runtime

import (
	"fmt"
	"strings"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/session"
)

const uiOnlyResultKeyPrefix = "_ui_"
const toolResultMetadataKey = "metadata"

// toMessages flattens transcript events into model context, hiding
// UI-only tool-result keys from the model.
func toMessages(events []*session.Event, systemPrompt string) []model.Message {
	out := make([]model.Message, 0, len(events)+1)
	if systemPrompt != "" {
		out = append(out, model.Message{Role: model.RoleSystem, Text: systemPrompt})
	}
	for _, ev := range events {
		if ev == nil {
			continue
		}
		msg := ev.Message
		if msg.ToolResponse != nil {
			resp := *msg.ToolResponse
			resp.Result = sanitizeToolResultForModel(resp.Result)
			msg.ToolResponse = &resp
		}
		out = append(out, msg)
	}
	return out
}

func sanitizeToolResultForModel(result map[string]any) map[string]any {
	if len(result) == 0 {
		return result
	}
	out := make(map[string]any, len(result))
	for key, value := range result {
		if isModelHiddenToolResultKey(key) {
			continue
		}
		out[key] = sanitizeToolResultValue(value)
	}
	return out
}

func isModelHiddenToolResultKey(key string) bool {
	trimmed := strings.TrimSpace(key)
	if strings.HasPrefix(trimmed, uiOnlyResultKeyPrefix) {
		return true
	}
	return strings.EqualFold(trimmed, toolResultMetadataKey)
}

func sanitizeToolResultValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return sanitizeToolResultForModel(typed)
	case []any:
		out := make([]any, 0, len(typed))
		for _, one := range typed {
			out = append(out, sanitizeToolResultValue(one))
		}
		return out
	default:
		return value
	}
}

func ensureToolResultMetadata(result map[string]any) map[string]any {
	if result == nil {
		return map[string]any{toolResultMetadataKey: map[string]any{}}
	}
	if _, exists := result[toolResultMetadataKey]; !exists {
		result[toolResultMetadataKey] = map[string]any{}
		return result
	}
	if _, ok := result[toolResultMetadataKey].(map[string]any); ok {
		return result
	}
	result[toolResultMetadataKey] = map[string]any{
		"raw_value": fmt.Sprint(result[toolResultMetadataKey]),
	}
	return result
}

// annotateToolResultMetadata records a stable error code on the result
// so callers can branch on failure kind without parsing messages.
func annotateToolResultMetadata(result map[string]any, execErr error) map[string]any {
	if execErr == nil {
		return result
	}
	result = ensureToolResultMetadata(result)
	meta, ok := result[toolResultMetadataKey].(map[string]any)
	if !ok {
		return result
	}
	if code := host.ErrorCodeOf(execErr); strings.TrimSpace(string(code)) != "" {
		meta["error_code"] = string(code)
	}
	return result
}
