package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/basnijholt/kernelchat/kernel/model"
)

const anthropicDefaultMaxOutputTokens = 4096

type anthropicLLM struct {
	name                string
	provider            string
	client              anthropic.Client
	maxOutputTokens     int64
	contextWindowTokens int
}

func newAnthropic(cfg Config, token string) *anthropicLLM {
	opts := []aoption.RequestOption{aoption.WithAPIKey(token)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, aoption.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, aoption.WithRequestTimeout(cfg.Timeout))
	}
	maxOut := int64(cfg.MaxOutputTok)
	if maxOut <= 0 {
		maxOut = anthropicDefaultMaxOutputTokens
	}
	return &anthropicLLM{
		name:                cfg.Model,
		provider:            cfg.Provider,
		client:              anthropic.NewClient(opts...),
		maxOutputTokens:     maxOut,
		contextWindowTokens: cfg.ContextWindowTokens,
	}
}

func (l *anthropicLLM) Name() string {
	return l.name
}

func (l *anthropicLLM) ContextWindowTokens() int {
	return l.contextWindowTokens
}

func (l *anthropicLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if req == nil {
			yield(nil, fmt.Errorf("model: request is nil"))
			return
		}
		system, msgs := toAnthropicMessages(req.Messages)
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(l.name),
			MaxTokens: l.maxOutputTokens,
			Messages:  msgs,
			Tools:     toAnthropicTools(req.Tools),
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		msg, err := l.client.Messages.New(ctx, params)
		if err != nil {
			yield(nil, err)
			return
		}
		out, err := anthropicMessageToKernel(msg)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(&model.Response{
			Message:      out,
			TurnComplete: true,
			Model:        string(msg.Model),
			Provider:     l.provider,
			Usage: model.Usage{
				PromptTokens:     int(msg.Usage.InputTokens),
				CompletionTokens: int(msg.Usage.OutputTokens),
				TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			},
		}, nil)
	}
}

// toAnthropicMessages collapses system messages into one instruction
// block and maps the rest onto the messages-API turn shapes.
func toAnthropicMessages(messages []model.Message) (string, []anthropic.MessageParam) {
	var systemLines []string
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			if text := strings.TrimSpace(m.Text); text != "" {
				systemLines = append(systemLines, text)
			}
			continue
		}
		if m.ToolResponse != nil {
			raw, _ := json.Marshal(m.ToolResponse.Result)
			_, isError := m.ToolResponse.Result["error"]
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolResponse.ID, string(raw), isError),
			))
			continue
		}
		if m.Role == model.RoleAssistant {
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			}
			for _, c := range m.ToolCalls {
				args := c.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, args, c.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			continue
		}
		if m.Text == "" {
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}
	return strings.Join(systemLines, "\n\n"), out
}

func toAnthropicTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: "object"}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = schemaRequiredNames(t.Parameters["required"])
		param := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func schemaRequiredNames(raw any) []string {
	switch value := raw.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, one := range value {
			if name, ok := one.(string); ok {
				out = append(out, name)
			}
		}
		return out
	default:
		return nil
	}
}

func anthropicMessageToKernel(msg *anthropic.Message) (model.Message, error) {
	out := model.Message{Role: model.RoleAssistant}
	var text strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return model.Message{}, fmt.Errorf("model: decode tool input for %q: %w", b.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Args: args,
			})
		}
	}
	out.Text = text.String()
	return out, nil
}
