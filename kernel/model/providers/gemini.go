package providers

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/basnijholt/kernelchat/kernel/model"
)

type geminiLLM struct {
	name                string
	provider            string
	apiKey              string
	baseURL             string
	contextWindowTokens int
	maxOutputTokens     int32

	once    sync.Once
	client  *genai.Client
	initErr error
}

func newGemini(cfg Config, token string) *geminiLLM {
	return &geminiLLM{
		name:                cfg.Model,
		provider:            cfg.Provider,
		apiKey:              token,
		baseURL:             strings.TrimSpace(cfg.BaseURL),
		contextWindowTokens: cfg.ContextWindowTokens,
		maxOutputTokens:     int32(cfg.MaxOutputTok),
	}
}

func (l *geminiLLM) Name() string {
	return l.name
}

func (l *geminiLLM) ContextWindowTokens() int {
	return l.contextWindowTokens
}

// ensureClient builds the genai client on first use; the factory has no
// context to hand the SDK at construction time.
func (l *geminiLLM) ensureClient(ctx context.Context) (*genai.Client, error) {
	l.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:  l.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if l.baseURL != "" {
			cfg.HTTPOptions.BaseURL = l.baseURL
		}
		l.client, l.initErr = genai.NewClient(ctx, cfg)
	})
	return l.client, l.initErr
}

func (l *geminiLLM) Generate(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		if req == nil {
			yield(nil, fmt.Errorf("model: request is nil"))
			return
		}
		client, err := l.ensureClient(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		system, contents := toGeminiContents(req.Messages)
		config := &genai.GenerateContentConfig{}
		if l.maxOutputTokens > 0 {
			config.MaxOutputTokens = l.maxOutputTokens
		}
		if system != "" {
			config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		config.Tools = toGeminiTools(req.Tools)
		resp, err := client.Models.GenerateContent(ctx, l.name, contents, config)
		if err != nil {
			yield(nil, err)
			return
		}
		msg, usage, err := geminiResponseToMessage(resp)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(&model.Response{
			Message:      msg,
			TurnComplete: true,
			Model:        l.name,
			Provider:     l.provider,
			Usage:        usage,
		}, nil)
	}
}

// toGeminiContents collapses system messages into one instruction text
// and maps the rest onto user/model contents with function parts.
func toGeminiContents(messages []model.Message) (string, []*genai.Content) {
	var systemLines []string
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			if text := strings.TrimSpace(m.Text); text != "" {
				systemLines = append(systemLines, text)
			}
			continue
		}
		if m.ToolResponse != nil {
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{
					genai.NewPartFromFunctionResponse(m.ToolResponse.Name, m.ToolResponse.Result),
				},
			})
			continue
		}
		if m.Role == model.RoleAssistant {
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Text != "" {
				parts = append(parts, genai.NewPartFromText(m.Text))
			}
			for _, c := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   c.ID,
						Name: c.Name,
						Args: c.Args,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
			continue
		}
		if m.Text == "" {
			continue
		}
		out = append(out, genai.NewContentFromText(m.Text, genai.RoleUser))
	}
	return strings.Join(systemLines, "\n\n"), out
}

func toGeminiTools(tools []model.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiResponseToMessage(resp *genai.GenerateContentResponse) (model.Message, model.Usage, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.Message{}, model.Usage{}, fmt.Errorf("model: empty candidates")
	}
	var usage model.Usage
	if meta := resp.UsageMetadata; meta != nil {
		usage = model.Usage{
			PromptTokens:     int(meta.PromptTokenCount),
			CompletionTokens: int(meta.CandidatesTokenCount),
			TotalTokens:      int(meta.TotalTokenCount),
		}
	}
	out := model.Message{Role: model.RoleAssistant}
	content := resp.Candidates[0].Content
	if content == nil {
		return out, usage, nil
	}
	var text strings.Builder
	for i, part := range content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			id := fc.ID
			if id == "" {
				// Gemini often omits call ids; synthesize a stable one so
				// responses can be matched back to calls.
				id = fmt.Sprintf("%s_%d", fc.Name, i)
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   id,
				Name: fc.Name,
				Args: args,
			})
		}
	}
	out.Text = text.String()
	return out, usage, nil
}
