package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// openaiCompatible implements agent.LLMProvider against any wire-compatible
// chat-completions endpoint (OpenAI itself, or Mistral via base-URL
// override - see mistral.go).
type openaiCompatible struct {
	BaseProvider
	client       *openai.Client
	providerName string
	defaultModel string
}

func newOpenAICompatible(name, apiKey, baseURL, defaultModel string, maxRetries int, retryDelay time.Duration) *openaiCompatible {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = baseURL
	}
	return &openaiCompatible{
		BaseProvider: NewBaseProvider(name, maxRetries, retryDelay),
		client:       openai.NewClientWithConfig(cfg),
		providerName: name,
		defaultModel: defaultModel,
	}
}

func (p *openaiCompatible) Name() string { return p.providerName }

func (p *openaiCompatible) SupportsTools() bool { return true }

func (p *openaiCompatible) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// Complete issues a streaming chat-completion request, retrying the whole
// turn once on a transient failure.
func (p *openaiCompatible) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New(p.providerName + ": API key not configured")
	}

	messages, err := convertToOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to convert messages: %w", p.providerName, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.getModel(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		tools, err := convertToOpenAITools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to convert tools: %w", p.providerName, err)
		}
		chatReq.Tools = tools
	}

	var stream *openai.ChatCompletionStream
	err = p.Retry(ctx, p.isRetryableError, func() error {
		s, streamErr := p.client.CreateChatCompletionStream(ctx, chatReq)
		if streamErr != nil {
			return streamErr
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, p.wrapError(err, chatReq.Model)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (p *openaiCompatible) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := map[int]*models.ToolUseBlock{}
	flushToolCalls := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &agent.CompletionChunk{ToolCall: tc}
			}
		}
		toolCalls = map[int]*models.ToolUseBlock{}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				chunks <- &agent.CompletionChunk{Done: true}
				return
			}
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, "")}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if resp.Usage != nil {
			chunks <- &agent.CompletionChunk{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
		}
		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			cur, ok := toolCalls[index]
			if !ok {
				cur = &models.ToolUseBlock{}
				toolCalls[index] = cur
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				cur.Input = json.RawMessage(string(cur.Input) + tc.Function.Arguments)
			}
		}
		if choice.FinishReason == "tool_calls" {
			flushToolCalls()
		}
	}
}

// convertToOpenAIMessages re-pairs block history into the
// system/user/assistant/tool message convention: a tool_result block becomes
// its own role="tool" message, while tool_use blocks attach to the assistant
// message's ToolCalls array.
func convertToOpenAIMessages(messages []models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		} else if msg.Role == models.RoleSystem {
			role = openai.ChatMessageRoleSystem
		}

		var parts []openai.ChatMessagePart
		var text string
		var toolCalls []openai.ToolCall

		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case models.TextBlock:
				text += v.Text
			case models.ImageBlock:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", v.MediaType, encodeBase64(v.Bytes)),
					},
				})
			case models.ToolUseBlock:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   v.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      v.Name,
						Arguments: string(v.Input),
					},
				})
			case models.ToolResultBlock:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    v.Content,
					ToolCallID: v.ToolUseID,
				})
			}
		}

		if len(parts) > 0 {
			if text != "" {
				parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, parts...)
			}
			out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
			continue
		}
		if text != "" || len(toolCalls) > 0 {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: text, ToolCalls: toolCalls})
		}
	}
	return out, nil
}

func convertToOpenAITools(tools []models.ToolDefinition) ([]openai.Tool, error) {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
			}
		} else {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out, nil
}

func (p *openaiCompatible) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (p *openaiCompatible) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	pe := NewProviderError(p.providerName, model, err)
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe = pe.WithStatus(apiErr.HTTPStatusCode)
	}
	return pe
}

// OpenAIProvider adapts OpenAI's chat-completions API to agent.LLMProvider.
type OpenAIProvider struct {
	*openaiCompatible
}

// NewOpenAIProvider builds an OpenAI provider. baseURL may be empty to use
// OpenAI's default endpoint (OPENAI_BASE_URL env override per the external
// interface contract).
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	return &OpenAIProvider{newOpenAICompatible("openai", apiKey, baseURL, "gpt-4o", 3, time.Second)}
}

func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4o-mini", Name: "GPT-4o Mini", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", ContextSize: 16385, SupportsVision: false},
	}
}
