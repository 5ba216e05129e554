// Package providers implements LLM provider adapters for the agent runtime,
// one per wire dialect, all satisfying agent.LLMProvider.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// AnthropicProvider adapts the Anthropic Messages API to agent.LLMProvider.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider builds a provider from config, defaulting MaxRetries,
// RetryDelay, and DefaultModel when unset.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

// Complete issues a streaming Messages request, retrying the whole turn once
// with jitter on a transient failure per the provider error taxonomy.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks := make(chan *agent.CompletionChunk)

	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		err := p.Retry(ctx, p.isRetryableError, func() error {
			s, buildErr := p.createStream(ctx, req)
			if buildErr != nil {
				return buildErr
			}
			stream = s
			return nil
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, p.getModel(req.Model))}
			return
		}
		p.processStream(stream, chunks, p.getModel(req.Model))
	}()

	return chunks, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req *agent.CompletionRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// processStream decodes Anthropic SSE events into CompletionChunks, preserving
// arrival order and accumulating streamed tool-input JSON per block index.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	type pendingTool struct {
		id, name string
		input    strings.Builder
	}
	tools := map[int64]*pendingTool{}
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if tu := variant.ContentBlock.OfToolUse; tu != nil {
				tools[variant.Index] = &pendingTool{id: tu.ID, name: tu.Name}
			}
		case anthropic.ContentBlockDeltaEvent:
			if d := variant.Delta.OfTextDelta; d != nil {
				chunks <- &agent.CompletionChunk{Text: d.Text}
			}
			if d := variant.Delta.OfInputJSONDelta; d != nil {
				if t, ok := tools[variant.Index]; ok {
					t.input.WriteString(d.PartialJSON)
				}
			}
		case anthropic.ContentBlockStopEvent:
			if t, ok := tools[variant.Index]; ok {
				raw := t.input.String()
				if raw == "" {
					raw = "{}"
				}
				chunks <- &agent.CompletionChunk{ToolCall: &models.ToolUseBlock{
					ID: t.id, Name: t.name, Input: json.RawMessage(raw),
				}}
				delete(tools, variant.Index)
			}
		case anthropic.MessageDeltaEvent:
			outputTokens += int(variant.Usage.OutputTokens)
		case anthropic.MessageStartEvent:
			inputTokens += int(variant.Message.Usage.InputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
		return
	}
	chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
}

// convertMessages re-pairs the internal block history into Anthropic's
// content-block-array convention: tool_result blocks ride inside a
// user-role message, tool_use blocks inside an assistant-role message.
func (p *AnthropicProvider) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case models.TextBlock:
				content = append(content, anthropic.NewTextBlock(v.Text))
			case models.ImageBlock:
				content = append(content, anthropic.NewImageBlockBase64(string(v.MediaType), encodeBase64(v.Bytes)))
			case models.ToolUseBlock:
				var input map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &input); err != nil {
						return nil, fmt.Errorf("invalid tool_use input: %w", err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(v.ID, input, v.Name))
			case models.ToolResultBlock:
				content = append(content, anthropic.NewToolResultBlock(v.ToolUseID, v.Content, v.IsError))
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func (p *AnthropicProvider) convertTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
			}
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, t.Name))
	}
	return out, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

func (p *AnthropicProvider) isRetryableError(err error) bool {
	return IsRetryable(p.wrapError(err, ""))
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	pe := NewProviderError("anthropic", model, err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe = pe.WithStatus(apiErr.StatusCode)
	}
	return pe
}
