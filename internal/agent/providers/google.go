package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// GoogleProvider adapts Google's Gemini GenerateContent API.
type GoogleProvider struct {
	BaseProvider
	client       *genai.Client
	defaultModel string
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewGoogleProvider builds a provider from config. Callers resolve
// GEMINI_API_KEY with a GOOGLE_API_KEY fallback per the environment contract
// before reaching here.
func NewGoogleProvider(config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &GoogleProvider{
		BaseProvider: NewBaseProvider("google", config.MaxRetries, config.RetryDelay),
		client:       client,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000, SupportsVision: true},
	}
}

func (p *GoogleProvider) SupportsTools() bool { return true }

func (p *GoogleProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks := make(chan *agent.CompletionChunk)

	go func() {
		defer close(chunks)

		model := p.getModel(req.Model)
		contents, err := p.convertMessages(req.Messages)
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}
		config := p.buildConfig(req)

		err = p.Retry(ctx, p.isRetryableError, func() error {
			iterFn := p.client.Models.GenerateContentStream(ctx, model, contents, config)
			for resp, streamErr := range iterFn {
				if streamErr != nil {
					return streamErr
				}
				if resp == nil {
					continue
				}
				for _, candidate := range resp.Candidates {
					if candidate == nil || candidate.Content == nil {
						continue
					}
					for _, part := range candidate.Content.Parts {
						if part == nil {
							continue
						}
						if part.Text != "" {
							chunks <- &agent.CompletionChunk{Text: part.Text}
						}
						if part.FunctionCall != nil {
							argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
							if jsonErr != nil {
								argsJSON = []byte("{}")
							}
							chunks <- &agent.CompletionChunk{ToolCall: &models.ToolUseBlock{
								ID:    generateToolCallID(part.FunctionCall.Name),
								Name:  part.FunctionCall.Name,
								Input: argsJSON,
							}}
						}
					}
				}
				if resp.UsageMetadata != nil {
					chunks <- &agent.CompletionChunk{
						InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
						OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					}
				}
			}
			return nil
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}
		chunks <- &agent.CompletionChunk{Done: true}
	}()

	return chunks, nil
}

// convertMessages maps block history to Gemini Content, resolving each
// tool_result's function name from the tool_use block it pairs with (Gemini
// function responses are keyed by name, not id).
func (p *GoogleProvider) convertMessages(messages []models.Message) ([]*genai.Content, error) {
	toolNames := map[string]string{}
	var out []*genai.Content

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		}

		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case models.TextBlock:
				content.Parts = append(content.Parts, &genai.Part{Text: v.Text})
			case models.ImageBlock:
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{Data: v.Bytes, MIMEType: string(v.MediaType)},
				})
			case models.ToolUseBlock:
				toolNames[v.ID] = v.Name
				var args map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &args); err != nil {
						args = map[string]any{}
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: v.Name, Args: args},
				})
			case models.ToolResultBlock:
				var response map[string]any
				if err := json.Unmarshal([]byte(v.Content), &response); err != nil {
					response = map[string]any{"result": v.Content, "error": v.IsError}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: toolNames[v.ToolUseID], Response: response},
				})
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

func (p *GoogleProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

func (p *GoogleProvider) convertTools(tools []models.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		if len(t.InputSchema) > 0 {
			_ = json.Unmarshal(t.InputSchema, &schema)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (p *GoogleProvider) isRetryableError(err error) bool {
	return IsRetryable(p.wrapError(err, ""))
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	pe := NewProviderError("google", model, err)
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "unauthenticated"):
		pe = pe.WithStatus(401)
	case strings.Contains(msg, "403"), strings.Contains(msg, "permission denied"):
		pe = pe.WithStatus(403)
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource exhausted"):
		pe = pe.WithStatus(429)
	case strings.Contains(msg, "503"):
		pe = pe.WithStatus(503)
	case strings.Contains(msg, "500"):
		pe = pe.WithStatus(500)
	}
	return pe
}

func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", strings.ReplaceAll(name, " ", "_"), time.Now().UnixNano())
}
