package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// OllamaConfig configures an OllamaProvider against a local or remote Ollama
// server.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OllamaProvider adapts Ollama's /api/chat NDJSON streaming endpoint, which
// accepts OpenAI-shaped tool definitions but frames everything else as
// newline-delimited JSON rather than SSE.
type OllamaProvider struct {
	client       *http.Client
	baseURL      string
	defaultModel string
}

func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3.1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &OllamaProvider{
		client:       &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: p.defaultModel, Name: p.defaultModel, ContextSize: 8192, SupportsVision: false},
	}
}

func (p *OllamaProvider) SupportsTools() bool { return true }

func (p *OllamaProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaChatResponse struct {
	Message        ollamaChatMessage `json:"message"`
	Done           bool              `json:"done"`
	Error          string            `json:"error"`
	EvalCount      int               `json:"eval_count"`
	PromptEvalCount int              `json:"prompt_eval_count"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	messages, err := p.buildOllamaMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to convert messages: %w", err)
	}

	chatReq := ollamaChatRequest{
		Model:    p.getModel(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		tools, err := convertToOpenAITools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("ollama: failed to convert tools: %w", err)
		}
		chatReq.Tools = tools
	}
	if req.MaxTokens > 0 {
		chatReq.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, NewProviderError("ollama", chatReq.Model, fmt.Errorf("%s", strings.TrimSpace(string(msg)))).WithStatus(resp.StatusCode)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.streamResponse(resp.Body, chunks)
	return chunks, nil
}

func (p *OllamaProvider) streamResponse(body io.ReadCloser, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seen := map[string]bool{}
	var totalIn, totalOut int

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			chunks <- &agent.CompletionChunk{Error: NewProviderError("ollama", "", errors.New(resp.Error))}
			return
		}
		if resp.Message.Content != "" {
			chunks <- &agent.CompletionChunk{Text: resp.Message.Content}
		}
		for _, tc := range resp.Message.ToolCalls {
			key := tc.Function.Name + fmt.Sprint(tc.Function.Arguments)
			if seen[key] {
				continue
			}
			seen[key] = true
			argsJSON, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				argsJSON = []byte("{}")
			}
			chunks <- &agent.CompletionChunk{ToolCall: &models.ToolUseBlock{
				ID:    generateToolCallID(tc.Function.Name),
				Name:  tc.Function.Name,
				Input: argsJSON,
			}}
		}
		if resp.EvalCount > 0 || resp.PromptEvalCount > 0 {
			totalIn, totalOut = resp.PromptEvalCount, resp.EvalCount
		}
		if resp.Done {
			if totalIn > 0 || totalOut > 0 {
				chunks <- &agent.CompletionChunk{InputTokens: totalIn, OutputTokens: totalOut}
			}
			chunks <- &agent.CompletionChunk{Done: true}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: p.wrapError(err)}
		return
	}
	chunks <- &agent.CompletionChunk{Done: true}
}

// buildOllamaMessages flattens block history into Ollama's single-string
// content convention, tracking tool_use names so a following tool_result
// block can be reported back under a "tool" role message naming its call.
func (p *OllamaProvider) buildOllamaMessages(messages []models.Message, system string) ([]ollamaChatMessage, error) {
	out := make([]ollamaChatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, ollamaChatMessage{Role: "system", Content: system})
	}

	toolNames := map[string]string{}
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "assistant"
		}

		var text strings.Builder
		var toolCalls []ollamaToolCall
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case models.TextBlock:
				text.WriteString(v.Text)
			case models.ToolUseBlock:
				toolNames[v.ID] = v.Name
				var args map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &args); err != nil {
						return nil, fmt.Errorf("tool_use %s: invalid input: %w", v.Name, err)
					}
				}
				toolCalls = append(toolCalls, ollamaToolCall{Function: ollamaFunctionCall{Name: v.Name, Arguments: args}})
			case models.ToolResultBlock:
				out = append(out, ollamaChatMessage{Role: "tool", Content: v.Content})
			}
		}

		if text.Len() > 0 || len(toolCalls) > 0 {
			out = append(out, ollamaChatMessage{Role: role, Content: text.String(), ToolCalls: toolCalls})
		}
	}
	return out, nil
}

func (p *OllamaProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	return NewProviderError("ollama", "", err)
}
