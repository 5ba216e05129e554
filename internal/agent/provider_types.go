package agent

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Model describes one model a provider exposes.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// LLMProvider is the uniform contract every wire dialect adapter satisfies.
type LLMProvider interface {
	Name() string
	Models() []Model
	SupportsTools() bool
	// Complete streams the assistant's reply to req on the returned channel.
	// The channel is closed after a chunk with Done==true or Error!=nil.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// CompletionRequest carries everything an adapter needs to produce one
// assistant turn. Messages is the full conversation history in the internal
// block model; adapters are responsible for mapping it to their wire schema.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []models.Message
	Tools       []models.ToolDefinition
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// CompletionChunk is one decoded fragment of a streaming completion.
// Exactly one of Text, ToolCall, or Error is meaningful per chunk; Done
// marks the terminal chunk of a successful stream.
type CompletionChunk struct {
	Text     string
	ToolCall *models.ToolUseBlock
	Done     bool
	Error    error

	InputTokens  int
	OutputTokens int
}

// AssistantMessage collects the blocks decoded from a Complete stream into a
// single assistant-role message, plus the usage reported for the turn.
func AssistantMessage(chunks []*CompletionChunk) (models.Message, models.Usage) {
	msg := models.Message{Role: models.RoleAssistant}
	var usage models.Usage
	var text string
	flushText := func() {
		if text != "" {
			msg.Blocks = append(msg.Blocks, models.TextBlock{Text: text})
			text = ""
		}
	}
	for _, c := range chunks {
		if c == nil {
			continue
		}
		usage.InputTokens += c.InputTokens
		usage.OutputTokens += c.OutputTokens
		if c.Text != "" {
			text += c.Text
		}
		if c.ToolCall != nil {
			flushText()
			msg.Blocks = append(msg.Blocks, *c.ToolCall)
		}
	}
	flushText()
	return msg, usage
}
