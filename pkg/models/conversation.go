package models

import "time"

// Message is an ordered sequence of content blocks tagged with a role.
// Custom MarshalJSON/UnmarshalJSON live in block_json.go.
type Message struct {
	Role      Role
	Blocks    []Block
	CreatedAt time.Time
}

// HasToolUse reports whether the message carries at least one tool_use block.
func (m Message) HasToolUse() bool {
	for _, b := range m.Blocks {
		if _, ok := b.(ToolUseBlock); ok {
			return true
		}
	}
	return false
}

// Usage accumulates best-effort token counts reported by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates u into the receiver.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Conversation is the unit of persistence and cancellation. It is mutated
// only by the engine under the conversation's lock.
type Conversation struct {
	ID                    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Model                 string
	Subagent              string
	Messages              []Message
	ContextFiles          []string
	Usage                 Usage
	SystemPromptOverride  string
	PlanMode              bool
	Todos                 []TodoItem
}

// HasContextFile reports whether path is already tracked as a context file.
func (c *Conversation) HasContextFile(path string) bool {
	for _, p := range c.ContextFiles {
		if p == path {
			return true
		}
	}
	return false
}

// TodoItem is one entry of a conversation's internal scratchpad list.
type TodoItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}
