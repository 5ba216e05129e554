package providers

import (
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
)

// mistralBaseURL is Mistral's OpenAI-wire-compatible chat-completions
// endpoint; go-openai's client talks to it unmodified once BaseURL is
// overridden.
const mistralBaseURL = "https://api.mistral.ai/v1"

// MistralProvider adapts Mistral's chat-completions API, which mirrors
// OpenAI's wire format closely enough to reuse openaiCompatible wholesale.
type MistralProvider struct {
	*openaiCompatible
}

// NewMistralProvider builds a Mistral provider. MISTRAL_API_KEY is the only
// credential the environment contract recognizes for this dialect; there is
// no base-URL override in that contract, so baseURL is fixed.
func NewMistralProvider(apiKey string) *MistralProvider {
	return &MistralProvider{newOpenAICompatible("mistral", apiKey, mistralBaseURL, "mistral-large-latest", 3, time.Second)}
}

func (p *MistralProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "mistral-large-latest", Name: "Mistral Large", ContextSize: 128000, SupportsVision: false},
		{ID: "mistral-small-latest", Name: "Mistral Small", ContextSize: 128000, SupportsVision: false},
		{ID: "pixtral-large-latest", Name: "Pixtral Large", ContextSize: 128000, SupportsVision: true},
	}
}
