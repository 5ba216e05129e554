package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// BedrockProvider adapts AWS Bedrock's Converse/ConverseStream API, the one
// dialect in this package whose wire shape is neither Anthropic's nor
// OpenAI's. It exists alongside AnthropicProvider rather than folding into
// it because the model catalog spans non-Anthropic vendors (Titan, Llama,
// Mistral, Cohere) behind the same Converse contract.
type BedrockProvider struct {
	BaseProvider
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures a BedrockProvider. AccessKeyID/SecretAccessKey are
// optional; when empty the SDK falls back to its default credential chain
// (env vars, shared config, instance role).
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		return nil, errors.New("bedrock: region is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		BaseProvider: NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Name: "Claude 3.5 Sonnet (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "meta.llama3-1-70b-instruct-v1:0", Name: "Llama 3.1 70B (Bedrock)", ContextSize: 128000, SupportsVision: false},
		{ID: "mistral.mistral-large-2407-v1:0", Name: "Mistral Large (Bedrock)", ContextSize: 128000, SupportsVision: false},
		{ID: "amazon.titan-text-premier-v1:0", Name: "Titan Text Premier (Bedrock)", ContextSize: 32000, SupportsVision: false},
	}
}

func (p *BedrockProvider) SupportsTools() bool { return true }

func (p *BedrockProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	chunks := make(chan *agent.CompletionChunk)

	go func() {
		defer close(chunks)

		model := p.getModel(req.Model)
		messages, err := p.convertMessages(req.Messages)
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		input := &bedrockruntime.ConverseStreamInput{
			ModelId:  aws.String(model),
			Messages: messages,
		}
		if req.System != "" {
			input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
		}
		if req.MaxTokens > 0 {
			input.InferenceConfig = &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
		}
		if len(req.Tools) > 0 {
			toolConfig, err := p.convertTools(req.Tools)
			if err != nil {
				chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
				return
			}
			input.ToolConfig = toolConfig
		}

		var out *bedrockruntime.ConverseStreamOutput
		err = p.Retry(ctx, p.isRetryableError, func() error {
			resp, streamErr := p.client.ConverseStream(ctx, input)
			if streamErr != nil {
				return streamErr
			}
			out = resp
			return nil
		})
		if err != nil {
			chunks <- &agent.CompletionChunk{Error: p.wrapError(err, model)}
			return
		}

		p.processStream(out, chunks)
	}()

	return chunks, nil
}

// pendingBedrockTool accumulates a tool_use block's streamed JSON fragments,
// mirroring AnthropicProvider's pendingTool.
type pendingBedrockTool struct {
	id, name string
	input    strings.Builder
}

func (p *BedrockProvider) processStream(out *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk) {
	pending := map[int32]*pendingBedrockTool{}

	stream := out.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		switch v := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			if start, ok := v.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				pending[v.Value.ContentBlockIndex] = &pendingBedrockTool{
					id:   aws.ToString(start.Value.ToolUseId),
					name: aws.ToString(start.Value.Name),
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			switch d := v.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				chunks <- &agent.CompletionChunk{Text: d.Value}
			case *brtypes.ContentBlockDeltaMemberToolUse:
				if cur, ok := pending[v.Value.ContentBlockIndex]; ok && d.Value.Input != nil {
					cur.input.WriteString(aws.ToString(d.Value.Input))
				}
			}
		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			if cur, ok := pending[v.Value.ContentBlockIndex]; ok && cur.name != "" {
				input := json.RawMessage(cur.input.String())
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				chunks <- &agent.CompletionChunk{ToolCall: &models.ToolUseBlock{ID: cur.id, Name: cur.name, Input: input}}
				delete(pending, v.Value.ContentBlockIndex)
			}
		case *brtypes.ConverseStreamOutputMemberMetadata:
			if v.Value.Usage != nil {
				chunks <- &agent.CompletionChunk{
					InputTokens:  int(aws.ToInt32(v.Value.Usage.InputTokens)),
					OutputTokens: int(aws.ToInt32(v.Value.Usage.OutputTokens)),
				}
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			// terminal event; Done is emitted once the channel drains below
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: p.wrapError(err, "")}
		return
	}
	chunks <- &agent.CompletionChunk{Done: true}
}

// convertMessages maps block history onto Bedrock's Converse message shape.
// Images travel as raw bytes already decoded on the block - no data-URL or
// network fetch needed since ImageBlock carries the bytes directly.
func (p *BedrockProvider) convertMessages(messages []models.Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		role := brtypes.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}

		var content []brtypes.ContentBlock
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case models.TextBlock:
				content = append(content, &brtypes.ContentBlockMemberText{Value: v.Text})
			case models.ImageBlock:
				format, err := bedrockImageFormat(v.MediaType)
				if err != nil {
					return nil, err
				}
				content = append(content, &brtypes.ContentBlockMemberImage{Value: brtypes.ImageBlock{
					Format: format,
					Source: &brtypes.ImageSourceMemberBytes{Value: v.Bytes},
				}})
			case models.ToolUseBlock:
				var input document.Interface
				if len(v.Input) > 0 {
					var parsed map[string]any
					if err := json.Unmarshal(v.Input, &parsed); err != nil {
						return nil, fmt.Errorf("tool_use %s: invalid input: %w", v.Name, err)
					}
					input = document.NewLazyDocument(parsed)
				}
				content = append(content, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(v.Name),
					Input:     input,
				}})
			case models.ToolResultBlock:
				status := brtypes.ToolResultStatusSuccess
				if v.IsError {
					status = brtypes.ToolResultStatusError
				}
				content = append(content, &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(v.ToolUseID),
					Status:    status,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: v.Content}},
				}})
			}
		}
		if len(content) > 0 {
			out = append(out, brtypes.Message{Role: role, Content: content})
		}
	}
	return out, nil
}

func (p *BedrockProvider) convertTools(tools []models.ToolDefinition) (*brtypes.ToolConfiguration, error) {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid schema: %w", t.Name, err)
			}
		} else {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: specs}, nil
}

func bedrockImageFormat(mediaType models.MediaType) (brtypes.ImageFormat, error) {
	switch mediaType {
	case models.MediaTypePNG:
		return brtypes.ImageFormatPng, nil
	case models.MediaTypeJPEG:
		return brtypes.ImageFormatJpeg, nil
	case models.MediaTypeGIF:
		return brtypes.ImageFormatGif, nil
	case models.MediaTypeWebP:
		return brtypes.ImageFormatWebp, nil
	default:
		return "", fmt.Errorf("bedrock: unsupported image media type %q", mediaType)
	}
}

func (p *BedrockProvider) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"throttling", "toomanyrequests", "serviceunavailable", "timeout", "internalservererror"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return IsRetryable(p.wrapError(err, ""))
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}
	pe := NewProviderError("bedrock", model, err)
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "accessdenied"), strings.Contains(msg, "unrecognizedclient"):
		pe = pe.WithStatus(403)
	case strings.Contains(msg, "throttling"), strings.Contains(msg, "toomanyrequests"):
		pe = pe.WithStatus(429)
	case strings.Contains(msg, "validationexception"):
		pe = pe.WithStatus(400)
	case strings.Contains(msg, "serviceunavailable"):
		pe = pe.WithStatus(503)
	case strings.Contains(msg, "internalservererror"):
		pe = pe.WithStatus(500)
	}
	return pe
}
