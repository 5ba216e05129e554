// Package models defines the wire-independent data model shared by the
// conversation engine, provider adapters, and tool dispatcher.
package models

import "encoding/json"

// Role indicates the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MediaType enumerates the image encodings a provider is required to accept.
type MediaType string

const (
	MediaPNG  MediaType = "image/png"
	MediaJPEG MediaType = "image/jpeg"
	MediaGIF  MediaType = "image/gif"
	MediaWebP MediaType = "image/webp"
)

// MaxImageBytes is the size cap for a single image block (20 MiB).
const MaxImageBytes = 20 * 1024 * 1024

// Block is a tagged variant of conversation content. The concrete types are
// TextBlock, ImageBlock, ToolUseBlock, ToolResultBlock, and
// PermissionRequestBlock; Kind returns the wire discriminator for each.
type Block interface {
	Kind() string
}

// TextBlock is free-form model or user text.
type TextBlock struct {
	Text string `json:"text"`
}

// Kind implements Block.
func (TextBlock) Kind() string { return "text" }

// ImageBlock is a base64-capable image payload. Bytes holds the decoded
// image; callers needing the wire form must base64-encode it themselves.
type ImageBlock struct {
	MediaType MediaType `json:"media_type"`
	Bytes     []byte    `json:"bytes"`
}

// Kind implements Block.
func (ImageBlock) Kind() string { return "image" }

// ToolUseBlock is a model request to invoke a tool. ID is unique within the
// owning conversation.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Kind implements Block.
func (ToolUseBlock) Kind() string { return "tool_use" }

// ToolResultBlock pairs with a preceding ToolUseBlock in the same
// conversation via ToolUseID.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Kind implements Block.
func (ToolResultBlock) Kind() string { return "tool_result" }

// PermissionOption is one choice offered to the user for a pending
// permission decision (e.g. "once", "always-exact", "always-wildcard", "deny").
type PermissionOption string

// PermissionRequestBlock is synthesized locally when dispatch defers a tool
// call to the user; it is never sent to a provider.
type PermissionRequestBlock struct {
	ID      string             `json:"id"`
	Title   string             `json:"title"`
	Detail  string             `json:"detail"`
	Options []PermissionOption `json:"options"`
}

// Kind implements Block.
func (PermissionRequestBlock) Kind() string { return "permission_request" }

// ToolUseBlocks filters blocks down to tool_use blocks, preserving order.
func ToolUseBlocks(blocks []Block) []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range blocks {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// TextOf concatenates every TextBlock in blocks, in order.
func TextOf(blocks []Block) string {
	var out string
	for _, b := range blocks {
		if tb, ok := b.(TextBlock); ok {
			out += tb.Text
		}
	}
	return out
}
