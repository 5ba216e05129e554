package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MarshalJSON encodes a Message while preserving the concrete Block type of
// each entry in Blocks via an explicit "kind" discriminator.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role      Role              `json:"role"`
		Blocks    []json.RawMessage `json:"blocks,omitempty"`
		CreatedAt *time.Time        `json:"created_at,omitempty"`
	}
	enc, err := encodeBlocks(m.Blocks)
	if err != nil {
		return nil, err
	}
	a := alias{Role: m.Role, Blocks: enc}
	if !m.CreatedAt.IsZero() {
		a.CreatedAt = &m.CreatedAt
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes a Message, materializing concrete Block
// implementations for each entry.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role      Role              `json:"role"`
		Blocks    []json.RawMessage `json:"blocks,omitempty"`
		CreatedAt *time.Time        `json:"created_at,omitempty"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role = tmp.Role
	if tmp.CreatedAt != nil {
		m.CreatedAt = *tmp.CreatedAt
	}
	blocks, err := decodeBlocks(tmp.Blocks)
	if err != nil {
		return err
	}
	m.Blocks = blocks
	return nil
}

func encodeBlocks(blocks []Block) ([]json.RawMessage, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(blocks))
	for i, b := range blocks {
		raw, err := encodeBlock(b)
		if err != nil {
			return nil, fmt.Errorf("encode blocks[%d]: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func encodeBlock(b Block) (json.RawMessage, error) {
	switch v := b.(type) {
	case TextBlock:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			TextBlock
		}{"text", v})
	case ImageBlock:
		return json.Marshal(struct {
			Kind      string    `json:"kind"`
			MediaType MediaType `json:"media_type"`
			Data      string    `json:"data"`
		}{"image", v.MediaType, base64.StdEncoding.EncodeToString(v.Bytes)})
	case ToolUseBlock:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ToolUseBlock
		}{"tool_use", v})
	case ToolResultBlock:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			ToolResultBlock
		}{"tool_result", v})
	case PermissionRequestBlock:
		return json.Marshal(struct {
			Kind string `json:"kind"`
			PermissionRequestBlock
		}{"permission_request", v})
	default:
		return nil, fmt.Errorf("unknown block type %T", b)
	}
}

func decodeBlocks(raws []json.RawMessage) ([]Block, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	out := make([]Block, 0, len(raws))
	for i, raw := range raws {
		b, err := decodeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("decode blocks[%d]: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeBlock(raw json.RawMessage) (Block, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Kind {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "image":
		var wire struct {
			MediaType MediaType `json:"media_type"`
			Data      string    `json:"data"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(wire.Data)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		return ImageBlock{MediaType: wire.MediaType, Bytes: data}, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if b.Name == "" {
			return nil, errors.New("tool_use block requires name")
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if b.ToolUseID == "" {
			return nil, errors.New("tool_result block requires tool_use_id")
		}
		return b, nil
	case "permission_request":
		var b PermissionRequestBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown block kind %q", head.Kind)
	}
}
