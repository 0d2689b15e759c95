package types

import (
	"encoding/json"
	"fmt"
)

// ContentBlock is the interface for all content types.
// INPUT:  text, audio, tool_result
// OUTPUT: text, audio, tool_use
type ContentBlock interface {
	BlockType() string
}

// TextBlock represents text content.
type TextBlock struct {
	Type string `json:"type"` // "text"
	Text string `json:"text"`
}

func (t TextBlock) BlockType() string { return "text" }

// AudioBlock represents audio content, inbound (a child's recording) or
// outbound (synthesized speech returned inline by the model).
type AudioBlock struct {
	Type   string      `json:"type"` // "audio"
	Source AudioSource `json:"source"`
}

func (t AudioBlock) BlockType() string { return "audio" }

// AudioSource contains the audio data.
type AudioSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "audio/wav", "audio/webm", "audio/pcm", ...
	Data      string `json:"data"`       // base64 data
}

// ToolUseBlock represents a tool call from the model.
type ToolUseBlock struct {
	Type  string         `json:"type"` // "tool_use"
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (t ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock represents the result of a tool call.
type ToolResultBlock struct {
	Type      string         `json:"type"` // "tool_result"
	ToolUseID string         `json:"tool_use_id"`
	Content   []ContentBlock `json:"content"`
	IsError   bool           `json:"is_error,omitempty"`
}

func (t ToolResultBlock) BlockType() string { return "tool_result" }

// MarshalJSON implements custom JSON marshaling for ToolResultBlock.
func (t ToolResultBlock) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"type":        t.Type,
		"tool_use_id": t.ToolUseID,
	}

	if t.IsError {
		m["is_error"] = true
	}

	if len(t.Content) > 0 {
		contentJSON := make([]json.RawMessage, len(t.Content))
		for i, block := range t.Content {
			b, err := json.Marshal(block)
			if err != nil {
				return nil, err
			}
			contentJSON[i] = b
		}
		m["content"] = contentJSON
	}

	return json.Marshal(m)
}

// UnmarshalContentBlock deserializes a content block from JSON.
func UnmarshalContentBlock(data []byte) (ContentBlock, error) {
	var typeHolder struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &typeHolder); err != nil {
		return nil, err
	}

	switch typeHolder.Type {
	case "text":
		var block TextBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}
		return block, nil

	case "audio":
		var block AudioBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}
		return block, nil

	case "tool_use":
		var block ToolUseBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}
		return block, nil

	case "tool_result":
		var raw struct {
			Type      string            `json:"type"`
			ToolUseID string            `json:"tool_use_id"`
			Content   []json.RawMessage `json:"content"`
			IsError   bool              `json:"is_error"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		block := ToolResultBlock{
			Type:      raw.Type,
			ToolUseID: raw.ToolUseID,
			IsError:   raw.IsError,
		}
		for _, c := range raw.Content {
			cb, err := UnmarshalContentBlock(c)
			if err != nil {
				return nil, err
			}
			block.Content = append(block.Content, cb)
		}
		return block, nil

	default:
		// Unknown block types degrade to text so a new upstream feature
		// never breaks history decoding.
		return TextBlock{Type: typeHolder.Type, Text: fmt.Sprintf("[unknown block type: %s]", typeHolder.Type)}, nil
	}
}

// UnmarshalContentBlocks deserializes a slice of content blocks from JSON.
func UnmarshalContentBlocks(data []byte) ([]ContentBlock, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	blocks := make([]ContentBlock, len(raw))
	for i, r := range raw {
		block, err := UnmarshalContentBlock(r)
		if err != nil {
			return nil, err
		}
		blocks[i] = block
	}
	return blocks, nil
}
