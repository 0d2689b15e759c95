package types

import (
	"encoding/json"
	"strings"
)

// MessageResponse is the response from a single model call.
type MessageResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // "message"
	Role       string         `json:"role"` // "assistant"
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
}

// StopReason indicates why generation stopped.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonToolUse   StopReason = "tool_use"
)

// TextContent returns all text content concatenated.
func (r *MessageResponse) TextContent() string {
	var parts []string
	for _, block := range r.Content {
		if tb, ok := block.(TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

// FirstText returns the first non-empty text segment, or "".
func (r *MessageResponse) FirstText() string {
	for _, block := range r.Content {
		if tb, ok := block.(TextBlock); ok && strings.TrimSpace(tb.Text) != "" {
			return tb.Text
		}
	}
	return ""
}

// ToolUses returns all tool use blocks.
func (r *MessageResponse) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, block := range r.Content {
		if tu, ok := block.(ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// HasToolUse returns true if the response contains tool calls.
func (r *MessageResponse) HasToolUse() bool {
	for _, block := range r.Content {
		if _, ok := block.(ToolUseBlock); ok {
			return true
		}
	}
	return false
}

// AudioContent returns the first audio block, or nil if none.
func (r *MessageResponse) AudioContent() *AudioBlock {
	for _, block := range r.Content {
		if ab, ok := block.(AudioBlock); ok {
			return &ab
		}
	}
	return nil
}

// UnmarshalMessageResponse deserializes a MessageResponse, decoding content
// blocks into concrete ContentBlock implementations.
func UnmarshalMessageResponse(data []byte) (*MessageResponse, error) {
	var raw struct {
		ID         string            `json:"id"`
		Type       string            `json:"type"`
		Role       string            `json:"role"`
		Model      string            `json:"model"`
		Content    []json.RawMessage `json:"content"`
		StopReason StopReason        `json:"stop_reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	content := make([]ContentBlock, 0, len(raw.Content))
	for _, blockRaw := range raw.Content {
		block, err := UnmarshalContentBlock(blockRaw)
		if err != nil {
			return nil, err
		}
		content = append(content, block)
	}

	return &MessageResponse{
		ID:         raw.ID,
		Type:       raw.Type,
		Role:       raw.Role,
		Model:      raw.Model,
		Content:    content,
		StopReason: raw.StopReason,
	}, nil
}
